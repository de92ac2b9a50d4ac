// Package store persists rooms. Every backend gives the same guarantees:
// Update is an atomic read-modify-write of one room, and Claim is an
// insert-if-absent on a single board cell, so two concurrent claims for the
// same cell can never both succeed.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tictaccode/arena/internal/arena"
)

var (
	ErrNotFound = errors.New("room not found")
	ErrExists   = errors.New("room already exists")
	ErrConflict = errors.New("room modified concurrently")
)

// UpdateFunc mutates room in place and reports whether anything changed.
// It may run more than once when a backend retries on conflict, so anything
// it records outside room must be overwritten on every run.
type UpdateFunc func(room *arena.Room) (bool, error)

type Store interface {
	Create(ctx context.Context, room arena.Room) error
	Get(ctx context.Context, id string) (arena.Room, error)

	// Update applies fn and persists the result. When fn fails or reports no
	// change nothing is written and the version stays the same.
	Update(ctx context.Context, id string, fn UpdateFunc) (arena.Room, error)

	// Claim records claim at c unless the cell is already claimed. It reports
	// whether this call won the cell and returns the room as it stood right
	// after the attempt.
	Claim(ctx context.Context, id string, c arena.Coord, claim arena.Claim) (bool, arena.Room, error)

	// FinishedFor lists finished rooms the handle played in, newest first.
	FinishedFor(ctx context.Context, handle string) ([]arena.Room, error)

	// DeleteExpired removes rooms created before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)

	Ping(ctx context.Context) error
}

// maxUpdateAttempts bounds optimistic retries in backends that use them.
const maxUpdateAttempts = 16
