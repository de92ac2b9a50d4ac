// Package game runs rooms: creation, team selection, starting a match,
// resolving solves into claims, reconnection and history. It owns no
// connections; callers broadcast the snapshots it returns.
package game

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tictaccode/arena/internal/arena"
	"github.com/tictaccode/arena/internal/store"
)

// ErrUnavailable wraps failures of the board provisioner or solved oracle.
// The room is unchanged and the request can be retried.
var ErrUnavailable = errors.New("external service unavailable")

// Provisioner builds a board for the given players.
type Provisioner interface {
	Provision(ctx context.Context, handles []string, settings arena.Settings) (arena.Board, error)
}

// Oracle reports which of problems a handle has solved, keyed by Problem.Key.
type Oracle interface {
	Solved(ctx context.Context, handle string, problems []arena.Problem) (map[string]bool, error)
}

type Options struct {
	ResolveTimeout time.Duration
	RoomTTL        time.Duration
}

type Service struct {
	store       store.Store
	provisioner Provisioner
	oracle      Oracle
	logger      *slog.Logger
	opts        Options

	now   func() time.Time
	newID func() (string, error)
}

func NewService(st store.Store, p Provisioner, o Oracle, logger *slog.Logger, opts Options) *Service {
	return &Service{
		store:       st,
		provisioner: p,
		oracle:      o,
		logger:      logger,
		opts:        opts,
		now:         time.Now,
		newID:       newRoomID,
	}
}

// newRoomID returns six lowercase hex characters.
func newRoomID() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

const maxIDAttempts = 8

func (s *Service) CreateRoom(ctx context.Context) (arena.Room, error) {
	for range maxIDAttempts {
		id, err := s.newID()
		if err != nil {
			return arena.Room{}, fmt.Errorf("generating room id: %w", err)
		}
		room := arena.New(id, s.now())
		err = s.store.Create(ctx, room)
		if errors.Is(err, store.ErrExists) {
			continue
		}
		if err != nil {
			return arena.Room{}, fmt.Errorf("creating room: %w", err)
		}
		s.logger.Info("room created", "room", id)
		return room, nil
	}
	return arena.Room{}, fmt.Errorf("creating room: no free id after %d attempts", maxIDAttempts)
}

// Room returns the current snapshot. Rooms past their TTL are reported as
// not found even before they are swept.
func (s *Service) Room(ctx context.Context, id string) (arena.Room, error) {
	room, err := s.store.Get(ctx, id)
	if err != nil {
		return arena.Room{}, err
	}
	if s.expired(&room) {
		return arena.Room{}, store.ErrNotFound
	}
	return room, nil
}

func (s *Service) expired(r *arena.Room) bool {
	return s.opts.RoomTTL > 0 && r.Expired(s.now(), s.opts.RoomTTL)
}

func (s *Service) update(ctx context.Context, id string, fn store.UpdateFunc) (arena.Room, error) {
	return s.store.Update(ctx, id, func(r *arena.Room) (bool, error) {
		if s.expired(r) {
			return false, store.ErrNotFound
		}
		return fn(r)
	})
}

// JoinTeam puts handle on team. Joining the current team changes nothing.
func (s *Service) JoinTeam(ctx context.Context, id, handle string, team arena.Team) (arena.Room, error) {
	return s.update(ctx, id, func(r *arena.Room) (bool, error) {
		return r.Join(handle, team)
	})
}

// Leave takes handle off both rosters in any phase.
func (s *Service) Leave(ctx context.Context, id, handle string) (arena.Room, error) {
	return s.update(ctx, id, func(r *arena.Room) (bool, error) {
		return r.Leave(handle), nil
	})
}

// Start provisions a board for the current rosters and moves the room to
// InProgress. No room state is held while the provisioner runs; if the room
// stopped being startable in the meantime the board is discarded.
func (s *Service) Start(ctx context.Context, id string, settings arena.Settings) (arena.Room, error) {
	settings = settings.Normalize()
	if err := settings.Validate(); err != nil {
		return arena.Room{}, err
	}

	room, err := s.Room(ctx, id)
	if err != nil {
		return arena.Room{}, err
	}
	if err := room.CanStart(); err != nil {
		return room, err
	}

	board, err := s.provisioner.Provision(ctx, room.Participants(), settings)
	if err != nil {
		s.logger.Warn("board provisioning failed", "room", id, "error", err)
		if errors.Is(err, arena.ErrInvalidSettings) {
			return room, err
		}
		return room, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	room, err = s.update(ctx, id, func(r *arena.Room) (bool, error) {
		if err := r.Begin(board, settings); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return room, err
	}
	gamesStarted.Inc()
	s.logger.Info("game started", "room", id, "team_a", room.TeamA, "team_b", room.TeamB)
	return room, nil
}

// Reconnect re-admits a handle that is still on a roster, in any phase.
func (s *Service) Reconnect(ctx context.Context, id, handle string) (arena.Room, arena.Team, error) {
	room, err := s.Room(ctx, id)
	if err != nil {
		return arena.Room{}, "", err
	}
	team, ok := room.TeamOf(handle)
	if !ok {
		return room, "", arena.ErrNotParticipant
	}
	return room, team, nil
}
