package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tictaccode/arena/internal/arena"
)

type memoryEntry struct {
	mu   sync.Mutex
	room arena.Room
}

// MemoryStore keeps rooms in process. Each room has its own mutex, so writes
// to different rooms never contend.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) entry(id string) (*memoryEntry, error) {
	s.mu.RLock()
	e, ok := s.rooms[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) Create(_ context.Context, room arena.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return ErrExists
	}
	s.rooms[room.ID] = &memoryEntry{room: room.Clone()}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (arena.Room, error) {
	e, err := s.entry(id)
	if err != nil {
		return arena.Room{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.room.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn UpdateFunc) (arena.Room, error) {
	e, err := s.entry(id)
	if err != nil {
		return arena.Room{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.room.Clone()
	changed, err := fn(&next)
	if err != nil {
		return e.room.Clone(), err
	}
	if !changed {
		return e.room.Clone(), nil
	}
	next.Version = e.room.Version + 1
	e.room = next
	return next.Clone(), nil
}

func (s *MemoryStore) Claim(_ context.Context, id string, c arena.Coord, claim arena.Claim) (bool, arena.Room, error) {
	e, err := s.entry(id)
	if err != nil {
		return false, arena.Room{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	won := e.room.RecordClaim(c, claim)
	if won {
		e.room.Version++
	}
	return won, e.room.Clone(), nil
}

func (s *MemoryStore) FinishedFor(_ context.Context, handle string) ([]arena.Room, error) {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.rooms))
	for _, e := range s.rooms {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []arena.Room
	for _, e := range entries {
		e.mu.Lock()
		if e.room.Outcome != arena.OutcomeNone && e.room.IsParticipant(handle) {
			out = append(out, e.room.Clone())
		}
		e.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b arena.Room) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.rooms {
		e.mu.Lock()
		expired := e.room.CreatedAt.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(s.rooms, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
