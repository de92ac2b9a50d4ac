package server

import (
	"log/slog"
	"sync"
)

// subscriberBuffer bounds the messages queued for one connection. A
// subscriber whose queue is full is evicted.
const subscriberBuffer = 32

// subscriber is one connection's outbound queue.
type subscriber struct {
	id  string
	out chan []byte

	mu     sync.Mutex
	handle string

	evictOnce sync.Once
	evicted   chan struct{}
}

func newSubscriber(id string) *subscriber {
	return &subscriber{
		id:      id,
		out:     make(chan []byte, subscriberBuffer),
		evicted: make(chan struct{}),
	}
}

func (s *subscriber) Handle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *subscriber) setHandle(h string) {
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
}

// send queues msg without blocking and reports whether it fit.
func (s *subscriber) send(msg []byte) bool {
	select {
	case <-s.evicted:
		return false
	default:
	}
	select {
	case s.out <- msg:
		return true
	default:
		return false
	}
}

func (s *subscriber) evict() { s.evictOnce.Do(func() { close(s.evicted) }) }

type group struct {
	subs        map[string]*subscriber
	lastVersion int64
}

// Broker fans messages out to the connections watching each room.
// Snapshot-carrying messages are versioned: one older than the last
// published for its room is dropped, so a room group never sees state go
// backwards.
type Broker struct {
	mu     sync.Mutex
	rooms  map[string]*group
	logger *slog.Logger
}

func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{rooms: make(map[string]*group), logger: logger}
}

func (b *Broker) Join(roomID string, s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.rooms[roomID]
	if g == nil {
		g = &group{subs: make(map[string]*subscriber)}
		b.rooms[roomID] = g
	}
	g.subs[s.id] = s
}

func (b *Broker) Leave(roomID string, s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(roomID, s)
}

func (b *Broker) removeLocked(roomID string, s *subscriber) {
	g := b.rooms[roomID]
	if g == nil {
		return
	}
	delete(g.subs, s.id)
	if len(g.subs) == 0 {
		delete(b.rooms, roomID)
	}
}

// Members returns the number of subscribers in a room group.
func (b *Broker) Members(roomID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if g := b.rooms[roomID]; g != nil {
		return len(g.subs)
	}
	return 0
}

// PublishVersioned delivers msg to the whole group unless a newer version
// was already published for the room. It reports whether msg went out.
func (b *Broker) PublishVersioned(roomID string, version int64, msg []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.rooms[roomID]
	if g == nil {
		return false
	}
	if version < g.lastVersion {
		b.logger.Debug("dropping stale room message", "room", roomID, "version", version, "last", g.lastVersion)
		return false
	}
	g.lastVersion = version
	b.deliverLocked(roomID, g, msg, nil)
	return true
}

// Publish delivers an unversioned message to the subscribers accepted by
// filter, or to all of them when filter is nil.
func (b *Broker) Publish(roomID string, msg []byte, filter func(*subscriber) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if g := b.rooms[roomID]; g != nil {
		b.deliverLocked(roomID, g, msg, filter)
	}
}

func (b *Broker) deliverLocked(roomID string, g *group, msg []byte, filter func(*subscriber) bool) {
	for _, s := range g.subs {
		if filter != nil && !filter(s) {
			continue
		}
		if !s.send(msg) {
			// Slow or gone. The connection is closed and the client
			// reconnects for a fresh snapshot.
			b.logger.Warn("evicting slow subscriber", "room", roomID, "conn", s.id)
			b.removeLocked(roomID, s)
			s.evict()
			evictionsTotal.Inc()
		}
	}
}
