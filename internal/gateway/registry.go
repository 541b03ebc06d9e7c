package gateway

import (
	"hash/fnv"
	"sync"

	"github.com/xtendplex/chat-server/internal/infrastructure/metrics"
)

// shardCount must be a power of two.
const shardCount = 32

type shard struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
}

// Registry is the room-subscriber map, sharded by room id so fan-out in
// one room never contends with joins in another. Per-room event order is
// preserved because each broadcast holds its room's shard read lock
// while enqueueing to every subscriber.
type Registry struct {
	shards [shardCount]*shard
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{rooms: make(map[string]map[*Conn]struct{})}
	}
	return r
}

func (r *Registry) shardFor(roomID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(roomID))
	return r.shards[h.Sum32()&(shardCount-1)]
}

// Join subscribes the connection to the room. Idempotent; returns false
// when the connection was already subscribed.
func (r *Registry) Join(roomID string, c *Conn) bool {
	s := r.shardFor(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, ok := s.rooms[roomID]
	if !ok {
		subs = make(map[*Conn]struct{})
		s.rooms[roomID] = subs
	}
	if _, exists := subs[c]; exists {
		return false
	}
	subs[c] = struct{}{}
	return true
}

// Leave unsubscribes the connection from the room.
func (r *Registry) Leave(roomID string, c *Conn) {
	s := r.shardFor(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, ok := s.rooms[roomID]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(s.rooms, roomID)
	}
}

// Drop removes the connection from each of the given rooms. Cost is
// proportional to the rooms the connection joined, not to all rooms.
func (r *Registry) Drop(c *Conn, roomIDs []string) {
	for _, roomID := range roomIDs {
		r.Leave(roomID, c)
	}
}

// Broadcast enqueues the frame to every subscriber of the room,
// including the sender's connection. Enqueueing is non-blocking per
// subscriber; a slow consumer loses frames rather than stalling the
// room.
func (r *Registry) Broadcast(roomID string, frame []byte) int {
	return r.broadcast(roomID, frame, nil)
}

// BroadcastExcept is Broadcast minus one connection, used for typing
// relays where the sender already knows.
func (r *Registry) BroadcastExcept(roomID string, frame []byte, except *Conn) int {
	return r.broadcast(roomID, frame, except)
}

func (r *Registry) broadcast(roomID string, frame []byte, except *Conn) int {
	s := r.shardFor(roomID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for c := range s.rooms[roomID] {
		if c == except {
			continue
		}
		c.enqueue(frame)
		n++
	}
	metrics.BroadcastFanout.Observe(float64(n))
	return n
}

// Subscribers reports the current subscriber count for a room.
func (r *Registry) Subscribers(roomID string) int {
	s := r.shardFor(roomID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[roomID])
}

// roomLocks serializes persist-then-broadcast sequences per room so
// delivery order matches persist order.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the room's mutex, creating it on first use. The returned
// function releases it.
func (l *roomLocks) Lock(roomID string) func() {
	l.mu.Lock()
	m, ok := l.locks[roomID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[roomID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
