package chatclient

import (
	"sync"
	"time"

	"github.com/xtendplex/chat-server/pkg/protocol"
)

// EventTypingExpired fires when a user's typing state lapses without a
// refresh. Payload: UserTypingPayload of the expired entry.
const EventTypingExpired protocol.EventType = "typing_expired"

type typingEntry struct {
	username string
	expires  time.Time
}

// TypingMonitor tracks who is typing in which room. Entries expire a
// fixed TTL after the last observed typing event; a user who stops
// typing disappears without an explicit stop signal. It also owns the
// outbound debounce, so repeated local keystrokes collapse to one wire
// event per TTL/2 interval.
type TypingMonitor struct {
	ttl    time.Duration
	events *Dispatcher

	mu      sync.Mutex
	rooms   map[string]map[string]typingEntry // roomID -> userID -> entry
	lastTx  map[string]time.Time              // roomID -> last outbound typing event
	sweeper *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// NewTypingMonitor starts the expiry sweep. Stop must be called to
// release the ticker.
func NewTypingMonitor(ttl time.Duration, events *Dispatcher) *TypingMonitor {
	m := &TypingMonitor{
		ttl:     ttl,
		events:  events,
		rooms:   make(map[string]map[string]typingEntry),
		lastTx:  make(map[string]time.Time),
		sweeper: time.NewTicker(ttl / 4),
		done:    make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Observe inserts or refreshes the typing state for a user in a room.
func (m *TypingMonitor) Observe(roomID, userID, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[string]typingEntry)
	}
	m.rooms[roomID][userID] = typingEntry{
		username: username,
		expires:  time.Now().Add(m.ttl),
	}
}

// TypingIn returns the usernames currently typing in a room.
func (m *TypingMonitor) TypingIn(roomID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []string
	for _, entry := range m.rooms[roomID] {
		if entry.expires.After(now) {
			out = append(out, entry.username)
		}
	}
	return out
}

// shouldSend reports whether an outbound typing event for the room is
// due, and records it as sent when so.
func (m *TypingMonitor) shouldSend(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	interval := m.ttl / 2
	now := time.Now()
	if now.Sub(m.lastTx[roomID]) < interval {
		return false
	}
	m.lastTx[roomID] = now
	return true
}

// Stop halts the sweep loop. Idempotent.
func (m *TypingMonitor) Stop() {
	m.once.Do(func() {
		m.sweeper.Stop()
		close(m.done)
	})
}

func (m *TypingMonitor) sweepLoop() {
	for {
		select {
		case <-m.done:
			return
		case <-m.sweeper.C:
			m.sweep(time.Now())
		}
	}
}

func (m *TypingMonitor) sweep(now time.Time) {
	type expired struct {
		roomID, userID, username string
	}
	var lapsed []expired

	m.mu.Lock()
	for roomID, users := range m.rooms {
		for userID, entry := range users {
			if !entry.expires.After(now) {
				delete(users, userID)
				lapsed = append(lapsed, expired{roomID, userID, entry.username})
			}
		}
		if len(users) == 0 {
			delete(m.rooms, roomID)
		}
	}
	m.mu.Unlock()

	for _, e := range lapsed {
		m.events.Dispatch(protocol.Envelope{
			Type: EventTypingExpired,
			Payload: protocol.MustEncodePayload(protocol.UserTypingPayload{
				RoomID:   e.roomID,
				UserID:   e.userID,
				Username: e.username,
			}),
		})
	}
}
