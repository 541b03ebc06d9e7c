package chatclient

import (
	"sort"
	"sync"

	"github.com/xtendplex/chat-server/pkg/protocol"
)

// Local event types emitted by the client itself, alongside the server
// event types from the protocol package.
const (
	// EventConnected fires after a successful handshake, including
	// after an automatic reconnect. Rooms have been re-joined by the
	// time it fires.
	EventConnected protocol.EventType = "connected"
	// EventDisconnected fires when the client gives up: explicit
	// teardown, failed refresh, or exhausted reconnect attempts.
	EventDisconnected protocol.EventType = "disconnected"
)

// Handler receives one decoded event.
type Handler func(protocol.Envelope)

// Dispatcher is a multi-subscriber event bus. Handlers for one event
// type run in subscription order; an unsubscribe only affects later
// dispatches.
type Dispatcher struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[protocol.EventType]map[int]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[protocol.EventType]map[int]Handler)}
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function.
func (d *Dispatcher) Subscribe(t protocol.EventType, h Handler) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	if d.handlers[t] == nil {
		d.handlers[t] = make(map[int]Handler)
	}
	d.handlers[t][id] = h
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.handlers[t], id)
	}
}

// Dispatch delivers the envelope to every handler subscribed to its
// type, synchronously on the caller's goroutine.
func (d *Dispatcher) Dispatch(env protocol.Envelope) {
	d.mu.RLock()
	subs := d.handlers[env.Type]
	ids := make([]int, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ordered := make([]Handler, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, subs[id])
	}
	d.mu.RUnlock()

	for _, h := range ordered {
		h(env)
	}
}
