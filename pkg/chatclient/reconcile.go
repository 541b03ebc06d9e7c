package chatclient

import (
	"sort"
	"sync"

	"github.com/xtendplex/chat-server/pkg/protocol"
)

// Timeline is the reconciled message history of one room. Merges are
// idempotent: duplicates collapse by message id, edits apply
// last-write-wins by updated_at, and messages stay ordered by
// (created_at, id) regardless of arrival order. Replaying a backfill
// over live events, or the reverse, converges to the same history.
type Timeline struct {
	mu       sync.RWMutex
	byID     map[string]*protocol.Message
	ordered  []*protocol.Message
	tombsSet map[string]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{
		byID:     make(map[string]*protocol.Message),
		tombsSet: make(map[string]struct{}),
	}
}

// Add merges one message. Duplicates and deleted ids are ignored.
func (t *Timeline) Add(m *protocol.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, deleted := t.tombsSet[m.ID]; deleted {
		return
	}
	if existing, ok := t.byID[m.ID]; ok {
		// Same id seen twice; keep the newer revision.
		if m.UpdatedAt.After(existing.UpdatedAt) {
			*existing = *m
		}
		return
	}
	copied := *m
	t.byID[m.ID] = &copied
	t.ordered = append(t.ordered, &copied)
	t.sortLocked()
}

// ApplyUpdate merges an edit. An update for an unknown id is stored as
// a new entry, which covers an edit arriving before its backfilled
// original.
func (t *Timeline) ApplyUpdate(m *protocol.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, deleted := t.tombsSet[m.ID]; deleted {
		return
	}
	existing, ok := t.byID[m.ID]
	if !ok {
		copied := *m
		t.byID[m.ID] = &copied
		t.ordered = append(t.ordered, &copied)
		t.sortLocked()
		return
	}
	if m.UpdatedAt.Before(existing.UpdatedAt) {
		return
	}
	*existing = *m
}

// ApplyDelete removes a message and remembers the id so late arrivals
// of the deleted message do not resurrect it.
func (t *Timeline) ApplyDelete(messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tombsSet[messageID] = struct{}{}
	if _, ok := t.byID[messageID]; !ok {
		return
	}
	delete(t.byID, messageID)
	for i, m := range t.ordered {
		if m.ID == messageID {
			t.ordered = append(t.ordered[:i], t.ordered[i+1:]...)
			break
		}
	}
}

// Messages returns a snapshot ordered by (created_at, id).
func (t *Timeline) Messages() []*protocol.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*protocol.Message, 0, len(t.ordered))
	for _, m := range t.ordered {
		copied := *m
		out = append(out, &copied)
	}
	return out
}

// Len returns the number of live messages.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ordered)
}

func (t *Timeline) sortLocked() {
	sort.SliceStable(t.ordered, func(i, j int) bool {
		a, b := t.ordered[i], t.ordered[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
