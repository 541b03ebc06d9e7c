package chatid

import (
	"sort"
	"testing"
)

func TestNewMessageID(t *testing.T) {
	id := NewMessageID()
	if !IsValid("msg", id) {
		t.Fatalf("NewMessageID() = %q, want valid msg_* ULID", id)
	}
}

func TestNewIsSortableByCreationOrder(t *testing.T) {
	const n = 200
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, NewMessageID())
	}

	sorted := append([]string{}, ids...)
	sort.Strings(sorted)
	for i := range ids {
		if ids[i] != sorted[i] {
			t.Fatalf("ids not monotonic at index %d: %q after %q", i, ids[i], sorted[i])
		}
	}
}

func TestParseRejectsWrongPrefix(t *testing.T) {
	id := NewRoomID()
	if IsValid("msg", id) {
		t.Fatalf("room id %q accepted as message id", id)
	}
}
