package chatid

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyOnce sync.Once
	entropyMu   sync.Mutex
	entropy     *ulid.MonotonicEntropy
)

func newEntropy() *ulid.MonotonicEntropy {
	entropyOnce.Do(func() {
		source := rand.NewSource(time.Now().UnixNano())
		entropy = ulid.Monotonic(rand.New(source), 0)
	})
	return entropy
}

// New returns a prefixed ULID string, e.g. "msg_01h...".
// IDs generated by one process sort lexicographically by creation
// order, which is what message ordering within a room relies on.
func New(prefix string) string {
	gen := newEntropy()
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), gen)
	entropyMu.Unlock()
	return prefix + "_" + strings.ToLower(id.String())
}

// NewMessageID returns a msg_* ULID.
func NewMessageID() string { return New("msg") }

// NewRoomID returns a room_* ULID.
func NewRoomID() string { return New("room") }

// NewConnectionID returns a conn_* ULID.
func NewConnectionID() string { return New("conn") }

// IsValid reports whether the string is a prefixed ULID.
func IsValid(prefix, value string) bool {
	if !strings.HasPrefix(value, prefix+"_") {
		return false
	}
	_, err := Parse(prefix, value)
	return err == nil
}

// Parse strips the prefix and returns the ULID.
func Parse(prefix, value string) (ulid.ULID, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, prefix+"_")
	return ulid.Parse(value)
}
