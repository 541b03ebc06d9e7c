package room

import (
	"sort"
	"strings"
	"time"
)

// Role grants room-scoped permissions.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Room is a named conversation channel: a regular group or a two-party
// direct channel. Direct rooms carry a canonical pair key so storage can
// enforce one room per unordered user pair.
type Room struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	IsDirect       bool      `json:"is_direct"`
	DirectKey      *string   `json:"-"`
	CreatedBy      string    `json:"created_by"`
	LastActivityAt time.Time `json:"last_activity_at"`
	LastMessage    string    `json:"last_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Member links a user to a room with a role.
type Member struct {
	RoomID   string    `json:"room_id"`
	UserID   string    `json:"user_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// DirectKey returns the canonical key for the unordered pair of user ids.
// Both participants produce the same key regardless of argument order,
// which is what the storage uniqueness constraint hangs on.
func DirectKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}
