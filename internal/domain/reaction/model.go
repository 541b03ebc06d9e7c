package reaction

import (
	"time"

	"github.com/xtendplex/chat-server/internal/domain/user"
)

// Reaction is one (message, user, emoji) row. Presence of the row means
// "reacted"; the toggle operation is defined entirely on that invariant.
type Reaction struct {
	ID        string     `json:"id"`
	MessageID string     `json:"message_id"`
	UserID    string     `json:"user_id"`
	Emoji     string     `json:"emoji"`
	CreatedAt time.Time  `json:"created_at"`
	User      *user.User `json:"user,omitempty"`
}
