package message

import (
	"time"

	"github.com/xtendplex/chat-server/internal/domain/user"
)

// Message is the immutable-identity chat message. The id is assigned
// server-side exactly once and is what clients deduplicate on; within a
// room ids sort by creation order.
type Message struct {
	ID          string       `json:"id"`
	RoomID      string       `json:"room_id"`
	UserID      string       `json:"user_id"`
	Content     string       `json:"content"`
	ParentID    *string      `json:"parent_id,omitempty"`
	Edited      bool         `json:"edited"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Author      *user.User   `json:"author,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is file metadata hanging off a message. The bytes live in
// external storage; only the descriptor is persisted here.
type Attachment struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	FilePath  string `json:"file_path"`
	FileType  string `json:"file_type"`
	FileName  string `json:"file_name"`
	FileSize  int64  `json:"file_size"`
}

// Preview returns the truncated content used for the room's cached
// last-message summary.
func (m *Message) Preview() string {
	const max = 120
	if len(m.Content) <= max {
		return m.Content
	}
	return m.Content[:max]
}
