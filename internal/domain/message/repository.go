package message

import (
	"context"

	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

// ErrNotFound is returned when the message does not exist.
var ErrNotFound = apperrors.New(apperrors.KindNotFound, "message not found")

// Repository exposes data access for messages and attachment metadata.
type Repository interface {
	Create(ctx context.Context, m *Message) error
	CreateAttachments(ctx context.Context, attachments []Attachment) error
	GetByID(ctx context.Context, id string) (*Message, error)
	Update(ctx context.Context, m *Message) error
	Delete(ctx context.Context, id string) error
	// ListAfter returns up to limit messages in roomID with id greater
	// than afterID, ordered by (created_at, id). An empty afterID starts
	// from the beginning.
	ListAfter(ctx context.Context, roomID, afterID string, limit int) ([]*Message, error)
}
