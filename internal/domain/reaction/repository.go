package reaction

import (
	"context"

	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

var (
	// ErrNotFound is returned when no reaction row exists for the tuple.
	ErrNotFound = apperrors.New(apperrors.KindNotFound, "reaction not found")
	// ErrDuplicate signals the uniqueness constraint on
	// (message_id, user_id, emoji) fired during insert. The toggle engine
	// converts it to the removal branch.
	ErrDuplicate = apperrors.New(apperrors.KindConflict, "reaction already exists")
)

// Repository exposes data access for reactions.
type Repository interface {
	Find(ctx context.Context, messageID, userID, emoji string) (*Reaction, error)
	// Create returns ErrDuplicate when the tuple already has a row.
	Create(ctx context.Context, r *Reaction) error
	Delete(ctx context.Context, messageID, userID, emoji string) error
	ListForMessage(ctx context.Context, messageID string) ([]*Reaction, error)
}
