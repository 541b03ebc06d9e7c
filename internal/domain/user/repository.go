package user

import (
	"context"

	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

// ErrNotFound is returned when the referenced user does not exist.
var ErrNotFound = apperrors.New(apperrors.KindNotFound, "user not found")

// Repository exposes data access for User entities.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*User, error)
	List(ctx context.Context) ([]*User, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}
