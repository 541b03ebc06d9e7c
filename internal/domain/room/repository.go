package room

import (
	"context"
	"time"

	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

var (
	// ErrNotFound is returned when the room does not exist.
	ErrNotFound = apperrors.New(apperrors.KindNotFound, "room not found")
	// ErrNotAMember is returned when a user acts on a room they have no
	// active membership in. Never retried.
	ErrNotAMember = apperrors.New(apperrors.KindForbidden, "not a member of this room")
	// ErrNotAdmin is returned when a member attempts an admin-only change.
	ErrNotAdmin = apperrors.New(apperrors.KindForbidden, "requires room admin role")
	// ErrDirectKeyConflict signals the storage uniqueness constraint on
	// the direct pair key fired. The resolver treats it as "the other
	// request won the race", never as a caller-visible failure.
	ErrDirectKeyConflict = apperrors.New(apperrors.KindConflict, "direct room already exists for pair")
)

// Repository exposes data access for rooms and memberships.
type Repository interface {
	// Create persists the room and its initial memberships atomically.
	// Returns ErrDirectKeyConflict when the direct pair key is taken.
	Create(ctx context.Context, r *Room, members []Member) error
	GetByID(ctx context.Context, id string) (*Room, error)
	Update(ctx context.Context, r *Room) error
	Delete(ctx context.Context, id string) error

	ListForUser(ctx context.Context, userID string) ([]*Room, error)
	// FindDirectByMember returns the direct rooms the user belongs to.
	FindDirectByMember(ctx context.Context, userID string) ([]*Room, error)

	MemberIDs(ctx context.Context, roomID string) ([]string, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	RoleOf(ctx context.Context, roomID, userID string) (Role, error)
	AddMember(ctx context.Context, m Member) error
	RemoveMember(ctx context.Context, roomID, userID string) error

	// TouchActivity bumps last-activity and the cached last-message
	// summary after a successful send.
	TouchActivity(ctx context.Context, roomID, preview string, at time.Time) error
}
