package room

import (
	"context"
	"errors"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/xtendplex/chat-server/internal/domain/user"
	"github.com/xtendplex/chat-server/internal/utils/apperrors"
	"github.com/xtendplex/chat-server/internal/utils/chatid"
)

// Service implements room lifecycle, membership administration, and
// direct-room resolution.
type Service struct {
	repo  Repository
	users user.Repository
	// direct-room resolution results, keyed by canonical pair key. Avoids
	// re-running the membership scan on every send within a session.
	directCache *lru.Cache
	log         zerolog.Logger
}

// NewService wires the room service with its collaborators. cacheSize
// bounds the direct-room resolution cache.
func NewService(repo Repository, users user.Repository, cacheSize int, log zerolog.Logger) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = 512
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		repo:        repo,
		users:       users,
		directCache: cache,
		log:         log.With().Str("component", "room-service").Logger(),
	}, nil
}

// Resolve returns the unique direct room for (requesterID, otherID),
// creating it if absent. Concurrent calls for the same pair converge on a
// single room: creation races are settled by the storage uniqueness
// constraint on DirectKey and resolved by re-querying.
func (s *Service) Resolve(ctx context.Context, requesterID, otherID string) (*Room, error) {
	if requesterID == otherID {
		return nil, apperrors.New(apperrors.KindValidation, "cannot open a direct room with yourself")
	}

	key := DirectKey(requesterID, otherID)
	if cached, ok := s.directCache.Get(key); ok {
		return cached.(*Room), nil
	}

	other, err := s.users.GetByID(ctx, otherID)
	if err != nil {
		return nil, err
	}

	if existing, err := s.findDirect(ctx, requesterID, otherID); err != nil {
		return nil, err
	} else if existing != nil {
		s.directCache.Add(key, existing)
		return existing, nil
	}

	requester, err := s.users.GetByID(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	r := &Room{
		ID:             chatid.NewRoomID(),
		Name:           directName(requester.Username, other.Username),
		IsDirect:       true,
		DirectKey:      &key,
		CreatedBy:      requesterID,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	members := []Member{
		{RoomID: r.ID, UserID: requesterID, Role: RoleMember, JoinedAt: now},
		{RoomID: r.ID, UserID: otherID, Role: RoleMember, JoinedAt: now},
	}

	err = s.repo.Create(ctx, r, members)
	if errors.Is(err, ErrDirectKeyConflict) {
		// The other participant created the room first. Re-query and
		// return theirs instead of surfacing the conflict.
		winner, findErr := s.findDirect(ctx, requesterID, otherID)
		if findErr != nil {
			return nil, findErr
		}
		if winner == nil {
			return nil, apperrors.Wrap(apperrors.KindTransient, "direct room vanished after conflict", err)
		}
		s.directCache.Add(key, winner)
		return winner, nil
	}
	if err != nil {
		return nil, err
	}

	s.directCache.Add(key, r)
	return r, nil
}

// findDirect scans the requester's direct rooms for one whose membership
// set is exactly the pair. No write on the hit path.
func (s *Service) findDirect(ctx context.Context, requesterID, otherID string) (*Room, error) {
	candidates, err := s.repo.FindDirectByMember(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	for _, candidate := range candidates {
		memberIDs, err := s.repo.MemberIDs(ctx, candidate.ID)
		if err != nil {
			return nil, err
		}
		if len(memberIDs) != 2 {
			continue
		}
		if DirectKey(memberIDs[0], memberIDs[1]) == DirectKey(requesterID, otherID) {
			return candidate, nil
		}
	}
	return nil, nil
}

// CreateGroup creates a regular room with the creator as admin.
func (s *Service) CreateGroup(ctx context.Context, creatorID, name string, memberIDs []string) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.New(apperrors.KindValidation, "room name is required")
	}

	now := time.Now().UTC()
	r := &Room{
		ID:             chatid.NewRoomID(),
		Name:           name,
		CreatedBy:      creatorID,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	members := []Member{{RoomID: r.ID, UserID: creatorID, Role: RoleAdmin, JoinedAt: now}}
	for _, id := range memberIDs {
		if id == creatorID {
			continue
		}
		if _, err := s.users.GetByID(ctx, id); err != nil {
			return nil, err
		}
		members = append(members, Member{RoomID: r.ID, UserID: id, Role: RoleMember, JoinedAt: now})
	}

	if err := s.repo.Create(ctx, r, members); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the room when the requester is a member.
func (s *Service) Get(ctx context.Context, requesterID, roomID string) (*Room, error) {
	if err := s.RequireMember(ctx, roomID, requesterID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, roomID)
}

// ListForUser returns the rooms the user belongs to.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*Room, error) {
	return s.repo.ListForUser(ctx, userID)
}

// MemberIDs returns the member ids of a room the requester belongs to.
func (s *Service) MemberIDs(ctx context.Context, requesterID, roomID string) ([]string, error) {
	if err := s.RequireMember(ctx, roomID, requesterID); err != nil {
		return nil, err
	}
	return s.repo.MemberIDs(ctx, roomID)
}

// Rename updates the display name of a group room. Admin only. Direct
// rooms cannot be renamed.
func (s *Service) Rename(ctx context.Context, actorID, roomID, name string) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.New(apperrors.KindValidation, "room name is required")
	}
	r, err := s.repo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r.IsDirect {
		return nil, apperrors.New(apperrors.KindValidation, "direct rooms cannot be renamed")
	}
	if err := s.requireAdmin(ctx, roomID, actorID); err != nil {
		return nil, err
	}
	r.Name = name
	r.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// AddMember adds a user to a group room. Admin only; direct room
// membership is immutable after creation.
func (s *Service) AddMember(ctx context.Context, actorID, roomID, userID string) error {
	r, err := s.repo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if r.IsDirect {
		return apperrors.New(apperrors.KindValidation, "direct room membership is fixed")
	}
	if err := s.requireAdmin(ctx, roomID, actorID); err != nil {
		return err
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return err
	}
	return s.repo.AddMember(ctx, Member{
		RoomID:   roomID,
		UserID:   userID,
		Role:     RoleMember,
		JoinedAt: time.Now().UTC(),
	})
}

// RemoveMember removes a user from a group room. Admins can remove
// anyone; members can remove themselves.
func (s *Service) RemoveMember(ctx context.Context, actorID, roomID, userID string) error {
	r, err := s.repo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if r.IsDirect {
		return apperrors.New(apperrors.KindValidation, "direct room membership is fixed")
	}
	if actorID != userID {
		if err := s.requireAdmin(ctx, roomID, actorID); err != nil {
			return err
		}
	}
	return s.repo.RemoveMember(ctx, roomID, userID)
}

// RequireMember returns ErrNotAMember unless the user has an active
// membership. Checked fresh per call so removals take effect immediately.
func (s *Service) RequireMember(ctx context.Context, roomID, userID string) error {
	ok, err := s.repo.IsMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAMember
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, roomID, userID string) error {
	role, err := s.repo.RoleOf(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if role != RoleAdmin {
		return ErrNotAdmin
	}
	return nil
}

func directName(a, b string) string {
	pair := []string{a, b}
	if pair[0] > pair[1] {
		pair[0], pair[1] = pair[1], pair[0]
	}
	return pair[0] + " & " + pair[1]
}
