package reaction

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/xtendplex/chat-server/internal/domain/message"
	"github.com/xtendplex/chat-server/internal/domain/room"
	"github.com/xtendplex/chat-server/internal/domain/user"
	"github.com/xtendplex/chat-server/internal/utils/apperrors"
	"github.com/xtendplex/chat-server/internal/utils/chatid"
)

// maxEmojiLength bounds the emoji field; enough for multi-codepoint
// sequences, short enough to reject arbitrary text.
const maxEmojiLength = 32

// ToggleResult reports which branch the toggle took.
type ToggleResult struct {
	Added     bool
	RoomID    string
	MessageID string
	UserID    string
	Emoji     string
	// Reaction is set on the added branch, hydrated with the reactor
	// profile.
	Reaction *Reaction
}

// Service implements the idempotent reaction toggle.
type Service struct {
	repo     Repository
	messages message.Repository
	rooms    room.Repository
	users    user.Repository
	log      zerolog.Logger
}

// NewService wires the reaction service with its collaborators.
func NewService(repo Repository, messages message.Repository, rooms room.Repository, users user.Repository, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		messages: messages,
		rooms:    rooms,
		users:    users,
		log:      log.With().Str("component", "reaction-service").Logger(),
	}
}

// Toggle flips the (messageID, userID, emoji) row: present becomes
// absent, absent becomes present. Repeated invocation alternates state
// rather than erroring. A duplicate-insert race means someone (possibly a
// second connection of the same user) added the row first, so it converts
// to the removal branch.
func (s *Service) Toggle(ctx context.Context, userID, messageID, emoji string) (*ToggleResult, error) {
	if err := validateEmoji(emoji); err != nil {
		return nil, err
	}

	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, m.RoomID, userID); err != nil {
		return nil, err
	}

	result := &ToggleResult{
		RoomID:    m.RoomID,
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	}

	existing, err := s.repo.Find(ctx, messageID, userID, emoji)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if err := s.repo.Delete(ctx, messageID, userID, emoji); err != nil {
			return nil, err
		}
		return result, nil
	}

	r := &Reaction{
		ID:        chatid.New("rx"),
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now().UTC(),
	}
	err = s.repo.Create(ctx, r)
	if errors.Is(err, ErrDuplicate) {
		if err := s.repo.Delete(ctx, messageID, userID, emoji); err != nil {
			return nil, err
		}
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	reactor, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	r.User = reactor
	result.Added = true
	result.Reaction = r
	return result, nil
}

// ListForMessage returns all reactions on a message the requester can see.
func (s *Service) ListForMessage(ctx context.Context, requesterID, messageID string) ([]*Reaction, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, m.RoomID, requesterID); err != nil {
		return nil, err
	}
	return s.repo.ListForMessage(ctx, messageID)
}

func (s *Service) requireMember(ctx context.Context, roomID, userID string) error {
	ok, err := s.rooms.IsMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return room.ErrNotAMember
	}
	return nil
}

func validateEmoji(emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return apperrors.New(apperrors.KindValidation, "emoji is required")
	}
	if utf8.RuneCountInString(emoji) > maxEmojiLength {
		return apperrors.New(apperrors.KindValidation, "emoji too long")
	}
	return nil
}
