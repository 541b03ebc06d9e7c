package message

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/xtendplex/chat-server/internal/domain/room"
	"github.com/xtendplex/chat-server/internal/domain/user"
	"github.com/xtendplex/chat-server/internal/utils/apperrors"
	"github.com/xtendplex/chat-server/internal/utils/chatid"
)

// defaultListLimit caps a backfill page when the caller passes no limit.
const defaultListLimit = 50

// AttachmentInput is the client-supplied attachment descriptor.
type AttachmentInput struct {
	FilePath string `json:"file_path"`
	FileType string `json:"file_type"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

// Service is the message delivery pipeline minus the fan-out step: it
// validates, persists, and hydrates. The caller broadcasts the result
// while holding the room's send lock so delivery order matches persist
// order.
type Service struct {
	repo       Repository
	rooms      room.Repository
	users      user.Repository
	maxContent int
	log        zerolog.Logger
}

// NewService wires the message service with its collaborators.
func NewService(repo Repository, rooms room.Repository, users user.Repository, maxContent int, log zerolog.Logger) *Service {
	if maxContent <= 0 {
		maxContent = 8192
	}
	return &Service{
		repo:       repo,
		rooms:      rooms,
		users:      users,
		maxContent: maxContent,
		log:        log.With().Str("component", "message-service").Logger(),
	}
}

// Send validates and persists a message, then returns it hydrated with
// the author profile and attachment metadata. Membership is re-checked on
// every send so removals take effect immediately.
func (s *Service) Send(ctx context.Context, senderID, roomID, content string, parentID *string, attachments []AttachmentInput) (*Message, error) {
	if err := s.requireMember(ctx, roomID, senderID); err != nil {
		return nil, err
	}

	content = strings.TrimRight(content, "\n ")
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "message content is empty")
	}
	if len(content) > s.maxContent {
		return nil, apperrors.New(apperrors.KindValidation, "message content too long")
	}

	if parentID != nil {
		parent, err := s.repo.GetByID(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.RoomID != roomID {
			return nil, apperrors.New(apperrors.KindValidation, "parent message belongs to another room")
		}
	}

	now := time.Now().UTC()
	m := &Message{
		ID:        chatid.NewMessageID(),
		RoomID:    roomID,
		UserID:    senderID,
		Content:   content,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}

	if len(attachments) > 0 {
		rows := make([]Attachment, 0, len(attachments))
		for _, a := range attachments {
			rows = append(rows, Attachment{
				ID:        chatid.New("att"),
				MessageID: m.ID,
				FilePath:  a.FilePath,
				FileType:  a.FileType,
				FileName:  a.FileName,
				FileSize:  a.FileSize,
			})
		}
		if err := s.repo.CreateAttachments(ctx, rows); err != nil {
			return nil, err
		}
		m.Attachments = rows
	}

	if err := s.rooms.TouchActivity(ctx, roomID, m.Preview(), now); err != nil {
		// The message is durable; a stale summary is repairable on the
		// next send.
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("update room activity")
	}

	if err := s.hydrate(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Update edits message content. Allowed for the author or a room admin.
func (s *Service) Update(ctx context.Context, actorID, messageID, content string) (*Message, error) {
	content = strings.TrimRight(content, "\n ")
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.New(apperrors.KindValidation, "message content is empty")
	}
	if len(content) > s.maxContent {
		return nil, apperrors.New(apperrors.KindValidation, "message content too long")
	}

	m, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAuthorOrAdmin(ctx, m, actorID); err != nil {
		return nil, err
	}

	m.Content = content
	m.Edited = true
	m.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete removes a message. Allowed for the author or a room admin.
// Returns the room id so the caller can broadcast the deletion.
func (s *Service) Delete(ctx context.Context, actorID, messageID string) (string, error) {
	m, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return "", err
	}
	if err := s.requireAuthorOrAdmin(ctx, m, actorID); err != nil {
		return "", err
	}
	if err := s.repo.Delete(ctx, messageID); err != nil {
		return "", err
	}
	return m.RoomID, nil
}

// ListAfter is the backfill query clients run on reconnect: messages in
// roomID after the last-seen id, in (created_at, id) order. A
// non-positive limit falls back to the default page size.
func (s *Service) ListAfter(ctx context.Context, requesterID, roomID, afterID string, limit int) ([]*Message, error) {
	if err := s.requireMember(ctx, roomID, requesterID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	msgs, err := s.repo.ListAfter(ctx, roomID, afterID, limit)
	if err != nil {
		return nil, err
	}
	if err := s.hydrateAll(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// RoomOf resolves the room a message belongs to.
func (s *Service) RoomOf(ctx context.Context, messageID string) (string, error) {
	m, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return "", err
	}
	return m.RoomID, nil
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

func (s *Service) requireAuthorOrAdmin(ctx context.Context, m *Message, actorID string) error {
	if m.UserID == actorID {
		return s.requireMember(ctx, m.RoomID, actorID)
	}
	role, err := s.rooms.RoleOf(ctx, m.RoomID, actorID)
	if err != nil {
		return err
	}
	if role != room.RoleAdmin {
		return apperrors.New(apperrors.KindForbidden, "not the author or a room admin")
	}
	return nil
}

func (s *Service) hydrate(ctx context.Context, m *Message) error {
	author, err := s.users.GetByID(ctx, m.UserID)
	if err != nil {
		return err
	}
	m.Author = author
	return nil
}

func (s *Service) hydrateAll(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(msgs))
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		ids = append(ids, m.UserID)
	}
	authors, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		m.Author = authors[m.UserID]
	}
	return nil
}
