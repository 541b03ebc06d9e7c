// Package message persists chat messages and attachments in PostgreSQL.
package message

import (
	"context"
	"errors"

	"gorm.io/gorm"

	domain "github.com/xtendplex/chat-server/internal/domain/message"
	"github.com/xtendplex/chat-server/internal/infrastructure/database/entities"
	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

// Repository handles message persistence.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, m *domain.Message) error {
	err := r.db.WithContext(ctx).Create(mapMessage(m)).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "create message", err)
	}
	return nil
}

func (r *Repository) CreateAttachments(ctx context.Context, attachments []domain.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}
	rows := make([]entities.Attachment, 0, len(attachments))
	for _, a := range attachments {
		rows = append(rows, entities.Attachment{
			ID:        a.ID,
			MessageID: a.MessageID,
			FilePath:  a.FilePath,
			FileType:  a.FileType,
			FileName:  a.FileName,
			FileSize:  a.FileSize,
		})
	}
	err := r.db.WithContext(ctx).Create(&rows).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "create attachments", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var entity entities.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "get message by id", err)
	}
	m := mapEntity(entity)
	if err := r.loadAttachments(ctx, []*domain.Message{&m}); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) Update(ctx context.Context, m *domain.Message) error {
	res := r.db.WithContext(ctx).Model(&entities.Message{}).
		Where("id = ?", m.ID).
		Updates(map[string]any{
			"content":    m.Content,
			"edited":     m.Edited,
			"updated_at": m.UpdatedAt,
		})
	if res.Error != nil {
		return apperrors.Wrap(apperrors.KindInternal, "update message", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&entities.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&entities.Reaction{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entities.Message{}).Error
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "delete message", err)
	}
	return nil
}

func (r *Repository) ListAfter(ctx context.Context, roomID, afterID string, limit int) ([]*domain.Message, error) {
	q := r.db.WithContext(ctx).Where("room_id = ?", roomID)
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	var rows []entities.Message
	err := q.Order("created_at asc, id asc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list messages", err)
	}

	out := make([]*domain.Message, 0, len(rows))
	for _, row := range rows {
		m := mapEntity(row)
		out = append(out, &m)
	}
	if err := r.loadAttachments(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) loadAttachments(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(msgs))
	byID := make(map[string]*domain.Message, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
		byID[m.ID] = m
	}
	var rows []entities.Attachment
	err := r.db.WithContext(ctx).Where("message_id IN ?", ids).Find(&rows).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "load attachments", err)
	}
	for _, row := range rows {
		m := byID[row.MessageID]
		if m == nil {
			continue
		}
		m.Attachments = append(m.Attachments, domain.Attachment{
			ID:        row.ID,
			MessageID: row.MessageID,
			FilePath:  row.FilePath,
			FileType:  row.FileType,
			FileName:  row.FileName,
			FileSize:  row.FileSize,
		})
	}
	return nil
}

func mapMessage(m *domain.Message) *entities.Message {
	return &entities.Message{
		ID:       m.ID,
		RoomID:   m.RoomID,
		UserID:   m.UserID,
		Content:  m.Content,
		ParentID: m.ParentID,
		Edited:   m.Edited,
	}
}

func mapEntity(entity entities.Message) domain.Message {
	return domain.Message{
		ID:        entity.ID,
		RoomID:    entity.RoomID,
		UserID:    entity.UserID,
		Content:   entity.Content,
		ParentID:  entity.ParentID,
		Edited:    entity.Edited,
		CreatedAt: entity.CreatedAt,
		UpdatedAt: entity.UpdatedAt,
	}
}
