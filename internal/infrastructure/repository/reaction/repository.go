// Package reaction persists message reactions in PostgreSQL.
package reaction

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	domain "github.com/xtendplex/chat-server/internal/domain/reaction"
	"github.com/xtendplex/chat-server/internal/infrastructure/database/entities"
	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

const pgUniqueViolation = "23505"

// Repository handles reaction persistence.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Find(ctx context.Context, messageID, userID, emoji string) (*domain.Reaction, error) {
	var entity entities.Reaction
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "find reaction", err)
	}
	reaction := mapEntity(entity)
	return &reaction, nil
}

// Create relies on the (message_id, user_id, emoji) uniqueness
// constraint; a violation comes back as ErrDuplicate so the toggle
// engine can flip to removal.
func (r *Repository) Create(ctx context.Context, reaction *domain.Reaction) error {
	err := r.db.WithContext(ctx).Create(&entities.Reaction{
		ID:        reaction.ID,
		MessageID: reaction.MessageID,
		UserID:    reaction.UserID,
		Emoji:     reaction.Emoji,
	}).Error
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return apperrors.Wrap(apperrors.KindInternal, "create reaction", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, messageID, userID, emoji string) error {
	res := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&entities.Reaction{})
	if res.Error != nil {
		return apperrors.Wrap(apperrors.KindInternal, "delete reaction", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) ListForMessage(ctx context.Context, messageID string) ([]*domain.Reaction, error) {
	var rows []entities.Reaction
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list reactions", err)
	}
	out := make([]*domain.Reaction, 0, len(rows))
	for _, row := range rows {
		reaction := mapEntity(row)
		out = append(out, &reaction)
	}
	return out, nil
}

// isUniqueViolation matches a unique-constraint failure from any of the
// layers it can arrive through: gorm's translated sentinel, the pgx
// driver behind gorm.io/driver/postgres, or lib/pq.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	return false
}

func mapEntity(entity entities.Reaction) domain.Reaction {
	return domain.Reaction{
		ID:        entity.ID,
		MessageID: entity.MessageID,
		UserID:    entity.UserID,
		Emoji:     entity.Emoji,
		CreatedAt: entity.CreatedAt,
	}
}
