// Package user persists user profiles and presence in PostgreSQL.
package user

import (
	"context"
	"errors"

	"gorm.io/gorm"

	domain "github.com/xtendplex/chat-server/internal/domain/user"
	"github.com/xtendplex/chat-server/internal/infrastructure/database/entities"
	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

// Repository handles user persistence.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var entity entities.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "get user by id", err)
	}
	u := mapEntity(entity)
	return &u, nil
}

func (r *Repository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	if len(ids) == 0 {
		return map[string]*domain.User{}, nil
	}
	var rows []entities.User
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "get users by ids", err)
	}
	out := make(map[string]*domain.User, len(rows))
	for _, row := range rows {
		u := mapEntity(row)
		out[u.ID] = &u
	}
	return out, nil
}

func (r *Repository) List(ctx context.Context) ([]*domain.User, error) {
	var rows []entities.User
	err := r.db.WithContext(ctx).Order("username asc").Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list users", err)
	}
	out := make([]*domain.User, 0, len(rows))
	for _, row := range rows {
		u := mapEntity(row)
		out = append(out, &u)
	}
	return out, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	res := r.db.WithContext(ctx).Model(&entities.User{}).
		Where("id = ?", id).
		Update("status", string(status))
	if res.Error != nil {
		return apperrors.Wrap(apperrors.KindInternal, "update user status", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func mapEntity(entity entities.User) domain.User {
	return domain.User{
		ID:        entity.ID,
		Username:  entity.Username,
		Avatar:    entity.Avatar,
		Status:    domain.Status(entity.Status),
		CreatedAt: entity.CreatedAt,
		UpdatedAt: entity.UpdatedAt,
	}
}
