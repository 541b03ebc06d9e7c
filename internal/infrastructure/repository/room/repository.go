// Package room persists rooms and memberships in PostgreSQL.
package room

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	domain "github.com/xtendplex/chat-server/internal/domain/room"
	"github.com/xtendplex/chat-server/internal/infrastructure/database/entities"
	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

const pgUniqueViolation = "23505"

// Repository handles room and membership persistence.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists the room and its initial memberships in one
// transaction. A unique violation on the direct key surfaces as
// ErrDirectKeyConflict so the resolver can yield to the race winner.
func (r *Repository) Create(ctx context.Context, room *domain.Room, members []domain.Member) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(mapRoom(room)).Error; err != nil {
			return err
		}
		for _, m := range members {
			if err := tx.Create(mapMember(m)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDirectKeyConflict
		}
		return apperrors.Wrap(apperrors.KindInternal, "create room", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	var entity entities.Room
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "get room by id", err)
	}
	room := mapEntity(entity)
	return &room, nil
}

func (r *Repository) Update(ctx context.Context, room *domain.Room) error {
	res := r.db.WithContext(ctx).Model(&entities.Room{}).
		Where("id = ?", room.ID).
		Updates(map[string]any{
			"name":             room.Name,
			"last_activity_at": room.LastActivityAt,
			"last_message":     room.LastMessage,
		})
	if res.Error != nil {
		return apperrors.Wrap(apperrors.KindInternal, "update room", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&entities.RoomMember{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entities.Room{}).Error
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "delete room", err)
	}
	return nil
}

func (r *Repository) ListForUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	var rows []entities.Room
	err := r.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ?", userID).
		Order("rooms.last_activity_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list rooms for user", err)
	}
	return mapEntities(rows), nil
}

func (r *Repository) FindDirectByMember(ctx context.Context, userID string) ([]*domain.Room, error) {
	var rows []entities.Room
	err := r.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ? AND rooms.is_direct", userID).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "find direct rooms", err)
	}
	return mapEntities(rows), nil
}

func (r *Repository) MemberIDs(ctx context.Context, roomID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entities.RoomMember{}).
		Where("room_id = ?", roomID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "list member ids", err)
	}
	return ids, nil
}

func (r *Repository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindInternal, "check membership", err)
	}
	return count > 0, nil
}

func (r *Repository) RoleOf(ctx context.Context, roomID, userID string) (domain.Role, error) {
	var entity entities.RoomMember
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrNotAMember
		}
		return "", apperrors.Wrap(apperrors.KindInternal, "get member role", err)
	}
	return domain.Role(entity.Role), nil
}

func (r *Repository) AddMember(ctx context.Context, m domain.Member) error {
	err := r.db.WithContext(ctx).Create(mapMember(m)).Error
	if err != nil {
		if isUniqueViolation(err) {
			return nil // already a member
		}
		return apperrors.Wrap(apperrors.KindInternal, "add member", err)
	}
	return nil
}

func (r *Repository) RemoveMember(ctx context.Context, roomID, userID string) error {
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&entities.RoomMember{}).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "remove member", err)
	}
	return nil
}

func (r *Repository) TouchActivity(ctx context.Context, roomID, preview string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&entities.Room{}).
		Where("id = ?", roomID).
		Updates(map[string]any{
			"last_activity_at": at,
			"last_message":     preview,
		}).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "touch room activity", err)
	}
	return nil
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

func mapRoom(room *domain.Room) *entities.Room {
	return &entities.Room{
		ID:             room.ID,
		Name:           room.Name,
		IsDirect:       room.IsDirect,
		DirectKey:      room.DirectKey,
		CreatedBy:      room.CreatedBy,
		LastActivityAt: room.LastActivityAt,
		LastMessage:    room.LastMessage,
	}
}

func mapMember(m domain.Member) *entities.RoomMember {
	return &entities.RoomMember{
		RoomID:   m.RoomID,
		UserID:   m.UserID,
		Role:     string(m.Role),
		JoinedAt: m.JoinedAt,
	}
}

func mapEntity(entity entities.Room) domain.Room {
	return domain.Room{
		ID:             entity.ID,
		Name:           entity.Name,
		IsDirect:       entity.IsDirect,
		DirectKey:      entity.DirectKey,
		CreatedBy:      entity.CreatedBy,
		LastActivityAt: entity.LastActivityAt,
		LastMessage:    entity.LastMessage,
		CreatedAt:      entity.CreatedAt,
		UpdatedAt:      entity.UpdatedAt,
	}
}

func mapEntities(rows []entities.Room) []*domain.Room {
	out := make([]*domain.Room, 0, len(rows))
	for _, row := range rows {
		room := mapEntity(row)
		out = append(out, &room)
	}
	return out
}
