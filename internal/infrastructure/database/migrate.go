package database

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/xtendplex/chat-server/internal/infrastructure/database/entities"
)

// AutoMigrate applies database schema changes.
func AutoMigrate(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	err := db.WithContext(ctx).AutoMigrate(
		&entities.User{},
		&entities.Room{},
		&entities.RoomMember{},
		&entities.Message{},
		&entities.Attachment{},
		&entities.Reaction{},
	)
	if err != nil {
		return err
	}
	log.Info().Msg("applied chat schema migrations")
	return nil
}
