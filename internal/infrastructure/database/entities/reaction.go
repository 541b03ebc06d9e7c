package entities

import "time"

// Reaction is one (message, user, emoji) row. The composite uniqueness
// is what turns a duplicate insert under a toggle race into a conflict
// the service layer can convert into a removal.
type Reaction struct {
	ID        string    `gorm:"type:varchar(40);primaryKey"`
	MessageID string    `gorm:"type:varchar(40);uniqueIndex:idx_reaction_identity;not null"`
	UserID    string    `gorm:"type:varchar(40);uniqueIndex:idx_reaction_identity;not null"`
	Emoji     string    `gorm:"type:varchar(64);uniqueIndex:idx_reaction_identity;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Reaction) TableName() string {
	return "reactions"
}
