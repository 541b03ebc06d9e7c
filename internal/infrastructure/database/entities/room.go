package entities

import "time"

// Room represents a persisted conversation channel. DirectKey is the
// canonical sorted user pair for direct rooms; the partial uniqueness
// comes from the index being on a nullable column, so group rooms
// (NULL key) never collide.
type Room struct {
	ID             string  `gorm:"type:varchar(40);primaryKey"`
	Name           string  `gorm:"type:varchar(128);not null"`
	IsDirect       bool    `gorm:"not null;default:false"`
	DirectKey      *string `gorm:"type:varchar(88);uniqueIndex"`
	CreatedBy      string  `gorm:"type:varchar(40);not null"`
	LastActivityAt time.Time
	LastMessage    string    `gorm:"type:varchar(160)"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (Room) TableName() string {
	return "rooms"
}

// RoomMember links one user to one room with a role.
type RoomMember struct {
	RoomID   string    `gorm:"type:varchar(40);primaryKey"`
	UserID   string    `gorm:"type:varchar(40);primaryKey;index"`
	Role     string    `gorm:"type:varchar(16);not null;default:'member'"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

func (RoomMember) TableName() string {
	return "room_members"
}
