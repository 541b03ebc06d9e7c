package entities

import "time"

// User represents the persisted user profile and presence state.
type User struct {
	ID        string    `gorm:"type:varchar(40);primaryKey"`
	Username  string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	Avatar    string    `gorm:"type:varchar(255)"`
	Status    string    `gorm:"type:varchar(16);not null;default:'offline'"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
