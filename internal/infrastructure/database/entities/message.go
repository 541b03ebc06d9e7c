package entities

import "time"

// Message represents one persisted chat message. IDs are ULIDs, so the
// (created_at, id) ordering used for backfill is stable even when two
// rows share a timestamp.
type Message struct {
	ID        string  `gorm:"type:varchar(40);primaryKey"`
	RoomID    string  `gorm:"type:varchar(40);index:idx_message_room_created;not null"`
	UserID    string  `gorm:"type:varchar(40);index;not null"`
	Content   string  `gorm:"type:text"`
	ParentID  *string `gorm:"type:varchar(40);index"`
	Edited    bool    `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_message_room_created"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Message) TableName() string {
	return "messages"
}

// Attachment is the persisted file descriptor for a message.
type Attachment struct {
	ID        string    `gorm:"type:varchar(40);primaryKey"`
	MessageID string    `gorm:"type:varchar(40);index;not null"`
	FilePath  string    `gorm:"type:varchar(512);not null"`
	FileType  string    `gorm:"type:varchar(64)"`
	FileName  string    `gorm:"type:varchar(255)"`
	FileSize  int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Attachment) TableName() string {
	return "attachments"
}
