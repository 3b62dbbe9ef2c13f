package model

import "time"

// Role says who produced a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatMessage is one immutable entry of a user's conversation history.
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index:idx_chat_history,priority:1;not null"`
	Role      Role      `gorm:"type:varchar(16);not null"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index:idx_chat_history,priority:2;autoCreateTime"`
}
