package model

import "time"

// Reminder is a message scheduled for delivery to a user.
// Sent flips from false to true exactly once, when a sweep claims it.
type Reminder struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Message   string    `gorm:"type:text;not null"`
	RemindAt  time.Time `gorm:"index:idx_reminders_due,priority:2;not null"`
	Sent      bool      `gorm:"index:idx_reminders_due,priority:1;not null;default:false"`
	Context   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
