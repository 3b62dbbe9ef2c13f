package model

import "time"

// ErrorLog is an append-only record of a recoverable failure.
type ErrorLog struct {
	ID             uint      `gorm:"primaryKey"`
	Message        string    `gorm:"type:text;not null"`
	Stack          string    `gorm:"type:text"`
	AdditionalInfo string    `gorm:"type:text"`
	Timestamp      time.Time `gorm:"autoCreateTime"`
}
