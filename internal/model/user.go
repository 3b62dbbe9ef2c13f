package model

// Channel identifies the messaging network a user talks to the bot through.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
)

// User is a person known by their identifier in an external messaging system.
type User struct {
	ID         uint    `gorm:"primaryKey"`
	Channel    Channel `gorm:"type:varchar(32);uniqueIndex:idx_users_identity;not null"`
	ExternalID string  `gorm:"uniqueIndex:idx_users_identity;not null"`
	Name       string
}
