package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pathakanu/nudge/internal/model"
	"gorm.io/gorm"
)

// ErrUserNotFound is returned when a user lookup has no match.
var ErrUserNotFound = errors.New("user not found")

// Store exposes the queries the bot and the reminder scheduler need.
// Every call reads through to the database; nothing is cached.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// FindOrCreateUser returns the user with the given identity, creating it on first contact.
// A display name is only recorded at creation time.
func (s *Store) FindOrCreateUser(ctx context.Context, channel model.Channel, externalID, name string) (*model.User, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external id is required")
	}

	var user model.User
	err := s.db.WithContext(ctx).
		Where(model.User{Channel: channel, ExternalID: externalID}).
		Attrs(model.User{Name: name}).
		FirstOrCreate(&user).Error
	if err == nil {
		return &user, nil
	}

	// A concurrent first message may have inserted the row between our select and insert.
	if lookupErr := s.db.WithContext(ctx).
		Where("channel = ? AND external_id = ?", channel, externalID).
		First(&user).Error; lookupErr == nil {
		return &user, nil
	}
	return nil, fmt.Errorf("find or create user: %w", err)
}

// FindUser loads a user by primary key.
func (s *Store) FindUser(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	return &user, nil
}

// ListUsers returns every known user ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SaveChatMessage appends an entry to the user's history.
func (s *Store) SaveChatMessage(ctx context.Context, userID uint, role model.Role, text string) error {
	msg := &model.ChatMessage{UserID: userID, Role: role, Text: text}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("save %s message: %w", role, err)
	}
	return nil
}

// History returns the user's messages in the order they were exchanged.
func (s *Store) History(ctx context.Context, userID uint) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return messages, nil
}

// CreateReminder persists a new unsent reminder.
func (s *Store) CreateReminder(ctx context.Context, reminder *model.Reminder) error {
	reminder.Sent = false
	reminder.RemindAt = reminder.RemindAt.UTC()
	if err := s.db.WithContext(ctx).Create(reminder).Error; err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

// DueReminders returns unsent reminders scheduled at or before now.
func (s *Store) DueReminders(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	var reminders []model.Reminder
	if err := s.db.WithContext(ctx).
		Where("sent = ? AND remind_at <= ?", false, now.UTC()).
		Order("remind_at ASC, id ASC").
		Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("load due reminders: %w", err)
	}
	return reminders, nil
}

// ClaimReminder marks a reminder as sent only if it was still unsent.
// It reports whether this call performed the transition.
func (s *Store) ClaimReminder(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&model.Reminder{}).
		Where("id = ? AND sent = ?", id, false).
		Update("sent", true)
	if result.Error != nil {
		return false, fmt.Errorf("claim reminder %d: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// PendingReminderCount counts the user's reminders that have not been delivered yet.
func (s *Store) PendingReminderCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&model.Reminder{}).
		Where("user_id = ? AND sent = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count pending reminders: %w", err)
	}
	return count, nil
}

// AppendErrorLog stores a failure record.
func (s *Store) AppendErrorLog(ctx context.Context, entry *model.ErrorLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append error log: %w", err)
	}
	return nil
}
