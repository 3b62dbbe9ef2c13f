// Package reminder validates reminders proposed by the model, delivers them
// when due and periodically asks the model whether new ones are warranted.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pathakanu/nudge/internal/database"
	"github.com/pathakanu/nudge/internal/llm"
	"github.com/pathakanu/nudge/internal/lock"
	"github.com/pathakanu/nudge/internal/model"
	"github.com/pathakanu/nudge/internal/parser"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidCandidate marks a model-proposed reminder that cannot be scheduled.
var ErrInvalidCandidate = errors.New("invalid reminder candidate")

const (
	claimAttempts = 3
	claimBackoff  = 200 * time.Millisecond
)

// Store is the persistence the scheduler needs.
type Store interface {
	CreateReminder(ctx context.Context, reminder *model.Reminder) error
	DueReminders(ctx context.Context, now time.Time) ([]model.Reminder, error)
	ClaimReminder(ctx context.Context, id uint) (bool, error)
	FindUser(ctx context.Context, id uint) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	SaveChatMessage(ctx context.Context, userID uint, role model.Role, text string) error
	History(ctx context.Context, userID uint) ([]model.ChatMessage, error)
	PendingReminderCount(ctx context.Context, userID uint) (int64, error)
}

// Delivery sends text to a user over their channel.
type Delivery interface {
	Deliver(ctx context.Context, user *model.User, text string) error
}

// Reporter records failures.
type Reporter interface {
	Report(ctx context.Context, err error, info string)
	Record(ctx context.Context, err error, info string)
}

// Scheduler owns the reminder lifecycle.
type Scheduler struct {
	store       Store
	model       llm.Client
	delivery    Delivery
	reporter    Reporter
	locker      lock.Locker
	logger      *zap.Logger
	location    *time.Location
	concurrency int
	now         func() time.Time

	sweepMu sync.Mutex
}

// Options configure a Scheduler.
type Options struct {
	// Location interprets reminder times written without an offset.
	Location *time.Location
	// Concurrency bounds how many users GeneratePeriodic queries at once.
	Concurrency int
}

// New builds a Scheduler. generator is the client bound to the periodic reminder instruction.
func New(store Store, generator llm.Client, delivery Delivery, reporter Reporter, locker lock.Locker, logger *zap.Logger, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Scheduler{
		store:       store,
		model:       generator,
		delivery:    delivery,
		reporter:    reporter,
		locker:      locker,
		logger:      logger,
		location:    opts.Location,
		concurrency: opts.Concurrency,
		now:         time.Now,
	}
}

// ValidateAndStore persists every valid candidate for userID and returns how
// many were stored. Invalid candidates are skipped; one failure never blocks the rest.
func (s *Scheduler) ValidateAndStore(ctx context.Context, userID uint, candidates []parser.Candidate) int {
	stored := 0
	for i, c := range candidates {
		reminder, err := s.validate(userID, c)
		if err != nil {
			s.logger.Warn("reminder: skipping candidate",
				zap.Uint("user_id", userID), zap.Int("index", i), zap.Error(err))
			continue
		}
		if err := s.store.CreateReminder(ctx, reminder); err != nil {
			s.reporter.Record(ctx, err, fmt.Sprintf("storing reminder %d for user %d", i, userID))
			continue
		}
		s.logger.Info("reminder: scheduled",
			zap.Uint("user_id", userID), zap.Uint("reminder_id", reminder.ID), zap.Time("remind_at", reminder.RemindAt))
		stored++
	}
	return stored
}

func (s *Scheduler) validate(userID uint, c parser.Candidate) (*model.Reminder, error) {
	message := strings.TrimSpace(c.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidCandidate)
	}
	at, err := ParseTime(c.Time, s.location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}
	return &model.Reminder{
		UserID:   userID,
		Message:  message,
		RemindAt: at.UTC(),
		Context:  strings.TrimSpace(c.Context),
	}, nil
}

// SweepStats summarises one SweepDue pass.
type SweepStats struct {
	Due       int
	Delivered int
	Skipped   int
}

// SweepDue delivers every unsent reminder due at now. Each reminder is claimed
// in the store before it is sent, so overlapping sweeps never send one twice.
// A sweep already running in this process makes the call a no-op.
func (s *Scheduler) SweepDue(ctx context.Context, now time.Time) SweepStats {
	var stats SweepStats
	if !s.sweepMu.TryLock() {
		s.logger.Debug("reminder: sweep already running")
		return stats
	}
	defer s.sweepMu.Unlock()

	reminders, err := s.store.DueReminders(ctx, now)
	if err != nil {
		s.reporter.Report(ctx, err, "loading due reminders")
		return stats
	}
	stats.Due = len(reminders)

	for i := range reminders {
		if s.deliver(ctx, &reminders[i]) {
			stats.Delivered++
		} else {
			stats.Skipped++
		}
	}
	if stats.Due > 0 {
		s.logger.Info("reminder: sweep finished",
			zap.Int("due", stats.Due), zap.Int("delivered", stats.Delivered), zap.Int("skipped", stats.Skipped))
	}
	return stats
}

func (s *Scheduler) deliver(ctx context.Context, r *model.Reminder) bool {
	log := s.logger.With(zap.Uint("reminder_id", r.ID), zap.Uint("user_id", r.UserID))

	user, err := s.store.FindUser(ctx, r.UserID)
	if errors.Is(err, database.ErrUserNotFound) {
		// Left unsent for an operator to resolve.
		log.Warn("reminder: owner not found, leaving unsent")
		s.reporter.Record(ctx, err, fmt.Sprintf("reminder %d references missing user %d", r.ID, r.UserID))
		return false
	}
	if err != nil {
		s.reporter.Record(ctx, err, fmt.Sprintf("resolving owner of reminder %d", r.ID))
		return false
	}

	claimed, err := s.claim(ctx, r.ID)
	if err != nil {
		s.reporter.Report(ctx, err, fmt.Sprintf("delivery claim failed for reminder %d", r.ID))
		return false
	}
	if !claimed {
		log.Debug("reminder: already claimed elsewhere")
		return false
	}

	s.appendHistory(ctx, user.ID, r.Message, log)

	if err := s.delivery.Deliver(ctx, user, r.Message); err != nil {
		s.reporter.Report(ctx, err, fmt.Sprintf("sending reminder %d", r.ID))
		return false
	}
	log.Info("reminder: delivered")
	return true
}

func (s *Scheduler) claim(ctx context.Context, id uint) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= claimAttempts; attempt++ {
		claimed, err := s.store.ClaimReminder(ctx, id)
		if err == nil {
			return claimed, nil
		}
		lastErr = err
		if attempt == claimAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Duration(attempt) * claimBackoff):
		}
	}
	return false, fmt.Errorf("after %d attempts: %w", claimAttempts, lastErr)
}

func (s *Scheduler) appendHistory(ctx context.Context, userID uint, text string, log *zap.Logger) {
	unlock, err := s.locker.Lock(ctx, lock.UserKey(userID))
	if err != nil {
		log.Warn("reminder: history lock unavailable", zap.Error(err))
		return
	}
	defer unlock()

	if err := s.store.SaveChatMessage(ctx, userID, model.RoleModel, text); err != nil {
		s.reporter.Record(ctx, err, fmt.Sprintf("recording delivered reminder for user %d", userID))
	}
}

// GeneratePeriodic asks the model, for every user without a pending
// reminder, whether a new reminder is warranted.
func (s *Scheduler) GeneratePeriodic(ctx context.Context) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		s.reporter.Report(ctx, err, "listing users for periodic reminders")
		return
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range users {
		user := &users[i]
		g.Go(func() error {
			s.generateFor(ctx, user)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) generateFor(ctx context.Context, user *model.User) {
	log := s.logger.With(zap.Uint("user_id", user.ID))

	pending, err := s.store.PendingReminderCount(ctx, user.ID)
	if err != nil {
		s.reporter.Record(ctx, err, fmt.Sprintf("counting pending reminders for user %d", user.ID))
		return
	}
	if pending > 0 {
		log.Debug("reminder: user has pending reminders, skipping", zap.Int64("pending", pending))
		return
	}

	history, err := s.store.History(ctx, user.ID)
	if err != nil {
		s.reporter.Record(ctx, err, fmt.Sprintf("loading history for user %d", user.ID))
		return
	}

	prompt := llm.ReminderPrompt + s.now().UTC().Format(time.RFC3339)
	text, err := s.model.Generate(ctx, llm.HistoryFromMessages(history), prompt)
	if err != nil {
		s.reporter.Report(ctx, err, fmt.Sprintf("periodic reminder generation for user %d", user.ID))
		return
	}

	res := parser.Parse(text)
	if res.JSON == nil {
		s.reporter.Record(ctx, res.Err, fmt.Sprintf("periodic reminder response for user %d", user.ID))
		return
	}
	if len(res.JSON.Reminders) == 0 {
		return
	}
	stored := s.ValidateAndStore(ctx, user.ID, res.JSON.Reminders)
	log.Info("reminder: periodic generation", zap.Int("stored", stored))
}
