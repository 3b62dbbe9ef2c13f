package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pathakanu/nudge/internal/config"
	"github.com/pathakanu/nudge/internal/llm"
	"github.com/pathakanu/nudge/internal/lock"
	"github.com/pathakanu/nudge/internal/model"
	"github.com/pathakanu/nudge/internal/outbound"
	"github.com/pathakanu/nudge/internal/reminder"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ConversationStore is the persistence a conversation turn needs.
type ConversationStore interface {
	FindOrCreateUser(ctx context.Context, channel model.Channel, externalID, name string) (*model.User, error)
	History(ctx context.Context, userID uint) ([]model.ChatMessage, error)
	SaveChatMessage(ctx context.Context, userID uint, role model.Role, text string) error
}

// Reporter records failures.
type Reporter interface {
	Report(ctx context.Context, err error, info string)
	Record(ctx context.Context, err error, info string)
}

// Channels routes outbound text to the dispatcher of a user's channel.
type Channels map[model.Channel]*outbound.Dispatcher

// Deliver sends text to user through their channel.
func (c Channels) Deliver(ctx context.Context, user *model.User, text string) error {
	d, ok := c[user.Channel]
	if !ok {
		return fmt.Errorf("no transport for channel %q", user.Channel)
	}
	return d.Send(ctx, user.ExternalID, text)
}

// Bot coordinates conversation turns, reminder scheduling and messaging.
type Bot struct {
	cfg       *config.Config
	store     ConversationStore
	model     llm.Client
	reminders *reminder.Scheduler
	channels  Channels
	reporter  Reporter
	locker    lock.Locker
	cron      *cron.Cron
	logger    *zap.Logger
	now       func() time.Time

	inflight sync.WaitGroup
}

// New creates a fully configured Bot instance. conversation is the client
// bound to the conversation instruction.
func New(cfg *config.Config, store ConversationStore, conversation llm.Client, reminders *reminder.Scheduler,
	channels Channels, reporter Reporter, locker lock.Locker, logger *zap.Logger) *Bot {
	return &Bot{
		cfg:       cfg,
		store:     store,
		model:     conversation,
		reminders: reminders,
		channels:  channels,
		reporter:  reporter,
		locker:    locker,
		logger:    logger,
		now:       time.Now,
	}
}

// StartScheduler registers the delivery sweep and the periodic generator and
// starts the cron loop. A job still running when its next tick fires is skipped.
func (b *Bot) StartScheduler() error {
	cl := cronLogger{b.logger.Sugar()}
	c := cron.New(
		cron.WithLocation(b.cfg.LocalTimezone),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc(b.cfg.SweepSchedule, func() {
		b.reminders.SweepDue(context.Background(), b.now())
	}); err != nil {
		return fmt.Errorf("register sweep %q: %w", b.cfg.SweepSchedule, err)
	}
	if _, err := c.AddFunc(b.cfg.GenerateSchedule, func() {
		b.reminders.GeneratePeriodic(context.Background())
	}); err != nil {
		return fmt.Errorf("register generator %q: %w", b.cfg.GenerateSchedule, err)
	}

	b.cron = c
	b.cron.Start()
	return nil
}

// StopScheduler stops the cron scheduler gracefully.
func (b *Bot) StopScheduler() {
	if b.cron == nil {
		return
	}
	ctx := b.cron.Stop()
	<-ctx.Done()
}

// Wait blocks until in-flight conversation turns finish or ctx is done.
func (b *Bot) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
