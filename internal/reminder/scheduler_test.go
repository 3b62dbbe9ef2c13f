package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pathakanu/nudge/internal/database"
	"github.com/pathakanu/nudge/internal/database/databasetest"
	"github.com/pathakanu/nudge/internal/llm"
	"github.com/pathakanu/nudge/internal/lock"
	"github.com/pathakanu/nudge/internal/model"
	"github.com/pathakanu/nudge/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDelivery struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeDelivery) Deliver(_ context.Context, user *model.User, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, user.ExternalID+":"+text)
	return nil
}

func (f *fakeDelivery) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeReporter struct {
	mu       sync.Mutex
	reported []string
	recorded []string
}

func (f *fakeReporter) Report(_ context.Context, _ error, info string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reported = append(f.reported, info)
}

func (f *fakeReporter) Record(_ context.Context, _ error, info string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, info)
}

type fakeModel struct {
	mu      sync.Mutex
	replies map[int]string
	errs    map[int]error
	calls   int
	prompts []string
}

// Generate answers by history length so each seeded user gets a distinct reply.
func (f *fakeModel) Generate(_ context.Context, history []llm.Turn, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if err := f.errs[len(history)]; err != nil {
		return "", err
	}
	return f.replies[len(history)], nil
}

type fixture struct {
	store     *database.Store
	delivery  *fakeDelivery
	reporter  *fakeReporter
	model     *fakeModel
	scheduler *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    databasetest.NewStore(t),
		delivery: &fakeDelivery{},
		reporter: &fakeReporter{},
		model:    &fakeModel{replies: map[int]string{}, errs: map[int]error{}},
	}
	f.scheduler = f.newScheduler()
	return f
}

func (f *fixture) newScheduler() *Scheduler {
	return New(f.store, f.model, f.delivery, f.reporter, lock.NewLocal(), zap.NewNop(), Options{Concurrency: 2})
}

func (f *fixture) user(t *testing.T, externalID string) *model.User {
	t.Helper()
	u, err := f.store.FindOrCreateUser(context.Background(), model.ChannelTelegram, externalID, "")
	require.NoError(t, err)
	return u
}

func (f *fixture) reminder(t *testing.T, userID uint, msg string, at time.Time) *model.Reminder {
	t.Helper()
	r := &model.Reminder{UserID: userID, Message: msg, RemindAt: at}
	require.NoError(t, f.store.CreateReminder(context.Background(), r))
	return r
}

func TestValidateAndStoreSkipsInvalidCandidates(t *testing.T) {
	f := newFixture(t)
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	s := New(f.store, f.model, f.delivery, f.reporter, lock.NewLocal(), zap.NewNop(), Options{Location: berlin})
	u := f.user(t, "1")

	stored := s.ValidateAndStore(context.Background(), u.ID, []parser.Candidate{
		{Message: "Check stats", Time: "2024-11-10T21:15:40.438Z", Context: "stats"},
		{Message: "  ", Time: "2024-11-10T21:15:40Z"},
		{Message: "bad time", Time: "tomorrow-ish"},
		{Message: "local", Time: "2024-11-11 12:00"},
	})

	assert.Equal(t, 2, stored)
	pending, err := f.store.PendingReminderCount(context.Background(), u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending)

	due, err := f.store.DueReminders(context.Background(), time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "Check stats", due[0].Message)
	assert.Equal(t, "stats", due[0].Context)
	assert.False(t, due[0].Sent)
	assert.True(t, due[1].RemindAt.Equal(time.Date(2024, 11, 11, 11, 0, 0, 0, time.UTC)), "local times are read in the configured zone")
}

func TestSweepDeliversOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "42")
	f.reminder(t, u.ID, "Check stats", time.Now().Add(-time.Minute))
	f.reminder(t, u.ID, "Later", time.Now().Add(time.Hour))

	stats := f.scheduler.SweepDue(ctx, time.Now())

	assert.Equal(t, SweepStats{Due: 1, Delivered: 1}, stats)
	assert.Equal(t, []string{"42:Check stats"}, f.delivery.messages())

	history, err := f.store.History(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.RoleModel, history[0].Role)
	assert.Equal(t, "Check stats", history[0].Text)

	stats = f.scheduler.SweepDue(ctx, time.Now())
	assert.Equal(t, SweepStats{}, stats)
	assert.Len(t, f.delivery.messages(), 1)
}

func TestSweepDeliversRemindersWithSameDueTime(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "7")
	at := time.Now().Add(-time.Minute)
	f.reminder(t, u.ID, "one", at)
	f.reminder(t, u.ID, "two", at)

	stats := f.scheduler.SweepDue(context.Background(), time.Now())

	assert.Equal(t, 2, stats.Delivered)
	assert.ElementsMatch(t, []string{"7:one", "7:two"}, f.delivery.messages())
	pending, err := f.store.PendingReminderCount(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestSweepLeavesOrphanedReminderUnsent(t *testing.T) {
	f := newFixture(t)
	f.reminder(t, 999, "nobody home", time.Now().Add(-time.Minute))

	stats := f.scheduler.SweepDue(context.Background(), time.Now())

	assert.Equal(t, SweepStats{Due: 1, Skipped: 1}, stats)
	assert.Empty(t, f.delivery.messages())
	assert.Len(t, f.reporter.recorded, 1)

	due, err := f.store.DueReminders(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, due, 1, "orphaned reminder stays unsent")
}

func TestSweepDoesNotRetryFailedSend(t *testing.T) {
	f := newFixture(t)
	f.delivery.err = errors.New("telegram down")
	u := f.user(t, "3")
	f.reminder(t, u.ID, "ping", time.Now().Add(-time.Minute))

	stats := f.scheduler.SweepDue(context.Background(), time.Now())
	assert.Equal(t, 1, stats.Skipped)
	assert.Len(t, f.reporter.reported, 1)

	f.delivery.err = nil
	stats = f.scheduler.SweepDue(context.Background(), time.Now())
	assert.Zero(t, stats.Due, "a claimed reminder is never re-selected")
}

func TestOverlappingSweepsDeliverEachReminderOnce(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "9")
	for i := 0; i < 10; i++ {
		f.reminder(t, u.ID, "r", time.Now().Add(-time.Minute))
	}

	schedulers := []*Scheduler{f.newScheduler(), f.newScheduler(), f.newScheduler()}
	var wg sync.WaitGroup
	for _, s := range schedulers {
		wg.Add(1)
		go func(s *Scheduler) {
			defer wg.Done()
			s.SweepDue(context.Background(), time.Now())
		}(s)
	}
	wg.Wait()

	assert.Len(t, f.delivery.messages(), 10)
}

func TestSweepSkipsWhenAlreadyRunning(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "5")
	f.reminder(t, u.ID, "r", time.Now().Add(-time.Minute))

	f.scheduler.sweepMu.Lock()
	stats := f.scheduler.SweepDue(context.Background(), time.Now())
	f.scheduler.sweepMu.Unlock()

	assert.Equal(t, SweepStats{}, stats)
	assert.Empty(t, f.delivery.messages())
}

func TestGeneratePeriodic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	busy := f.user(t, "busy")
	f.reminder(t, busy.ID, "already scheduled", time.Now().Add(time.Hour))

	fresh := f.user(t, "fresh")
	require.NoError(t, f.store.SaveChatMessage(ctx, fresh.ID, model.RoleUser, "I want to run daily"))

	failing := f.user(t, "failing")
	for i := 0; i < 2; i++ {
		require.NoError(t, f.store.SaveChatMessage(ctx, failing.ID, model.RoleUser, "hi"))
	}

	garbled := f.user(t, "garbled")
	for i := 0; i < 3; i++ {
		require.NoError(t, f.store.SaveChatMessage(ctx, garbled.ID, model.RoleUser, "hi"))
	}

	f.model.replies[1] = `{"reminders":[{"message":"Go for your run","time":"2030-01-01T07:00:00Z","context":"running"}]}`
	f.model.errs[2] = errors.New("quota exceeded")
	f.model.replies[3] = `{"reminders": [`

	f.scheduler.GeneratePeriodic(ctx)

	assert.Equal(t, 3, f.model.calls, "users with pending reminders are skipped")
	for _, p := range f.model.prompts {
		assert.Contains(t, p, "currentTime: ")
	}

	pending, err := f.store.PendingReminderCount(ctx, fresh.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	pending, err = f.store.PendingReminderCount(ctx, busy.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	assert.Len(t, f.reporter.reported, 1)
	assert.Len(t, f.reporter.recorded, 1)
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("2024-11-10T21:15:40.438Z", nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 11, 10, 21, 15, 40, 438000000, time.UTC)))

	got, err = ParseTime("2024-11-10T21:15:40+02:00", time.UTC)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 11, 10, 19, 15, 40, 0, time.UTC)))

	_, err = ParseTime("", time.UTC)
	assert.Error(t, err)
	_, err = ParseTime("next tuesday", time.UTC)
	assert.Error(t, err)
}
