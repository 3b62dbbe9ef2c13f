package alert

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/pathakanu/nudge/internal/model"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryStore struct {
	entries []*model.ErrorLog
	err     error
}

func (m *memoryStore) AppendErrorLog(_ context.Context, entry *model.ErrorLog) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, summary string) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

func (m *MockNotifier) Name() string {
	return "mock"
}

func TestReportPersistsAndNotifies(t *testing.T) {
	store := &memoryStore{}
	notifier := &MockNotifier{}
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(s string) bool {
		return strings.Contains(s, "Message: llm down") && strings.Contains(s, "Additional Info: in pipeline")
	})).Return(nil).Once()

	r := NewReporter(store, zap.NewNop(), notifier)
	r.Report(context.Background(), errors.New("llm down"), "in pipeline")

	require.Len(t, store.entries, 1)
	assert.Equal(t, "llm down", store.entries[0].Message)
	assert.Equal(t, "in pipeline", store.entries[0].AdditionalInfo)
	assert.NotEmpty(t, store.entries[0].Stack)
	notifier.AssertExpectations(t)
}

func TestRecordDoesNotNotify(t *testing.T) {
	store := &memoryStore{}
	notifier := &MockNotifier{}

	r := NewReporter(store, zap.NewNop(), notifier)
	r.Record(context.Background(), errors.New("parse fallback"), "")

	require.Len(t, store.entries, 1)
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestReportSurvivesFailures(t *testing.T) {
	store := &memoryStore{err: errors.New("db gone")}
	notifier := &MockNotifier{}
	notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("chat gone"))

	r := NewReporter(store, zap.NewNop(), notifier, nil)

	assert.NotPanics(t, func() {
		r.Report(context.Background(), errors.New("boom"), "x")
		r.Report(context.Background(), nil, "ignored")
	})
	notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestStackPrefersExistingTrace(t *testing.T) {
	err := pkgerrors.New("with origin")

	stack := stackOf(err)

	assert.Contains(t, stack, "TestStackPrefersExistingTrace")
}

func TestSummaryTruncatesStack(t *testing.T) {
	entry := &model.ErrorLog{
		Message:   "boom",
		Stack:     strings.Repeat("s", 1500),
		Timestamp: time.Date(2024, 11, 10, 21, 15, 0, 0, time.UTC),
	}

	summary := Summary(entry)

	assert.Contains(t, summary, "Additional Info: N/A")
	assert.Contains(t, summary, strings.Repeat("s", 1000)+"...")
	assert.NotContains(t, summary, strings.Repeat("s", 1001))
}

func TestSummaryTruncatesOnRuneBoundary(t *testing.T) {
	entry := &model.ErrorLog{
		Message: "boom",
		Stack:   "a" + strings.Repeat("é", 1200),
	}

	summary := Summary(entry)

	require.True(t, utf8.ValidString(summary))
	assert.True(t, strings.HasSuffix(summary, "\nStack: a"+strings.Repeat("é", 999)+"..."))
}

func TestNotifierConstructorsRequireConfig(t *testing.T) {
	assert.Nil(t, NewChatNotifier(nil, "1"))
	assert.Nil(t, NewEmailNotifier("key", "", "ops@example.com"))
	assert.NotNil(t, NewEmailNotifier("key", "bot@example.com", "ops@example.com"))
}
