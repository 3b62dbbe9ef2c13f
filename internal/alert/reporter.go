// Package alert records recoverable failures and tells the operator about them.
package alert

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pathakanu/nudge/internal/model"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	maxStackLength = 1000
	notifyTimeout  = 10 * time.Second
)

// ErrorStore persists error records.
type ErrorStore interface {
	AppendErrorLog(ctx context.Context, entry *model.ErrorLog) error
}

// Notifier delivers an alert summary to an operator.
type Notifier interface {
	Notify(ctx context.Context, summary string) error
	Name() string
}

// Reporter writes ErrorLog records and forwards summaries to notifiers.
// It never returns an error; its own failures are logged.
type Reporter struct {
	store     ErrorStore
	notifiers []Notifier
	logger    *zap.Logger
	now       func() time.Time
}

// NewReporter builds a Reporter. Nil notifiers are skipped.
func NewReporter(store ErrorStore, logger *zap.Logger, notifiers ...Notifier) *Reporter {
	r := &Reporter{store: store, logger: logger, now: time.Now}
	for _, n := range notifiers {
		if n != nil {
			r.notifiers = append(r.notifiers, n)
		}
	}
	return r
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// Report persists err and notifies the operator.
func (r *Reporter) Report(ctx context.Context, err error, info string) {
	entry := r.record(ctx, err, info)
	if entry == nil || len(r.notifiers) == 0 {
		return
	}

	summary := Summary(entry)
	for _, n := range r.notifiers {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		if nerr := n.Notify(nctx, summary); nerr != nil {
			r.logger.Error("alert: notify failed", zap.String("notifier", n.Name()), zap.Error(nerr))
		}
		cancel()
	}
}

// Record persists err without notifying anyone.
func (r *Reporter) Record(ctx context.Context, err error, info string) {
	r.record(ctx, err, info)
}

func (r *Reporter) record(ctx context.Context, err error, info string) *model.ErrorLog {
	if err == nil {
		return nil
	}
	entry := &model.ErrorLog{
		Message:        err.Error(),
		Stack:          stackOf(err),
		AdditionalInfo: info,
		Timestamp:      r.now(),
	}
	r.logger.Warn("recoverable failure", zap.String("info", info), zap.Error(err))

	if r.store == nil {
		return entry
	}
	// The record must survive a caller whose context already timed out.
	if serr := r.store.AppendErrorLog(context.WithoutCancel(ctx), entry); serr != nil {
		r.logger.Error("alert: persist error log failed", zap.Error(serr))
	}
	return entry
}

func stackOf(err error) string {
	var st stackTracer
	if !stderrors.As(err, &st) {
		st = pkgerrors.WithStack(err).(stackTracer)
	}
	return strings.TrimSpace(fmt.Sprintf("%+v", st.StackTrace()))
}

// Summary renders entry for an operator, truncating long stacks.
func Summary(entry *model.ErrorLog) string {
	info := entry.AdditionalInfo
	if info == "" {
		info = "N/A"
	}

	var sb strings.Builder
	sb.WriteString("🚨 Error Alert 🚨\n")
	fmt.Fprintf(&sb, "Message: %s\n", entry.Message)
	fmt.Fprintf(&sb, "Timestamp: %s\n", entry.Timestamp.Format(time.RFC1123))
	fmt.Fprintf(&sb, "Additional Info: %s", info)

	if stack := entry.Stack; stack != "" {
		if utf8.RuneCountInString(stack) > maxStackLength {
			stack = string([]rune(stack)[:maxStackLength]) + "..."
		}
		fmt.Fprintf(&sb, "\nStack: %s", stack)
	}
	return sb.String()
}
