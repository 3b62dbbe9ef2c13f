package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pathakanu/nudge/internal/config"
	"github.com/pathakanu/nudge/internal/llm"
	"github.com/pathakanu/nudge/internal/lock"
	"github.com/pathakanu/nudge/internal/model"
	"github.com/pathakanu/nudge/internal/parser"
	"go.uber.org/zap"
)

const (
	troubleMessage = "I'm having trouble processing that right now. Please try again later."
	apologyMessage = "Uh oh. Something went wrong. Hang on though, you can message me again in a few minutes."
	noteMessage    = "Noted."

	apologyTimeout = 15 * time.Second
)

var errEmptyResponse = errors.New("model returned an empty response")

// Inbound is a text message received from a user.
type Inbound struct {
	Channel model.Channel
	ChatID  string
	Text    string
	Name    string
}

// Resolution names how the reply to a turn was produced.
type Resolution string

const (
	// ResolvedStructured means the trailing JSON carried a userMessage.
	ResolvedStructured Resolution = "structured"
	// ResolvedBareJSON means the whole response was a JSON object with a userMessage.
	ResolvedBareJSON Resolution = "bare_json"
	// ResolvedProse means the raw response was sent as is.
	ResolvedProse Resolution = "prose"
	// ResolvedApology means a failure replaced the reply with an apology.
	ResolvedApology Resolution = "apology"
)

// Outcome describes what a turn sent back.
type Outcome struct {
	Resolution Resolution
	Reply      string
	// Delivered is false only when even the apology could not be sent.
	Delivered bool
}

// Handle runs one conversation turn and always attempts a reply, falling back
// to an apology when the model, the store or the transport fails.
func (b *Bot) Handle(ctx context.Context, in Inbound) Outcome {
	log := b.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("channel", string(in.Channel)),
		zap.String("chat_id", in.ChatID),
	)

	dispatcher, ok := b.channels[in.Channel]
	if !ok {
		log.Error("pipeline: no transport for channel")
		return Outcome{Resolution: ResolvedApology}
	}

	reply, resolution, err := b.converse(ctx, in, log)
	if err != nil {
		b.reporter.Report(ctx, err, "in conversation turn")
		reply, resolution = troubleMessage, ResolvedApology
	}

	sctx, cancel := context.WithTimeout(ctx, b.sendTimeout())
	defer cancel()
	if err := dispatcher.Send(sctx, in.ChatID, reply); err != nil {
		b.reporter.Report(ctx, err, "in sendMessage")
		actx, acancel := context.WithTimeout(context.WithoutCancel(ctx), apologyTimeout)
		defer acancel()
		if aerr := dispatcher.SendPlain(actx, in.ChatID, apologyMessage); aerr != nil {
			log.Error("pipeline: apology failed", zap.Error(aerr))
			return Outcome{Resolution: ResolvedApology, Reply: apologyMessage}
		}
		return Outcome{Resolution: ResolvedApology, Reply: apologyMessage, Delivered: true}
	}

	log.Info("pipeline: replied", zap.String("resolution", string(resolution)))
	return Outcome{Resolution: resolution, Reply: reply, Delivered: true}
}

func (b *Bot) converse(ctx context.Context, in Inbound, log *zap.Logger) (string, Resolution, error) {
	ctx, cancel := context.WithTimeout(ctx, b.turnTimeout())
	defer cancel()

	user, err := b.store.FindOrCreateUser(ctx, in.Channel, in.ChatID, in.Name)
	if err != nil {
		return "", "", err
	}
	log = log.With(zap.Uint("user_id", user.ID))

	raw, err := b.exchange(ctx, user.ID, in.Text)
	if err != nil {
		return "", "", err
	}
	return b.compose(ctx, user.ID, raw, log)
}

// exchange asks the model for its next turn and records both sides. Turns for
// the same user are serialised so history stays in conversational order.
func (b *Bot) exchange(ctx context.Context, userID uint, text string) (string, error) {
	unlock, err := b.locker.Lock(ctx, lock.UserKey(userID))
	if err != nil {
		return "", fmt.Errorf("lock conversation: %w", err)
	}
	defer unlock()

	history, err := b.store.History(ctx, userID)
	if err != nil {
		return "", err
	}

	prompt := text + "\n\ncurrentTime: " + b.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	gctx, cancel := context.WithTimeout(ctx, b.llmTimeout())
	defer cancel()
	raw, err := b.model.Generate(gctx, llm.HistoryFromMessages(history), prompt)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	if err := b.store.SaveChatMessage(ctx, userID, model.RoleUser, text); err != nil {
		b.reporter.Record(ctx, err, "saving user message")
	}
	if err := b.store.SaveChatMessage(ctx, userID, model.RoleModel, raw); err != nil {
		b.reporter.Record(ctx, err, "saving model message")
	}
	return raw, nil
}

// compose walks the fallback ladder: structured trailing JSON, the whole
// response as bare JSON, then the raw response as prose.
func (b *Bot) compose(ctx context.Context, userID uint, raw string, log *zap.Logger) (string, Resolution, error) {
	res := parser.Parse(raw)
	if res.JSON != nil && len(res.JSON.Reminders) > 0 {
		b.reminders.ValidateAndStore(ctx, userID, res.JSON.Reminders)
	}
	if res.JSON != nil && res.JSON.HasUserMessage {
		return joinReply(res.JSON.UserMessage, res.CodeBlocks), ResolvedStructured, nil
	}

	parseErr := res.Err
	if parseErr == nil {
		parseErr = errors.New("trailing json has no userMessage")
	}
	log.Debug("pipeline: structured parse failed", zap.Error(parseErr))
	b.reporter.Record(ctx, parseErr, "in structured response parse")

	trimmed := strings.TrimSpace(raw)
	if payload, err := parser.DecodePayload(trimmed); err == nil && payload.HasUserMessage {
		if res.JSON == nil && len(payload.Reminders) > 0 {
			b.reminders.ValidateAndStore(ctx, userID, payload.Reminders)
		}
		return joinReply(payload.UserMessage, nil), ResolvedBareJSON, nil
	}

	if trimmed == "" {
		return "", "", errEmptyResponse
	}
	return raw, ResolvedProse, nil
}

// joinReply appends code blocks to message. A blank message leaves only the
// code blocks, or a short note when there are none.
func joinReply(message string, codeBlocks []string) string {
	parts := make([]string, 0, len(codeBlocks)+1)
	if strings.TrimSpace(message) != "" {
		parts = append(parts, message)
	}
	parts = append(parts, codeBlocks...)
	if len(parts) == 0 {
		return noteMessage
	}
	return strings.Join(parts, "\n\n")
}

func (b *Bot) llmTimeout() time.Duration {
	if b.cfg != nil && b.cfg.LLMTimeout > 0 {
		return b.cfg.LLMTimeout
	}
	return 90 * time.Second
}

// TurnTimeout bounds one conversation turn: the model call plus the store
// round trips around it.
func TurnTimeout(cfg *config.Config) time.Duration {
	timeout := 2 * time.Minute
	if cfg != nil && cfg.LLMTimeout > 0 {
		timeout = cfg.LLMTimeout + 30*time.Second
	}
	return timeout
}

// LockTTL is how long a shared per-user lock may live. It outlasts any turn
// that can hold it.
func LockTTL(cfg *config.Config) time.Duration {
	return TurnTimeout(cfg) + time.Minute
}

func (b *Bot) turnTimeout() time.Duration {
	return TurnTimeout(b.cfg)
}

func (b *Bot) sendTimeout() time.Duration {
	timeout := 2 * time.Minute
	if b.cfg != nil && b.cfg.TransportTimeout > 0 {
		timeout = 4 * b.cfg.TransportTimeout
	}
	return timeout
}
