// Package llm talks to the language model that writes the bot's replies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pathakanu/nudge/internal/config"
	"github.com/pathakanu/nudge/internal/model"
)

// ErrClientNotInitialised is returned when attempting to call the API without a configured client.
var ErrClientNotInitialised = errors.New("llm client not initialised")

// Turn is one entry of conversation history.
type Turn struct {
	Role model.Role
	Text string
}

// Client produces the model's next turn. The behavioural instruction is bound
// when the client is built.
type Client interface {
	Generate(ctx context.Context, history []Turn, prompt string) (string, error)
}

// Options configure a backend.
type Options struct {
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	Instruction string
}

// New builds the backend selected in cfg bound to instruction.
func New(ctx context.Context, cfg *config.Config, instruction string) (Client, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return NewGemini(ctx, Options{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			BaseURL:     cfg.LLMBaseURL,
			Timeout:     cfg.LLMTimeout,
			Instruction: instruction,
		})
	case config.ProviderOpenAI:
		return NewOpenAI(Options{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			BaseURL:     cfg.LLMBaseURL,
			Timeout:     cfg.LLMTimeout,
			Instruction: instruction,
		}), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// HistoryFromMessages maps stored chat messages to model turns, keeping their order.
func HistoryFromMessages(messages []model.ChatMessage) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, Turn{Role: msg.Role, Text: msg.Text})
	}
	return turns
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
