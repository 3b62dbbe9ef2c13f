package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pathakanu/nudge/internal/model"
)

// OpenAI wraps the OpenAI chat completions API.
type OpenAI struct {
	client      *openai.Client
	model       openai.ChatModel
	instruction string
	timeout     time.Duration
}

// NewOpenAI returns an OpenAI backend. Without an API key every call fails with ErrClientNotInitialised.
func NewOpenAI(opts Options) *OpenAI {
	c := &OpenAI{
		model:       openai.ChatModelGPT4oMini,
		instruction: opts.Instruction,
		timeout:     opts.Timeout,
	}
	if opts.Model != "" {
		c.model = openai.ChatModel(opts.Model)
	}
	if opts.APIKey == "" {
		return c
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(reqOpts...)
	c.client = &client
	return c
}

// Generate sends the instruction, history and prompt as one chat completion.
func (c *OpenAI) Generate(ctx context.Context, history []Turn, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}
	if c.client == nil {
		return "", ErrClientNotInitialised
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessageParamUnion{
		OfSystem: &openai.ChatCompletionSystemMessageParam{
			Content: openai.ChatCompletionSystemMessageParamContentUnion{
				OfString: openai.String(c.instruction),
			},
		},
	})
	for _, turn := range history {
		messages = append(messages, openAIMessage(turn))
	}
	messages = append(messages, openAIMessage(Turn{Role: model.RoleUser, Text: prompt}))

	req := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(0.7),
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion received")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func openAIMessage(turn Turn) openai.ChatCompletionMessageParamUnion {
	if turn.Role == model.RoleModel {
		return openai.ChatCompletionMessageParamUnion{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{
				Content: openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(turn.Text),
				},
			},
		}
	}
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(turn.Text),
			},
		},
	}
}
