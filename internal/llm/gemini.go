package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pathakanu/nudge/internal/model"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-1.5-flash"

// Gemini wraps Google's generative language API.
type Gemini struct {
	client      *genai.Client
	model       string
	instruction string
	timeout     time.Duration
}

// NewGemini returns a Gemini backend. Without an API key every call fails with ErrClientNotInitialised.
func NewGemini(ctx context.Context, opts Options) (*Gemini, error) {
	g := &Gemini{
		model:       opts.Model,
		instruction: opts.Instruction,
		timeout:     opts.Timeout,
	}
	if g.model == "" {
		g.model = defaultGeminiModel
	}
	if opts.APIKey == "" {
		return g, nil
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	g.client = client
	return g, nil
}

// Generate replays history and asks for the reply to prompt.
func (g *Gemini) Generate(ctx context.Context, history []Turn, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}
	if g.client == nil {
		return "", ErrClientNotInitialised
	}

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		contents = append(contents, genai.NewContentFromText(turn.Text, geminiRole(turn.Role)))
	}
	contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(g.instruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.7),
	})
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no content received")
	}
	return text, nil
}

func geminiRole(role model.Role) genai.Role {
	if role == model.RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}
