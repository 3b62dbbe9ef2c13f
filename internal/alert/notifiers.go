package alert

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// PlainSender sends unformatted text to a chat.
type PlainSender interface {
	SendPlain(ctx context.Context, chatID, text string) error
}

// ChatNotifier posts alerts to the admin's chat.
type ChatNotifier struct {
	sender PlainSender
	chatID string
}

// NewChatNotifier returns nil when chatID is empty.
func NewChatNotifier(sender PlainSender, chatID string) *ChatNotifier {
	if sender == nil || chatID == "" {
		return nil
	}
	return &ChatNotifier{sender: sender, chatID: chatID}
}

func (c *ChatNotifier) Notify(ctx context.Context, summary string) error {
	return c.sender.SendPlain(ctx, c.chatID, summary)
}

func (c *ChatNotifier) Name() string {
	return "admin-chat"
}

// EmailNotifier sends alerts by email via Resend.
type EmailNotifier struct {
	client      *resend.Client
	fromAddress string
	recipient   string
}

// NewEmailNotifier returns nil unless apiKey, from and recipient are all set.
func NewEmailNotifier(apiKey, from, recipient string) *EmailNotifier {
	if apiKey == "" || from == "" || recipient == "" {
		return nil
	}
	return &EmailNotifier{
		client:      resend.NewClient(apiKey),
		fromAddress: from,
		recipient:   recipient,
	}
}

func (e *EmailNotifier) Notify(ctx context.Context, summary string) error {
	params := &resend.SendEmailRequest{
		From:    e.fromAddress,
		To:      []string{e.recipient},
		Subject: "Nudge error alert",
		Text:    summary,
	}
	if _, err := e.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("resend send failed: %w", err)
	}
	return nil
}

func (e *EmailNotifier) Name() string {
	return "resend"
}
