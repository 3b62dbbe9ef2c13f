package twilio

import (
	"context"
	"fmt"
	"strings"

	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// Client sends WhatsApp messages through Twilio.
type Client struct {
	client       *twilio.RestClient
	fromWhatsApp string
	logger       *zap.Logger
}

// New creates a Twilio client bound to the configured WhatsApp sender number.
func New(accountSID, authToken, fromWhatsApp string, logger *zap.Logger) *Client {
	return &Client{
		client:       twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken}),
		fromWhatsApp: fromWhatsApp,
		logger:       logger,
	}
}

// SendMessage sends one WhatsApp message. WhatsApp has no markup mode to
// negotiate, so markup is ignored.
func (c *Client) SendMessage(ctx context.Context, to, body string, _ bool) error {
	if c.client == nil {
		return fmt.Errorf("twilio client not initialised")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sender := NormalizeWhatsAppAddress(c.fromWhatsApp)
	if sender == "" {
		return fmt.Errorf("twilio sender WhatsApp number is not configured")
	}

	recipient := NormalizeWhatsAppAddress(to)
	if recipient == "" {
		return fmt.Errorf("recipient number missing or invalid")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(sender)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send message error: %w", err)
	}

	if resp.Sid != nil {
		c.logger.Debug("twilio message sent", zap.String("sid", *resp.Sid), zap.String("to", recipient))
	}
	return nil
}

// NormalizeWhatsAppAddress returns number in Twilio's whatsapp:+E164 form.
func NormalizeWhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "whatsapp:") {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "+") {
		return "whatsapp:" + trimmed
	}
	return "whatsapp:+" + trimmed
}

// SenderID strips the whatsapp: prefix Twilio puts on inbound From values.
func SenderID(from string) string {
	return strings.TrimPrefix(strings.TrimSpace(from), "whatsapp:")
}
