// Package telegram sends bot messages and decodes webhook updates.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// WebhookPath is the route Telegram posts updates to.
const WebhookPath = "/webhook"

// Client wraps the Telegram Bot API.
type Client struct {
	bot    *tgbotapi.BotAPI
	logger *zap.Logger
}

// New authenticates with the Bot API. Requests are bounded by timeout.
func New(token string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	logger.Info("telegram: authorized", zap.String("bot", bot.Self.UserName))
	return &Client{bot: bot, logger: logger}, nil
}

// SetWebhook points Telegram at baseURL + WebhookPath.
func (c *Client) SetWebhook(baseURL string) error {
	wh, err := tgbotapi.NewWebhook(baseURL + WebhookPath)
	if err != nil {
		return fmt.Errorf("build webhook: %w", err)
	}
	if _, err := c.bot.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	c.logger.Info("telegram: webhook set", zap.String("url", baseURL+WebhookPath))
	return nil
}

// SendMessage sends text to chatID, rendered as MarkdownV2 when markup is set.
// The text must already be escaped for MarkdownV2.
func (c *Client) SendMessage(ctx context.Context, chatID, text string, markup bool) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(id, text)
	if markup {
		msg.ParseMode = tgbotapi.ModeMarkdownV2
	}
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Inbound is the part of an update the bot acts on.
type Inbound struct {
	ChatID string
	Text   string
	Name   string
}

// InboundFromUpdate extracts a text message from update. ok is false for
// updates without message text (edits, stickers, joins).
func InboundFromUpdate(update tgbotapi.Update) (Inbound, bool) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return Inbound{}, false
	}
	return Inbound{
		ChatID: strconv.FormatInt(msg.Chat.ID, 10),
		Text:   msg.Text,
		Name:   msg.Chat.FirstName,
	}, true
}
