package bot

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pathakanu/nudge/internal/model"
	"github.com/pathakanu/nudge/internal/telegram"
	"github.com/pathakanu/nudge/internal/twilio"
	"go.uber.org/zap"
)

// TwilioWebhookPath is the route Twilio posts WhatsApp messages to.
const TwilioWebhookPath = "/twilio/webhook"

// Routes registers the health check and one webhook per configured channel.
func (b *Bot) Routes(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if _, ok := b.channels[model.ChannelTelegram]; ok {
		r.POST(telegram.WebhookPath, b.handleTelegramUpdate)
	}
	if _, ok := b.channels[model.ChannelWhatsApp]; ok {
		r.POST(TwilioWebhookPath, b.handleTwilioMessage)
	}
}

// handleTelegramUpdate acknowledges every update and answers text messages in
// the background. Telegram redelivers on non-2xx, so malformed bodies are acknowledged too.
func (b *Bot) handleTelegramUpdate(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		b.logger.Warn("webhook: telegram decode error", zap.Error(err))
		c.Status(http.StatusOK)
		return
	}

	if in, ok := telegram.InboundFromUpdate(update); ok {
		b.handleAsync(Inbound{
			Channel: model.ChannelTelegram,
			ChatID:  in.ChatID,
			Text:    in.Text,
			Name:    in.Name,
		})
	}
	c.Status(http.StatusOK)
}

// handleTwilioMessage processes Twilio webhook POST requests. The reply is
// sent through the REST API, so the TwiML response is empty.
func (b *Bot) handleTwilioMessage(c *gin.Context) {
	from := twilio.SenderID(c.PostForm("From"))
	body := strings.TrimSpace(c.PostForm("Body"))
	if from != "" && body != "" {
		b.handleAsync(Inbound{
			Channel: model.ChannelWhatsApp,
			ChatID:  from,
			Text:    body,
			Name:    c.PostForm("ProfileName"),
		})
	}
	b.writeTwilioResponse(c)
}

func (b *Bot) handleAsync(in Inbound) {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		b.Handle(context.Background(), in)
	}()
}

func (b *Bot) writeTwilioResponse(c *gin.Context) {
	twiml := struct {
		XMLName xml.Name `xml:"Response"`
	}{}
	c.XML(http.StatusOK, twiml)
}
