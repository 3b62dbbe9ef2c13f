package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pathakanu/nudge/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(tb *testBot) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	tb.Routes(r)
	return r
}

func waitInflight(t *testing.T, tb *testBot) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tb.Wait(ctx))
}

func TestHealth(t *testing.T) {
	tb := newTestBot(t)
	w := httptest.NewRecorder()

	newRouter(tb).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestTelegramWebhookAnswersTextMessage(t *testing.T) {
	tb := newTestBot(t)
	tb.model.reply = replyWith(`{"userMessage":"Hello Ada."}`)
	body := `{"update_id":1,"message":{"message_id":5,"date":1700000000,"chat":{"id":42,"type":"private","first_name":"Ada"},"text":"hi"}}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	newRouter(tb).ServeHTTP(w, req)
	waitInflight(t, tb)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []sentMessage{{chatID: "42", text: `Hello Ada\.`, markup: true}}, tb.telegram.messages())

	user, err := tb.store.FindOrCreateUser(context.Background(), model.ChannelTelegram, "42", "")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Name)
}

func TestTelegramWebhookAcknowledgesMalformedBody(t *testing.T) {
	tb := newTestBot(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	newRouter(tb).ServeHTTP(w, req)
	waitInflight(t, tb)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, tb.telegram.messages())
	assert.Empty(t, tb.model.prompts)
}

func TestTelegramWebhookIgnoresNonText(t *testing.T) {
	tb := newTestBot(t)
	body := `{"update_id":2,"message":{"message_id":6,"date":1700000000,"chat":{"id":42,"type":"private"}}}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	newRouter(tb).ServeHTTP(w, req)
	waitInflight(t, tb)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, tb.model.prompts)
}

func TestTwilioWebhook(t *testing.T) {
	tb := newTestBot(t)
	tb.model.reply = replyWith(`{"userMessage":"Noted (really)."}`)
	form := url.Values{
		"From":        {"whatsapp:+15550001111"},
		"Body":        {"  log my run  "},
		"ProfileName": {"Sam"},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, TwilioWebhookPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	newRouter(tb).ServeHTTP(w, req)
	waitInflight(t, tb)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<Response></Response>", w.Body.String())
	assert.Equal(t, []sentMessage{{chatID: "+15550001111", text: "Noted (really)."}}, tb.whatsapp.messages())
	require.Len(t, tb.model.prompts, 1)
	assert.True(t, strings.HasPrefix(tb.model.prompts[0], "log my run\n\ncurrentTime: "))
}

func TestTwilioWebhookWithoutBody(t *testing.T) {
	tb := newTestBot(t)
	form := url.Values{"From": {"whatsapp:+15550001111"}}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, TwilioWebhookPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	newRouter(tb).ServeHTTP(w, req)
	waitInflight(t, tb)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, tb.whatsapp.messages())
}

func TestRoutesOnlyForConfiguredChannels(t *testing.T) {
	tb := newTestBot(t)
	delete(tb.channels, model.ChannelWhatsApp)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, TwilioWebhookPath, strings.NewReader(""))
	newRouter(tb).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
