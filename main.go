package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pathakanu/nudge/internal/alert"
	"github.com/pathakanu/nudge/internal/bot"
	"github.com/pathakanu/nudge/internal/config"
	"github.com/pathakanu/nudge/internal/database"
	"github.com/pathakanu/nudge/internal/llm"
	"github.com/pathakanu/nudge/internal/lock"
	"github.com/pathakanu/nudge/internal/model"
	"github.com/pathakanu/nudge/internal/outbound"
	"github.com/pathakanu/nudge/internal/reminder"
	"github.com/pathakanu/nudge/internal/telegram"
	"github.com/pathakanu/nudge/internal/twilio"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	db, err := database.New(cfg.DatabaseURL, cfg.SQLitePath, logger)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}
	store := database.NewStore(db)

	ctx := context.Background()
	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisURL != "" {
		redisLock, err := lock.NewRedis(ctx, cfg.RedisURL, "nudge:", bot.LockTTL(cfg), logger)
		if err != nil {
			logger.Fatal("redis lock init failed", zap.Error(err))
		}
		defer func() { _ = redisLock.Close() }()
		locker = redisLock
	}

	channels := bot.Channels{}
	if cfg.TelegramToken != "" {
		tg, err := telegram.New(cfg.TelegramToken, cfg.TransportTimeout, logger)
		if err != nil {
			logger.Fatal("telegram init failed", zap.Error(err))
		}
		if cfg.ServerURL != "" {
			if err := tg.SetWebhook(cfg.ServerURL); err != nil {
				logger.Error("telegram webhook registration failed", zap.Error(err))
			}
		}
		channels[model.ChannelTelegram] = outbound.NewDispatcher(tg, outbound.Options{
			MaxLength:   cfg.MaxMessageLength,
			EscapeChars: cfg.EscapeChars,
			Markup:      true,
		})
	}
	if cfg.TwilioEnabled() {
		wa := twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber, logger)
		channels[model.ChannelWhatsApp] = outbound.NewDispatcher(wa, outbound.Options{
			MaxLength: cfg.MaxMessageLength,
		})
	}
	if len(channels) == 0 {
		logger.Fatal("no messaging channel configured; set TELEGRAM_TOKEN or the TWILIO_* variables")
	}

	reporter := alert.NewReporter(store, logger, notifiers(cfg, channels)...)

	conversation, err := llm.New(ctx, cfg, llm.ConversationInstruction)
	if err != nil {
		logger.Fatal("conversation model init failed", zap.Error(err))
	}
	generator, err := llm.New(ctx, cfg, llm.ReminderInstruction)
	if err != nil {
		logger.Fatal("reminder model init failed", zap.Error(err))
	}

	reminders := reminder.New(store, generator, channels, reporter, locker, logger, reminder.Options{
		Location:    cfg.LocalTimezone,
		Concurrency: cfg.GenerateConcurrency,
	})
	nudge := bot.New(cfg, store, conversation, reminders, channels, reporter, locker, logger)
	if err := nudge.StartScheduler(); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	nudge.Routes(router)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	waitForShutdown(server, nudge, logger)
}

func newLogger(level string) *zap.Logger {
	if level == "debug" {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}

	zcfg := zap.NewProductionConfig()
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// notifiers returns only the configured alert targets.
func notifiers(cfg *config.Config, channels bot.Channels) []alert.Notifier {
	var out []alert.Notifier
	if tg, ok := channels[model.ChannelTelegram]; ok {
		if n := alert.NewChatNotifier(tg, cfg.AdminChatID); n != nil {
			out = append(out, n)
		}
	}
	if n := alert.NewEmailNotifier(cfg.ResendAPIKey, cfg.ResendFrom, cfg.AdminEmail); n != nil {
		out = append(out, n)
	}
	return out
}

func waitForShutdown(server *http.Server, nudge *bot.Bot, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	nudge.StopScheduler()
	if err := nudge.Wait(ctx); err != nil {
		logger.Warn("in-flight turns did not finish", zap.Error(err))
	}
}
