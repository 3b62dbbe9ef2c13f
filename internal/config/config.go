package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported LLM backends.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Port        string
	DatabaseURL string
	SQLitePath  string
	LogLevel    string

	LLMProvider  string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	LLMBaseURL   string
	LLMTimeout   time.Duration

	TelegramToken    string
	ServerURL        string
	TransportTimeout time.Duration

	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioWhatsAppNumber string

	AdminChatID  string
	AdminEmail   string
	ResendAPIKey string
	ResendFrom   string

	RedisURL string

	LocalTimezone       *time.Location
	SweepSchedule       string
	GenerateSchedule    string
	GenerateConcurrency int

	MaxMessageLength int
	EscapeChars      []rune
}

// Load reads configuration values and prepares defaults where applicable.
func Load() *Config {
	_ = godotenv.Load()

	timezoneName := getenvDefault("LOCAL_TIMEZONE", "UTC")
	location, err := time.LoadLocation(timezoneName)
	if err != nil {
		log.Printf("config: invalid LOCAL_TIMEZONE %q, defaulting to UTC: %v", timezoneName, err)
		location = time.UTC
	}

	return &Config{
		Port:        getenvDefault("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getenvDefault("SQLITE_PATH", "nudge.db"),
		LogLevel:    getenvDefault("LOG_LEVEL", "info"),

		LLMProvider:  strings.ToLower(getenvDefault("LLM_PROVIDER", ProviderGemini)),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getenvDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getenvDefault("OPENAI_MODEL", "gpt-4o-mini"),
		LLMBaseURL:   os.Getenv("LLM_BASE_URL"),
		LLMTimeout:   ParseDurationEnv("LLM_TIMEOUT", 60*time.Second),

		TelegramToken:    os.Getenv("TELEGRAM_TOKEN"),
		ServerURL:        strings.TrimRight(os.Getenv("SERVER_URL"), "/"),
		TransportTimeout: ParseDurationEnv("TRANSPORT_TIMEOUT", 30*time.Second),

		TwilioAccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppNumber: os.Getenv("TWILIO_WHATSAPP_NUMBER"),

		AdminChatID:  os.Getenv("ADMIN_CHAT_ID"),
		AdminEmail:   os.Getenv("ADMIN_EMAIL"),
		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		ResendFrom:   os.Getenv("RESEND_FROM"),

		RedisURL: os.Getenv("REDIS_URL"),

		LocalTimezone:       location,
		SweepSchedule:       getenvDefault("SWEEP_SCHEDULE", "@every 1m"),
		GenerateSchedule:    getenvDefault("GENERATE_SCHEDULE", "0 */3 * * *"),
		GenerateConcurrency: ParseIntEnv("GENERATE_CONCURRENCY", 4),

		MaxMessageLength: ParseIntEnv("MAX_MESSAGE_LENGTH", 4096),
		EscapeChars:      []rune(getenvDefault("ESCAPE_CHARS", "!.-(){}")),
	}
}

// TwilioEnabled reports whether the WhatsApp channel has credentials.
func (c *Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioWhatsAppNumber != ""
}

func getenvDefault(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	return value
}

// ParseIntEnv returns the integer value for an environment variable or the provided default.
// Non-positive values are treated as unset.
func ParseIntEnv(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		log.Printf("config: unable to parse %s=%q as positive int: %v", key, value, err)
		return def
	}
	return parsed
}

// ParseDurationEnv returns the duration value for an environment variable or the provided default.
func ParseDurationEnv(key string, def time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		log.Printf("config: unable to parse %s=%q as duration: %v", key, value, err)
		return def
	}
	return parsed
}
