package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port        int
	NatsURL     string
	NatsToken   string
	DatabaseURL string
	RedisAddr   string
	LogLevel    string
	Timezone    string

	LLMProvider       string
	AnthropicAPIKey   string
	AnthropicModel    string
	OpenAIAPIKey      string
	OpenAIModel       string
	CompletionTimeout int // seconds

	EscalationThreshold float64
	ImportMinConfidence float64

	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioWhatsAppFrom string

	DashboardURL  string
	MediaBaseURL  string
	SweepSchedule string
}

func Load() Config {
	return Config{
		Port:        envInt("ASKOPS_PORT", 8760),
		NatsURL:     envStr("NATS_URL", ""),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		RedisAddr:   envStr("REDIS_ADDR", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		Timezone:    envStr("TIMEZONE", "UTC"),

		LLMProvider:       strings.ToLower(envStr("LLM_PROVIDER", "anthropic")),
		AnthropicAPIKey:   envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:    envStr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		OpenAIAPIKey:      envStr("OPENAI_API_KEY", ""),
		OpenAIModel:       envStr("OPENAI_MODEL", "gpt-4o-mini"),
		CompletionTimeout: envInt("COMPLETION_TIMEOUT_SECONDS", 20),

		EscalationThreshold: envFloat("ESCALATION_THRESHOLD", 0.7),
		ImportMinConfidence: envFloat("IMPORT_MIN_CONFIDENCE", 0.6),

		TwilioAccountSID:   envStr("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:    envStr("TWILIO_AUTH_TOKEN", ""),
		TwilioWhatsAppFrom: envStr("TWILIO_WHATSAPP_FROM", ""),

		DashboardURL:  envStr("DASHBOARD_URL", "https://app.askops.io"),
		MediaBaseURL:  envStr("MEDIA_BASE_URL", ""),
		SweepSchedule: envStr("SWEEP_SCHEDULE", "@every 1m"),
	}
}

// TwilioConfigured reports whether outbound WhatsApp delivery can be used.
func (c Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioWhatsAppFrom != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
