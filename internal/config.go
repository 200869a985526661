package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	LogLevel    string
	DatabaseUrl string

	// Application base URL (for event links in reminder emails)
	BaseURL string

	// SMTP fallback configuration.
	// The scheduler prefers the active smtp_settings row in the database;
	// these values are used when no row exists (development setups).
	SMTPHost       string
	SMTPPort       int
	SMTPEncryption string // "none", "ssl" or "starttls"
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	SMTPFromName   string

	// Scheduler Configuration
	SchedulerInterval   time.Duration // how often RunOnce fires
	SchedulerRunOnStart bool          // run a pass immediately on startup
	SMTPTimeout         time.Duration // per-operation socket timeout

	// Firebase Cloud Messaging (optional - push notifications are skipped
	// entirely when no credentials file is configured)
	FCMCredentialsFile string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		// SMTP defaults for Mailhog (development)
		SMTPHost:       getEnv("SMTP_HOST", "localhost"),
		SMTPPort:       getEnvInt("SMTP_PORT", 1025),
		SMTPEncryption: getEnv("SMTP_ENCRYPTION", "none"),
		SMTPUsername:   getEnv("SMTP_USERNAME", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:       getEnv("SMTP_FROM", "powiadomienia@zlot.app"),
		SMTPFromName:   getEnv("SMTP_FROM_NAME", "Zlot"),

		// Scheduler defaults - the reminder bands are widened enough to
		// tolerate a couple of missed ticks, so every 2 minutes is plenty
		SchedulerInterval: getEnvDuration("SCHEDULER_INTERVAL", 2*time.Minute),
		SchedulerRunOnStart: getEnvBool("SCHEDULER_RUN_ON_START", true),
		SMTPTimeout:       getEnvDuration("SMTP_TIMEOUT", 20*time.Second),

		FCMCredentialsFile: getEnv("FCM_CREDENTIALS_FILE", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	// Validate SMTP encryption mode
	switch cfg.SMTPEncryption {
	case "none", "ssl", "starttls":
	default:
		return nil, fmt.Errorf("SMTP_ENCRYPTION must be 'none', 'ssl' or 'starttls', got: %s", cfg.SMTPEncryption)
	}

	if cfg.SchedulerInterval < 30*time.Second {
		return nil, fmt.Errorf("SCHEDULER_INTERVAL must be at least 30s, got: %v", cfg.SchedulerInterval)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
