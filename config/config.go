/*
Package config loads server settings from the environment.

PURPOSE:
  One flat Config struct filled from environment variables, with an
  optional .env file for local development. Command-line flags in
  cmd/server override the address and database path.

KEYS:
  APP_ADDR               listen address (":8080")
  APP_ENV                development | production
  DB_PATH                SQLite file ("./data/leave.db")
  JWT_SECRET             HMAC key for bearer tokens (required in production)
  LOG_LEVEL              debug | info | warn | error
  CORS_ORIGINS           comma separated allowed origins
  LEAVE_CATALOG_PATH     optional JSON category catalog
  ACCRUAL_SCHEDULE       cron spec for the monthly accrual ("0 1 1 * *")
  EXPIRY_SWEEP_SCHEDULE  cron spec for the expiry sweep and alerts ("0 2 * * *")
  ALERT_WINDOW_DAYS      days ahead to alert about expiring credits (45)
  SCHEDULER_ENABLED      run the cron jobs in this process (true)
  EMAIL_ENABLED, EMAIL_FROM, SMTP_HOST, SMTP_PORT, SMTP_USER,
  SMTP_PASSWORD, SMTP_USE_TLS
  NOTIFY_QUEUE_SIZE      buffered notifications before dropping (256)

SEE ALSO:
  - cmd/server/main.go: Startup wiring
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Addr        string
	Environment string
	DBPath      string
	JWTSecret   string
	LogLevel    string
	CORSOrigins []string
	CatalogPath string

	AccrualSchedule     string
	ExpirySweepSchedule string
	AlertWindowDays     int
	SchedulerEnabled    bool

	EmailEnabled    bool
	EmailFrom       string
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPassword    string
	SMTPUseTLS      bool
	NotifyQueueSize int
}

// Load reads .env (when present) and then the process environment.
// Variables already set in the environment win over .env entries.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the process environment only.
func FromEnv() Config {
	return Config{
		Addr:        getEnv("APP_ADDR", ":8080"),
		Environment: getEnv("APP_ENV", "development"),
		DBPath:      getEnv("DB_PATH", "./data/leave.db"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
		CatalogPath: getEnv("LEAVE_CATALOG_PATH", ""),

		AccrualSchedule:     getEnv("ACCRUAL_SCHEDULE", "0 1 1 * *"),
		ExpirySweepSchedule: getEnv("EXPIRY_SWEEP_SCHEDULE", "0 2 * * *"),
		AlertWindowDays:     getEnvInt("ALERT_WINDOW_DAYS", 45),
		SchedulerEnabled:    getEnvBool("SCHEDULER_ENABLED", true),

		EmailEnabled:    getEnvBool("EMAIL_ENABLED", false),
		EmailFrom:       getEnv("EMAIL_FROM", "no-reply@leave.local"),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnvInt("SMTP_PORT", 587),
		SMTPUser:        getEnv("SMTP_USER", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:      getEnvBool("SMTP_USE_TLS", true),
		NotifyQueueSize: getEnvInt("NOTIFY_QUEUE_SIZE", 256),
	}
}

func (c Config) IsProduction() bool { return c.Environment == "production" }

func (c Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.IsProduction() && strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if _, err := cron.ParseStandard(c.AccrualSchedule); err != nil {
		return fmt.Errorf("ACCRUAL_SCHEDULE: %w", err)
	}
	if _, err := cron.ParseStandard(c.ExpirySweepSchedule); err != nil {
		return fmt.Errorf("EXPIRY_SWEEP_SCHEDULE: %w", err)
	}
	if c.AlertWindowDays <= 0 {
		return fmt.Errorf("ALERT_WINDOW_DAYS must be positive")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
