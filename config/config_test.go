package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("APP_ADDR", "")
	t.Setenv("ALERT_WINDOW_DAYS", "")

	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 45, cfg.AlertWindowDays)
	assert.Equal(t, "0 1 1 * *", cfg.AccrualSchedule)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("APP_ADDR", ":9090")
	t.Setenv("CORS_ORIGINS", "https://hr.example.gov, https://admin.example.gov")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("EMAIL_ENABLED", "yes")

	cfg := FromEnv()
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"https://hr.example.gov", "https://admin.example.gov"}, cfg.CORSOrigins)
	assert.Equal(t, 2525, cfg.SMTPPort)
	assert.False(t, cfg.EmailEnabled, "unparseable bools fall back")
}

func TestValidate(t *testing.T) {
	base := FromEnv()

	prod := base
	prod.Environment = "production"
	prod.JWTSecret = ""
	assert.ErrorContains(t, prod.Validate(), "JWT_SECRET")

	badCron := base
	badCron.AccrualSchedule = "every month"
	assert.ErrorContains(t, badCron.Validate(), "ACCRUAL_SCHEDULE")

	email := base
	email.EmailEnabled = true
	email.SMTPHost = ""
	assert.ErrorContains(t, email.Validate(), "SMTP_HOST")
}
