package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("RATE_LIMIT_RPM", "")
	t.Setenv("ADMIN_SECRET", "")
	t.Setenv("ABUSE_WEBHOOK_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPM)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "staging")
	t.Setenv("RATE_LIMIT_RPM", "30")
	t.Setenv("ABUSE_WEBHOOK_URL", "https://fraud-ops.example.com/hook")
	t.Setenv("ABUSE_WEBHOOK_SECRET", "whsec")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, 30, cfg.RateLimitRPM)
	assert.Equal(t, "https://fraud-ops.example.com/hook", cfg.AbuseWebhookURL)
}

func TestValidateProductionRequiresAdminSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("ADMIN_SECRET", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("ADMIN_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestValidateWebhookSecretPairing(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("ABUSE_WEBHOOK_URL", "https://fraud-ops.example.com/hook")
	t.Setenv("ABUSE_WEBHOOK_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}
