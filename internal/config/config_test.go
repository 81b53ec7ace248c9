package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LARDER_ENV", "development")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 100, cfg.RateLimitCount)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 2, cfg.BackupHour)
	assert.Equal(t, 7, cfg.BackupRetentionDays)
	assert.False(t, cfg.S3Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LARDER_STORE_TIMEOUT", "250ms")
	t.Setenv("LARDER_RATE_LIMIT", "7")
	t.Setenv("LARDER_ADMIN_EMAILS", " Boss@Example.com, ops@example.com ,")
	t.Setenv("LARDER_BACKUP_ENABLED", "false")
	t.Setenv("LARDER_BASE_URL", "https://larder.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, 7, cfg.RateLimitCount)
	assert.False(t, cfg.BackupEnabled)
	assert.Equal(t, "https://larder.example.com", cfg.BaseURL)
	assert.True(t, cfg.IsAdminEmail("boss@example.com"))
	assert.True(t, cfg.IsAdminEmail("OPS@example.com"))
	assert.False(t, cfg.IsAdminEmail("someone@example.com"))
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("LARDER_RATE_LIMIT", "lots")
	t.Setenv("LARDER_STORE_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.RateLimitCount)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
}

func TestValidateRejectsDefaultSecretInProduction(t *testing.T) {
	t.Setenv("LARDER_ENV", "production")
	t.Setenv("LARDER_JWT_SECRET", DefaultJWTSecret)
	t.Setenv("LARDER_POSTMARK_TOKEN", "pm-token")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LARDER_JWT_SECRET")

	t.Setenv("LARDER_JWT_SECRET", "a-real-secret")
	_, err = Load()
	assert.NoError(t, err)
}

func TestValidateRequiresMailInProduction(t *testing.T) {
	t.Setenv("LARDER_ENV", "production")
	t.Setenv("LARDER_JWT_SECRET", "a-real-secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LARDER_POSTMARK_TOKEN")

	t.Setenv("LARDER_POSTMARK_TOKEN", "pm-token")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.MailEnabled())
}

func TestValidateLogFormat(t *testing.T) {
	cfg := &Config{JWTSecret: "x", StoreTimeout: time.Second, RateLimitCount: 1, RateLimitWindow: time.Second, LogFormat: "xml"}
	assert.Error(t, cfg.Validate())
	cfg.LogFormat = "json"
	assert.NoError(t, cfg.Validate())
}
