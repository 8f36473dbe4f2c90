package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := fromEnv()
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, 2*time.Minute, cfg.NonceTTL)
	assert.Equal(t, 10, cfg.CheckInPerMin)
	assert.Equal(t, 30, cfg.NoncePerMin)
	assert.Equal(t, 15, cfg.BulkPerMin)
	assert.True(t, cfg.AutoMigrate)
	assert.False(t, cfg.CSRFEnabled)
	require.NoError(t, cfg.Validate())
}

func TestOverrides(t *testing.T) {
	t.Setenv("NONCE_TTL", "45s")
	t.Setenv("CHECKIN_PER_MIN", "3")
	t.Setenv("CSRF_ENABLED", "1")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("EPHEMERAL_BACKEND", "memory")

	cfg := fromEnv()
	assert.Equal(t, 45*time.Second, cfg.NonceTTL)
	assert.Equal(t, 3, cfg.CheckInPerMin)
	assert.True(t, cfg.CSRFEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "memory", cfg.EphemeralBackend)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("NONCE_TTL", "soon")
	t.Setenv("BULK_PER_MIN", "-4")
	t.Setenv("AUTO_MIGRATE", "maybe")

	cfg := fromEnv()
	assert.Equal(t, 2*time.Minute, cfg.NonceTTL)
	assert.Equal(t, 15, cfg.BulkPerMin)
	assert.True(t, cfg.AutoMigrate)
}

func TestValidate(t *testing.T) {
	for _, env := range []string{"prod", "production"} {
		t.Run(env, func(t *testing.T) {
			t.Setenv("APP_ENV", env)
			cfg := fromEnv()
			assert.True(t, cfg.IsProd())
			assert.Error(t, cfg.Validate(), "default signing key must be rejected")

			cfg.JWTSigningKey = "a-real-secret"
			assert.NoError(t, cfg.Validate())
		})
	}

	cfg := fromEnv()
	assert.False(t, cfg.IsProd())

	cfg = fromEnv()
	cfg.QueueBackend = "kafka"
	assert.Error(t, cfg.Validate())
}
