package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "http://localhost:4000", cfg.AttendanceServiceURL)
	assert.Equal(t, cfg.AttendanceServiceURL, cfg.DocumentBaseURL)
	assert.Equal(t, time.Duration(0), cfg.UpstreamTimeout)
	assert.Equal(t, "memory", cfg.OutboxBackend)
	assert.Equal(t, 600, cfg.SignatureWidth)
	assert.Equal(t, 300, cfg.SignatureHeight)
	assert.Equal(t, 1000, cfg.MaxSessions)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ATTENDANCE_SERVICE_URL", "https://attendance.example.com")
	t.Setenv("DOCUMENT_BASE_URL", "https://files.example.com")
	t.Setenv("UPSTREAM_TIMEOUT", "5s")
	t.Setenv("OUTBOX_BACKEND", "redis")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("SESSION_TTL", "bogus")
	t.Setenv("SIGNATURE_WIDTH", "wide")
	t.Setenv("MAX_SESSIONS", "50")

	cfg := Load()
	assert.Equal(t, "https://attendance.example.com", cfg.AttendanceServiceURL)
	assert.Equal(t, "https://files.example.com", cfg.DocumentBaseURL)
	assert.Equal(t, 5*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, "redis", cfg.OutboxBackend)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 600, cfg.SignatureWidth)
	assert.Equal(t, 50, cfg.MaxSessions)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.AttendanceServiceURL = "localhost:4000"
	cfg.OutboxBackend = "kafka"
	cfg.SessionTTL = 0
	cfg.SignatureHeight = -1

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"ATTENDANCE_SERVICE_URL", "OUTBOX_BACKEND", "SESSION_TTL", "SIGNATURE_WIDTH"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateProductionSigningKey(t *testing.T) {
	cfg := Load()
	cfg.Env = "production"
	assert.ErrorContains(t, cfg.Validate(), "SESSION_SIGNING_KEY")

	cfg.SessionSigningKey = "real-secret"
	assert.NoError(t, cfg.Validate())
}

func TestValidateLimits(t *testing.T) {
	cfg := Load()
	cfg.MaxSessions = 0
	assert.ErrorContains(t, cfg.Validate(), "MAX_SESSIONS")

	cfg = Load()
	cfg.SignatureWidth = 100000
	assert.ErrorContains(t, cfg.Validate(), "must be at most 2000")

	cfg.SignatureWidth = 2000
	cfg.SignatureHeight = 2000
	assert.NoError(t, cfg.Validate())
}
