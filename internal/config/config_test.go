package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10*time.Minute, cfg.HoldTTL)
	assert.Equal(t, 5, cfg.OTPMaxAttempts)
	assert.Equal(t, 6, cfg.OTPCodeLength)
	assert.Equal(t, "09:00", cfg.BusinessDayStart)
	assert.Equal(t, "17:00", cfg.BusinessDayEnd)
	assert.False(t, cfg.UseMemoryQueue)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("HOLD_TTL", "5m")
	t.Setenv("OTP_MAX_ATTEMPTS", "3")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("AGENT_JWT_SECRET", " secret ")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.HoldTTL)
	assert.Equal(t, 3, cfg.OTPMaxAttempts)
	assert.True(t, cfg.UseMemoryQueue)
	assert.True(t, cfg.RedisTLS)
	assert.Equal(t, "secret", cfg.AgentJWTSecret, "env values are trimmed")
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("OTP_MAX_ATTEMPTS", "many")
	t.Setenv("HOLD_TTL", "soon")

	cfg := Load()
	assert.Equal(t, 5, cfg.OTPMaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.HoldTTL)
}
