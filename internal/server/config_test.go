package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, int64(256*1024), cfg.MaxMessageSize)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "main", cfg.DefaultRoom)
	assert.Equal(t, 25, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2")
	t.Setenv("DATA_DIR", "/tmp/coven-data")
	t.Setenv("DEFAULT_ROOM", "lobby")

	cfg := NewConfigFromEnv()

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, "/tmp/coven-data", cfg.DataDir)
	assert.Equal(t, "lobby", cfg.DefaultRoom)
}

func TestNewConfigFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "not-a-number")
	t.Setenv("RATE_LIMIT_BURST", "-1")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "zero")
	t.Setenv("DEFAULT_ROOM", "   ")

	cfg := NewConfigFromEnv()

	assert.Equal(t, int64(256*1024), cfg.MaxMessageSize)
	assert.Equal(t, 25, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, "main", cfg.DefaultRoom)
}

func TestSetConfigSanitizesEmptyFields(t *testing.T) {
	SetConfig(&Config{})
	t.Cleanup(func() { SetConfig(nil) })

	cfg := currentConfig()
	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "main", cfg.DefaultRoom)
	assert.Positive(t, cfg.MaxMessageSize)
}
