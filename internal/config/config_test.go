package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/simple-memory/internal/config"
)

// clearEnv blanks every variable LoadConfig reads so the host environment
// cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SIMPLE_MEMORY_PORT", "SIMPLE_MEMORY_HOST", "SIMPLE_MEMORY_STORAGE_ENGINE",
		"SIMPLE_MEMORY_SEED_PATH", "SIMPLE_MEMORY_WEBHOOK_URL", "SIMPLE_MEMORY_WEBHOOK_TIMEOUT",
		"SIMPLE_MEMORY_BREAKER_MAX_FAILURES", "SIMPLE_MEMORY_BREAKER_TIMEOUT",
		"SIMPLE_MEMORY_RATE_LIMIT_RPS", "SIMPLE_MEMORY_RATE_LIMIT_BURST", "SIMPLE_MEMORY_DEBUG",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "Default host must be 127.0.0.1 for security")
	assert.Equal(t, 6464, cfg.Server.Port)
	assert.Equal(t, config.EngineMemory, cfg.Storage.StorageEngine)
	assert.Empty(t, cfg.Seed.Path)
	assert.Empty(t, cfg.Notify.WebhookURL)
	assert.Equal(t, 5*time.Second, cfg.Notify.WebhookTimeout)
	assert.Equal(t, 3, cfg.Notify.BreakerMaxFailures)
	assert.Equal(t, 30*time.Second, cfg.Notify.BreakerTimeout)
	assert.Equal(t, 10.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "127.0.0.1:6464", cfg.Addr())
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SIMPLE_MEMORY_HOST", "0.0.0.0")
	t.Setenv("SIMPLE_MEMORY_PORT", "9000")
	t.Setenv("SIMPLE_MEMORY_STORAGE_ENGINE", "sqlite")
	t.Setenv("SIMPLE_MEMORY_SEED_PATH", "seed.yaml")
	t.Setenv("SIMPLE_MEMORY_WEBHOOK_URL", "http://hooks.local/events")
	t.Setenv("SIMPLE_MEMORY_WEBHOOK_TIMEOUT", "250ms")
	t.Setenv("SIMPLE_MEMORY_BREAKER_TIMEOUT", "1m")
	t.Setenv("SIMPLE_MEMORY_RATE_LIMIT_RPS", "2.5")
	t.Setenv("SIMPLE_MEMORY_DEBUG", "yes")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
	assert.Equal(t, config.EngineSQLite, cfg.Storage.StorageEngine)
	assert.Equal(t, "seed.yaml", cfg.Seed.Path)
	assert.Equal(t, "http://hooks.local/events", cfg.Notify.WebhookURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Notify.WebhookTimeout)
	assert.Equal(t, time.Minute, cfg.Notify.BreakerTimeout)
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	assert.True(t, cfg.Debug)
}

func TestLoadConfig_UnparseableValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("SIMPLE_MEMORY_PORT", "not-a-port")
	t.Setenv("SIMPLE_MEMORY_WEBHOOK_TIMEOUT", "soon")
	t.Setenv("SIMPLE_MEMORY_DEBUG", "maybe")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 6464, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Notify.WebhookTimeout)
	assert.False(t, cfg.Debug)
}

func TestLoadConfig_RejectsUnknownEngine(t *testing.T) {
	clearEnv(t)
	t.Setenv("SIMPLE_MEMORY_STORAGE_ENGINE", "postgres")

	cfg, err := config.LoadConfig()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Server:    config.ServerConfig{Host: "127.0.0.1", Port: 6464},
			Storage:   config.StorageConfig{StorageEngine: config.EngineMemory},
			Notify:    config.NotifyConfig{BreakerMaxFailures: 3},
			RateLimit: config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"negative port", func(c *config.Config) { c.Server.Port = -1 }},
		{"port too large", func(c *config.Config) { c.Server.Port = 70000 }},
		{"zero rate", func(c *config.Config) { c.RateLimit.RequestsPerSecond = 0 }},
		{"zero burst", func(c *config.Config) { c.RateLimit.Burst = 0 }},
		{"zero breaker failures", func(c *config.Config) { c.Notify.BreakerMaxFailures = 0 }},
		{"empty engine", func(c *config.Config) { c.Storage.StorageEngine = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
