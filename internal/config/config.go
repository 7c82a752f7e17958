// Package config provides configuration management for simple-memory.
// It loads settings from environment variables with the SIMPLE_MEMORY_
// prefix and provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Storage engines.
const (
	EngineMemory = "memory"
	EngineSQLite = "sqlite"
)

// Config holds all configuration settings for the simple-memory servers.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Seed      SeedConfig
	Notify    NotifyConfig
	RateLimit RateLimitConfig
	Debug     bool // Log every tool call with its duration (default: false)
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 6464)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig selects the repository implementation. Both engines are
// volatile: nothing survives a restart.
type StorageConfig struct {
	StorageEngine string // memory or sqlite (default: memory)
}

// SeedConfig points at an optional YAML file of sessions loaded at startup.
type SeedConfig struct {
	Path string // Seed file path (default: none)
}

// NotifyConfig configures the change-event webhook.
type NotifyConfig struct {
	WebhookURL         string        // POST target for change events (default: disabled)
	WebhookTimeout     time.Duration // Per-delivery timeout (default: 5s)
	BreakerMaxFailures int           // Consecutive failures before the breaker opens (default: 3)
	BreakerTimeout     time.Duration // Open-state duration before a trial delivery (default: 30s)
}

// RateLimitConfig bounds per-client request rates on the HTTP transport.
type RateLimitConfig struct {
	RequestsPerSecond float64 // Sustained rate (default: 10)
	Burst             int     // Burst size (default: 20)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults and validates the result.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the servers cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.StorageEngine {
	case EngineMemory, EngineSQLite:
	default:
		return fmt.Errorf("config: unknown storage engine %q (want %q or %q)",
			c.Storage.StorageEngine, EngineMemory, EngineSQLite)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("config: rate limit must be positive (rps=%v burst=%d)",
			c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}
	if c.Notify.BreakerMaxFailures <= 0 {
		return fmt.Errorf("config: breaker max failures must be positive, got %d", c.Notify.BreakerMaxFailures)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SIMPLE_MEMORY_PORT", 6464),
			Host: getEnv("SIMPLE_MEMORY_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("SIMPLE_MEMORY_STORAGE_ENGINE", EngineMemory),
		},
		Seed: SeedConfig{
			Path: getEnv("SIMPLE_MEMORY_SEED_PATH", ""),
		},
		Notify: NotifyConfig{
			WebhookURL:         getEnv("SIMPLE_MEMORY_WEBHOOK_URL", ""),
			WebhookTimeout:     getEnvDuration("SIMPLE_MEMORY_WEBHOOK_TIMEOUT", 5*time.Second),
			BreakerMaxFailures: getEnvInt("SIMPLE_MEMORY_BREAKER_MAX_FAILURES", 3),
			BreakerTimeout:     getEnvDuration("SIMPLE_MEMORY_BREAKER_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("SIMPLE_MEMORY_RATE_LIMIT_RPS", 10),
			Burst:             getEnvInt("SIMPLE_MEMORY_RATE_LIMIT_BURST", 20),
		},
		Debug: getEnvBool("SIMPLE_MEMORY_DEBUG", false),
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a time.ParseDuration value (e.g. "5s") or returns
// a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
