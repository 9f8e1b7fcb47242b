// Package config provides configuration management for the family tree service.
// It loads settings from environment variables with the FAMILYTREE_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration settings for the family tree application.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Engine    EngineConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
	Breaker   BreakerConfig
	Log       LogConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 6464)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: sqlite or postgres (default: sqlite)
	DataPath      string // Path to data directory (default: ./data)
	PostgresDSN   string // PostgreSQL connection string, required for postgres
}

// EngineConfig contains relationship engine settings.
type EngineConfig struct {
	MetadataSupport  string // Metadata column handling: auto, on, off (default: auto)
	MaxAncestorDepth int    // Generations walked by the circular relationship guard (default: 64)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // API authentication token
}

// RateLimitConfig contains per-client-IP HTTP rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond float64 // Sustained rate (default: 10)
	Burst             int     // Burst size (default: 20)
}

// BreakerConfig contains store circuit breaker settings.
type BreakerConfig struct {
	MaxFailures int           // Consecutive failures before the breaker opens (default: 5)
	Timeout     time.Duration // Open duration before a trial request (default: 30s)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string // debug, info, warn, error (default: info)
	Format string // text or json (default: text)
}

// LoadConfig loads configuration from environment variables with sensible defaults.
// All environment variables use the FAMILYTREE_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("FAMILYTREE_PORT", 6464),
			Host: getEnv("FAMILYTREE_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("FAMILYTREE_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("FAMILYTREE_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("FAMILYTREE_POSTGRES_DSN", ""),
		},
		Engine: EngineConfig{
			MetadataSupport:  getEnv("FAMILYTREE_METADATA_SUPPORT", "auto"),
			MaxAncestorDepth: getEnvInt("FAMILYTREE_MAX_ANCESTOR_DEPTH", 64),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("FAMILYTREE_SECURITY_MODE", "development"),
			APIToken:     getEnv("FAMILYTREE_API_TOKEN", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("FAMILYTREE_RATE_LIMIT", 10),
			Burst:             getEnvInt("FAMILYTREE_RATE_BURST", 20),
		},
		Breaker: BreakerConfig{
			MaxFailures: getEnvInt("FAMILYTREE_BREAKER_MAX_FAILURES", 5),
			Timeout:     getEnvDuration("FAMILYTREE_BREAKER_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("FAMILYTREE_LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("FAMILYTREE_LOG_FORMAT", "text")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for unknown engines and modes.
func (c *Config) Validate() error {
	switch c.Storage.StorageEngine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: FAMILYTREE_POSTGRES_DSN is required for the postgres storage engine")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q (want sqlite or postgres)", c.Storage.StorageEngine)
	}

	switch c.Engine.MetadataSupport {
	case "auto", "on", "off":
	default:
		return fmt.Errorf("config: unknown metadata support mode %q (want auto, on or off)", c.Engine.MetadataSupport)
	}

	if c.Engine.MaxAncestorDepth < 1 {
		return fmt.Errorf("config: max ancestor depth must be >= 1, got %d", c.Engine.MaxAncestorDepth)
	}

	switch c.Security.SecurityMode {
	case "development":
	case "production":
		if c.Security.APIToken == "" {
			return fmt.Errorf("config: FAMILYTREE_API_TOKEN is required in production mode")
		}
	default:
		return fmt.Errorf("config: unknown security mode %q (want development or production)", c.Security.SecurityMode)
	}

	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("config: rate limit must be positive, got %v/s burst %d", c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q (want text or json)", c.Log.Format)
	}

	return nil
}

// SQLitePath returns the database file used by the sqlite storage engine.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.Storage.DataPath, "familytree.db")
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("30s", "2m") or whole seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
