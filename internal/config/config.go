// Package config loads schemasync settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrNoDatabase is returned by RequireDatabase when no URI is configured.
var ErrNoDatabase = errors.New("no database configured: set DATABASE_URI or pass --database")

// Config holds the settings for a sync pass.
type Config struct {
	DatabaseURI string
	SchemaPath  string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	ConnectRetries int
	RetryDelay     time.Duration

	AllowColumnDrop bool

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURI:     firstEnv("DATABASE_URI", "SQLALCHEMY_DATABASE_URI", "DATABASE_URL"),
		SchemaPath:      os.Getenv("SCHEMASYNC_SCHEMA"),
		ConnectTimeout:  getEnvDuration("SCHEMASYNC_CONNECT_TIMEOUT", 10*time.Second),
		ReadTimeout:     getEnvDuration("SCHEMASYNC_READ_TIMEOUT", 30*time.Second),
		ConnectRetries:  getEnvInt("SCHEMASYNC_CONNECT_RETRIES", 3),
		RetryDelay:      getEnvDuration("SCHEMASYNC_RETRY_DELAY", time.Second),
		AllowColumnDrop: getEnvBool("SCHEMASYNC_ALLOW_COLUMN_DROP", false),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.ConnectRetries < 1 || c.ConnectRetries > 10 {
		return fmt.Errorf("SCHEMASYNC_CONNECT_RETRIES must be 1-10, got %d", c.ConnectRetries)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("SCHEMASYNC_CONNECT_TIMEOUT must be positive, got %s", c.ConnectTimeout)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("SCHEMASYNC_READ_TIMEOUT must be positive, got %s", c.ReadTimeout)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("SCHEMASYNC_RETRY_DELAY must not be negative, got %s", c.RetryDelay)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// RequireDatabase returns an error when no database URI is set.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseURI) == "" {
		return ErrNoDatabase
	}
	return nil
}

// Helper functions
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
