// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	FrontendURL    string   `env:"FRONTEND_URL"`
	DBPath         string   `env:"DB_PATH" envDefault:"./data/journey.db"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	Retention      RetentionConfig
	Timeout        TimeoutConfig
}

// RetentionConfig controls how long journey entries are kept.
type RetentionConfig struct {
	MaxAge   time.Duration `env:"JOURNEY_RETENTION" envDefault:"2160h"`
	Interval time.Duration `env:"RETENTION_INTERVAL" envDefault:"1h"`
}

// TimeoutConfig holds timeouts for outbound and health operations.
type TimeoutConfig struct {
	HealthCheck time.Duration `env:"HEALTH_CHECK_TIMEOUT" envDefault:"5s"`
	Report      time.Duration `env:"JOURNEY_REPORT_TIMEOUT" envDefault:"0s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Retention.MaxAge <= 0 {
		return fmt.Errorf("JOURNEY_RETENTION must be > 0")
	}
	if c.Retention.Interval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be > 0")
	}
	if c.Timeout.HealthCheck <= 0 {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be > 0")
	}
	if c.Timeout.Report < 0 {
		return fmt.Errorf("JOURNEY_REPORT_TIMEOUT cannot be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// Level returns the configured slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel maps a LOG_LEVEL value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", s)
	}
}
