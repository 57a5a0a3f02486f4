// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidRetention is returned when RETENTION_WINDOW is not positive.
	ErrInvalidRetention = errors.New("config: RETENTION_WINDOW must be positive")
	// ErrInvalidInactivity is returned when INACTIVITY_TIMEOUT is not positive.
	ErrInvalidInactivity = errors.New("config: INACTIVITY_TIMEOUT must be positive")
	// ErrInvalidIDLength is returned when ID_LENGTH is not positive.
	ErrInvalidIDLength = errors.New("config: ID_LENGTH must be positive")
	// ErrInvalidChunkSize is returned when CHUNK_SIZE is not positive.
	ErrInvalidChunkSize = errors.New("config: CHUNK_SIZE must be positive")
	// ErrInvalidUAFilter is returned when UA_FILTER is not a valid regular expression.
	ErrInvalidUAFilter = errors.New("config: UA_FILTER is not a valid regular expression")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=1880" json:"port"`

	// Storage settings
	StorageDir string `env:"STORAGE_DIR" json:"storage_dir"`

	// Session lifecycle settings
	RetentionWindow   time.Duration `env:"RETENTION_WINDOW, default=24h" json:"retention_window"`
	InactivityTimeout time.Duration `env:"INACTIVITY_TIMEOUT, default=5m" json:"inactivity_timeout"`
	IDLength          int           `env:"ID_LENGTH, default=8" json:"id_length"`

	// ChunkSize is the chunk-size hint advertised to upload clients.
	ChunkSize int64 `env:"CHUNK_SIZE, default=8388608" json:"chunk_size"`

	// UAFilter is an optional regular expression of user agents to reject.
	UAFilter string `env:"UA_FILTER" json:"ua_filter,omitempty"`

	// Optional S3 archive settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 archive configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if any value fails validation.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(os.TempDir(), "phile")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all configured values are usable.
func (c *Config) Validate() error {
	if c.RetentionWindow <= 0 {
		return ErrInvalidRetention
	}
	if c.InactivityTimeout <= 0 {
		return ErrInvalidInactivity
	}
	if c.IDLength <= 0 {
		return ErrInvalidIDLength
	}
	if c.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if c.UAFilter != "" {
		if _, err := regexp.Compile(c.UAFilter); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidUAFilter, err)
		}
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, StorageDir: %s, RetentionWindow: %s, InactivityTimeout: %s, IDLength: %d, ChunkSize: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.StorageDir,
		c.RetentionWindow,
		c.InactivityTimeout,
		c.IDLength,
		c.ChunkSize,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
