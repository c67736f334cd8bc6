// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrStorageBackendInvalid is returned when STORAGE_BACKEND is not one of
	// "none", "form", or "s3".
	ErrStorageBackendInvalid = errors.New("config: STORAGE_BACKEND must be none, form, or s3")
	// ErrStorageEndpointRequired is returned when the form backend is selected
	// without STORAGE_ENDPOINT.
	ErrStorageEndpointRequired = errors.New("config: STORAGE_ENDPOINT is required for the form backend")
	// ErrS3BucketRequired is returned when the s3 backend is selected without
	// S3_BUCKET and S3_REGION.
	ErrS3BucketRequired = errors.New("config: S3_BUCKET and S3_REGION are required for the s3 backend")
)

// Storage backend selectors.
const (
	StorageNone = "none"
	StorageForm = "form"
	StorageS3   = "s3"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Provider settings
	ProvidersFile string `env:"PROVIDERS_FILE" json:"providers_file,omitempty"`

	// Generation settings
	MaxRetries      int `env:"MAX_RETRIES, default=3" json:"max_retries"`
	RetryBaseMS     int `env:"RETRY_BASE_MS, default=2000" json:"retry_base_ms"`
	BatchIntervalMS int `env:"BATCH_INTERVAL_MS, default=2500" json:"batch_interval_ms"`

	// Storage settings
	StorageBackend      string `env:"STORAGE_BACKEND, default=none" json:"storage_backend"` // "none", "form" or "s3"
	StorageEndpoint     string `env:"STORAGE_ENDPOINT" json:"storage_endpoint,omitempty"`
	StorageAccessDomain string `env:"STORAGE_ACCESS_DOMAIN" json:"storage_access_domain,omitempty"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// RetryBase returns the backoff base delay.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMS) * time.Millisecond
}

// BatchInterval returns the minimum spacing between batch submissions.
func (c *Config) BatchInterval() time.Duration {
	return time.Duration(c.BatchIntervalMS) * time.Millisecond
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the selected storage backend is usable.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageNone:
		return nil
	case StorageForm:
		if c.StorageEndpoint == "" {
			return ErrStorageEndpointRequired
		}
		return nil
	case StorageS3:
		if c.S3Bucket == "" || c.S3Region == "" {
			return ErrS3BucketRequired
		}
		return nil
	default:
		return ErrStorageBackendInvalid
	}
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
		"Config{Port: %d, ProvidersFile: %s, MaxRetries: %d, RetryBaseMS: %d, BatchIntervalMS: %d, StorageBackend: %s, StorageEndpoint: %s, StorageAccessDomain: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.ProvidersFile,
		c.MaxRetries,
		c.RetryBaseMS,
		c.BatchIntervalMS,
		c.StorageBackend,
		c.StorageEndpoint,
		c.StorageAccessDomain,
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
