// Package config provides plugind configuration loaded from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds plugind configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"plugind"`

	// Subject overrides (empty = defaults, or the manifest for invocation events)
	InvokeSubject       string `envconfig:"INVOKE_SUBJECT"`
	InvokedEventSubject string `envconfig:"INVOKED_EVENT_SUBJECT"`

	// Timeouts
	RequestTimeout       time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`
	DefaultInvokeTimeout time.Duration `envconfig:"DEFAULT_INVOKE_TIMEOUT" default:"30s"`
	CancelGrace          time.Duration `envconfig:"CANCEL_GRACE" default:"2s"`
	EventPublishTimeout  time.Duration `envconfig:"EVENT_PUBLISH_TIMEOUT" default:"5s"`

	// MaxInFlight caps COMMS requests handled at once; further messages wait.
	MaxInFlight int `envconfig:"MAX_IN_FLIGHT" default:"64"`

	// Plugin manifest
	ManifestFile string `envconfig:"PLUGIN_MANIFEST_FILE"`

	// Database (optional; empty disables the invocation audit log)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP endpoint (HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`
	EventStreamBuffer  int           `envconfig:"EVENT_STREAM_BUFFER" default:"64"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	return &c, nil
}

// ValidateForServe checks required config when running the server.
func (c *Config) ValidateForServe() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.DefaultInvokeTimeout < 0 {
		return fmt.Errorf("%s - DEFAULT_INVOKE_TIMEOUT must not be negative", logPrefix)
	}
	if c.CancelGrace < 0 {
		return fmt.Errorf("%s - CANCEL_GRACE must not be negative", logPrefix)
	}
	if c.EventPublishTimeout < 0 {
		return fmt.Errorf("%s - EVENT_PUBLISH_TIMEOUT must not be negative", logPrefix)
	}
	if c.MaxInFlight <= 0 {
		return fmt.Errorf("%s - MAX_IN_FLIGHT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.HTTPAddr == "" && (c.HTTPPort <= 0 || c.HTTPPort > 65535) {
		return fmt.Errorf("%s - HTTP_PORT %d out of range", logPrefix, c.HTTPPort)
	}
	if c.RunMigrations && c.DatabaseURL == "" {
		return fmt.Errorf("%s - RUN_MIGRATIONS requires DATABASE_URL", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, audit).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

// AuditEnabled reports whether invocations are recorded in the database.
func (c *Config) AuditEnabled() bool {
	return c.DatabaseURL != ""
}

// ListenAddr returns the HTTP listen address: HTTP_ADDR when set, otherwise ":HTTP_PORT".
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// SlogLevel maps LOG_LEVEL onto a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
