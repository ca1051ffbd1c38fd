package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

const configTestPrefix = "config:config_test"

var allEnvVars = []string{
	"COMMS_URL", "SERVICE_NAME", "INVOKE_SUBJECT", "INVOKED_EVENT_SUBJECT",
	"REQUEST_TIMEOUT", "DEFAULT_INVOKE_TIMEOUT", "CANCEL_GRACE", "PLUGIN_MANIFEST_FILE",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"HTTP_ADDR", "HTTP_PORT", "HEALTH_CHECK_TIMEOUT", "LOG_LEVEL",
	"MAX_IN_FLIGHT", "EVENT_STREAM_BUFFER", "EVENT_PUBLISH_TIMEOUT",
}

// clearEnv unsets every variable the config reads. Set-but-empty is not the same
// as unset for envconfig defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range allEnvVars {
		if prev, ok := os.LookupEnv(env); ok {
			t.Cleanup(func() { os.Setenv(env, prev) })
		}
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", configTestPrefix, err)
	}

	if cfg.COMMSURL != "nats://127.0.0.1:4222" {
		t.Errorf("%s - COMMSURL = %q, want %q", configTestPrefix, cfg.COMMSURL, "nats://127.0.0.1:4222")
	}
	if cfg.COMMSName != "plugind" {
		t.Errorf("%s - COMMSName = %q, want %q", configTestPrefix, cfg.COMMSName, "plugind")
	}
	if cfg.InvokeSubject != "" || cfg.InvokedEventSubject != "" {
		t.Errorf("%s - subjects should default to empty, got %q / %q", configTestPrefix, cfg.InvokeSubject, cfg.InvokedEventSubject)
	}
	if cfg.RequestTimeout != 25*time.Second {
		t.Errorf("%s - RequestTimeout = %v, want 25s", configTestPrefix, cfg.RequestTimeout)
	}
	if cfg.DefaultInvokeTimeout != 30*time.Second {
		t.Errorf("%s - DefaultInvokeTimeout = %v, want 30s", configTestPrefix, cfg.DefaultInvokeTimeout)
	}
	if cfg.CancelGrace != 2*time.Second {
		t.Errorf("%s - CancelGrace = %v, want 2s", configTestPrefix, cfg.CancelGrace)
	}
	if cfg.DatabaseURL != "" || cfg.AuditEnabled() {
		t.Errorf("%s - audit log should be off by default, DatabaseURL = %q", configTestPrefix, cfg.DatabaseURL)
	}
	if cfg.RunMigrations {
		t.Errorf("%s - expected RunMigrations=false by default", configTestPrefix)
	}
	if cfg.MigrationPath != "migrations" {
		t.Errorf("%s - MigrationPath = %q, want %q", configTestPrefix, cfg.MigrationPath, "migrations")
	}
	if cfg.HTTPPort != 8080 || cfg.ListenAddr() != ":8080" {
		t.Errorf("%s - HTTPPort = %d, ListenAddr = %q", configTestPrefix, cfg.HTTPPort, cfg.ListenAddr())
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("%s - HealthCheckTimeout = %v, want 5s", configTestPrefix, cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("%s - LogLevel = %q, want %q", configTestPrefix, cfg.LogLevel, "info")
	}
	if cfg.EventPublishTimeout != 5*time.Second {
		t.Errorf("%s - EventPublishTimeout = %v, want 5s", configTestPrefix, cfg.EventPublishTimeout)
	}
	if cfg.MaxInFlight != 64 || cfg.EventStreamBuffer != 64 {
		t.Errorf("%s - MaxInFlight = %d, EventStreamBuffer = %d, want 64/64", configTestPrefix, cfg.MaxInFlight, cfg.EventStreamBuffer)
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("%s - defaults should validate for serve: %v", configTestPrefix, err)
	}
	if err := cfg.ValidateForDB(); err == nil {
		t.Errorf("%s - ValidateForDB should fail without DATABASE_URL", configTestPrefix)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	overrides := map[string]string{
		"COMMS_URL":              "nats://custom:4222",
		"SERVICE_NAME":           "test-server",
		"INVOKE_SUBJECT":         "custom.invoke",
		"INVOKED_EVENT_SUBJECT":  "custom.invoked",
		"REQUEST_TIMEOUT":        "10s",
		"DEFAULT_INVOKE_TIMEOUT": "1m",
		"CANCEL_GRACE":           "500ms",
		"PLUGIN_MANIFEST_FILE":   "/tmp/plugins.json",
		"DATABASE_URL":           "postgres://test@localhost/test",
		"RUN_MIGRATIONS":         "true",
		"MIGRATION_PATH":         "/tmp/migrations",
		"HTTP_ADDR":              "127.0.0.1:9999",
		"HTTP_PORT":              "9090",
		"HEALTH_CHECK_TIMEOUT":   "10s",
		"LOG_LEVEL":              "debug",
	}
	for key, val := range overrides {
		t.Setenv(key, val)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", configTestPrefix, err)
	}

	if cfg.COMMSURL != "nats://custom:4222" || cfg.COMMSName != "test-server" {
		t.Errorf("%s - COMMS settings = %q / %q", configTestPrefix, cfg.COMMSURL, cfg.COMMSName)
	}
	if cfg.InvokeSubject != "custom.invoke" || cfg.InvokedEventSubject != "custom.invoked" {
		t.Errorf("%s - subjects = %q / %q", configTestPrefix, cfg.InvokeSubject, cfg.InvokedEventSubject)
	}
	if cfg.RequestTimeout != 10*time.Second || cfg.DefaultInvokeTimeout != time.Minute || cfg.CancelGrace != 500*time.Millisecond {
		t.Errorf("%s - timeouts = %v / %v / %v", configTestPrefix, cfg.RequestTimeout, cfg.DefaultInvokeTimeout, cfg.CancelGrace)
	}
	if cfg.ManifestFile != "/tmp/plugins.json" {
		t.Errorf("%s - ManifestFile = %q", configTestPrefix, cfg.ManifestFile)
	}
	if !cfg.AuditEnabled() || !cfg.RunMigrations || cfg.MigrationPath != "/tmp/migrations" {
		t.Errorf("%s - database settings not applied: %+v", configTestPrefix, cfg)
	}
	if cfg.ListenAddr() != "127.0.0.1:9999" {
		t.Errorf("%s - ListenAddr = %q, want HTTP_ADDR to win", configTestPrefix, cfg.ListenAddr())
	}
	if cfg.HealthCheckTimeout != 10*time.Second {
		t.Errorf("%s - HealthCheckTimeout = %v, want 10s", configTestPrefix, cfg.HealthCheckTimeout)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("%s - SlogLevel = %v, want debug", configTestPrefix, cfg.SlogLevel())
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("%s - ValidateForServe: %v", configTestPrefix, err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		t.Errorf("%s - ValidateForDB: %v", configTestPrefix, err)
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("REQUEST_TIMEOUT", "soon")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("%s - expected error for invalid duration", configTestPrefix)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("%s - SlogLevel(%q) = %v, want %v", configTestPrefix, tt.level, got, tt.want)
		}
	}
}

func TestValidateForServe(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RequestTimeout:       time.Second,
			DefaultInvokeTimeout: time.Second,
			CancelGrace:          time.Second,
			HealthCheckTimeout:   time.Second,
			MaxInFlight:          1,
			HTTPPort:             8080,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"zero default invoke timeout allowed", func(c *Config) { c.DefaultInvokeTimeout = 0 }, false},
		{"negative default invoke timeout", func(c *Config) { c.DefaultInvokeTimeout = -time.Second }, true},
		{"negative cancel grace", func(c *Config) { c.CancelGrace = -time.Second }, true},
		{"zero health timeout", func(c *Config) { c.HealthCheckTimeout = 0 }, true},
		{"zero max in flight", func(c *Config) { c.MaxInFlight = 0 }, true},
		{"negative publish timeout", func(c *Config) { c.EventPublishTimeout = -time.Second }, true},
		{"port out of range", func(c *Config) { c.HTTPPort = 70000 }, true},
		{"addr overrides port", func(c *Config) { c.HTTPPort = 0; c.HTTPAddr = ":0" }, false},
		{"migrations without database", func(c *Config) { c.RunMigrations = true }, true},
		{"migrations with database", func(c *Config) { c.RunMigrations = true; c.DatabaseURL = "postgres://x/y" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.ValidateForServe()
			if (err != nil) != tt.wantErr {
				t.Errorf("%s - ValidateForServe() error = %v, wantErr %v", configTestPrefix, err, tt.wantErr)
			}
		})
	}
}
