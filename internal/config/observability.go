package config

import (
	"fmt"
	"slices"
	"time"
)

// ObservabilityConfig groups all configuration related to telemetry and runtime visibility:
//   - logging settings (format, level)
//   - New Relic APM and log forwarding
//   - health check settings
//
// It is optional at the root level (pointer in Config). If omitted, defaults are injected.
type ObservabilityConfig struct {
	// ServiceName identifies this service in logs/traces/APM dashboards.
	ServiceName string `koanf:"service_name" validate:"required"`

	// Environment splits telemetry by environment (production, development, ...).
	Environment string `koanf:"environment" validate:"required"`

	Logging      LoggingConfig      `koanf:"logging"`
	NewRelic     NewRelicConfig     `koanf:"new_relic"`
	HealthChecks HealthChecksConfig `koanf:"health_checks"`
}

// LoggingConfig holds application logging configuration.
type LoggingConfig struct {
	// Level is the verbosity threshold (debug/info/warn/error).
	Level string `koanf:"level"`

	// Format selects "json" or "console" output.
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
}

// NewRelicConfig holds configuration for New Relic APM and tracing.
//
// An empty LicenseKey disables New Relic entirely.
type NewRelicConfig struct {
	LicenseKey                string `koanf:"license_key"`
	AppLogForwardingEnabled   bool   `koanf:"app_log_forwarding_enabled"`
	DistributedTracingEnabled bool   `koanf:"distributed_tracing_enabled"`
	DebugLogging              bool   `koanf:"debug_logging"`
}

// HealthChecksConfig controls the dependency checks run by GET /status.
type HealthChecksConfig struct {
	Enabled bool `koanf:"enabled"`

	// Timeout bounds a single dependency check.
	Timeout time.Duration `koanf:"timeout" validate:"gte=0"`

	// Checks names the dependencies to probe. The only known check is "trello".
	Checks []string `koanf:"checks" validate:"dive,oneof=trello"`
}

// CheckTrello is the health check name for the board API.
const CheckTrello = "trello"

// DefaultObservabilityConfig provides a safe set of defaults.
//
// Used when Config.Observability is nil (not provided via env).
func DefaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		ServiceName: "cardrelay",
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		NewRelic: NewRelicConfig{
			LicenseKey:                "",
			AppLogForwardingEnabled:   true,
			DistributedTracingEnabled: true,
			DebugLogging:              false, // mixed log formats otherwise
		},
		HealthChecks: HealthChecksConfig{
			Enabled: true,
			Timeout: 5 * time.Second,
			Checks:  []string{},
		},
	}
}

// Validate applies custom validation rules that go beyond struct tags.
func (c *ObservabilityConfig) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if level := c.GetLogLevel(); !slices.Contains(validLevels, level) {
		return fmt.Errorf("invalid logging level: %s (must be one of: debug, info, warn, error)", level)
	}

	if c.HealthChecks.Enabled && c.HealthChecks.Timeout <= 0 {
		return fmt.Errorf("health_checks timeout must be positive when checks are enabled")
	}

	return nil
}

// GetLogLevel returns the effective log level to use at runtime.
//
// When no level is set, production defaults to "info" and everything else
// to "debug".
func (c *ObservabilityConfig) GetLogLevel() string {
	if c.Logging.Level != "" {
		return c.Logging.Level
	}
	if c.IsProduction() {
		return "info"
	}
	return "debug"
}

// IsProduction reports whether the relay is running in production mode.
func (c *ObservabilityConfig) IsProduction() bool {
	return c.Environment == "production"
}

// HasCheck reports whether the named health check is enabled.
func (c *ObservabilityConfig) HasCheck(name string) bool {
	return c.HealthChecks.Enabled && slices.Contains(c.HealthChecks.Checks, name)
}
