// Package logger configure the application's logging,
// monitoring, and observability.
//
// It uses *ZeroLog* for logging and integrates with
// *New Relic* to instrument the relay, forwarding logs,
// outbound call segments, and traces for debugging
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/deppfellow/cardrelay/internal/config"
	"github.com/newrelic/go-agent/v3/integrations/logcontext-v2/zerologWriter"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// LoggerService owns the optional New Relic application.
//
// When no license key is configured nrApp stays nil and every consumer
// degrades to plain zerolog output.
type LoggerService struct {
	nrApp *newrelic.Application
}

// NewLoggerService starts the New Relic application if a license key is set.
func NewLoggerService(cfg *config.ObservabilityConfig) *LoggerService {
	service := &LoggerService{}

	if cfg.NewRelic.LicenseKey == "" {
		fmt.Println("New Relic license key not provided, skipping initialization")
		return service
	}

	configOptions := []newrelic.ConfigOption{
		newrelic.ConfigAppName(cfg.ServiceName),
		newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(cfg.NewRelic.AppLogForwardingEnabled),
		newrelic.ConfigDistributedTracerEnabled(cfg.NewRelic.DistributedTracingEnabled),
		newrelic.ConfigEnabled(true),
	}

	if cfg.NewRelic.DebugLogging {
		configOptions = append(configOptions, newrelic.ConfigDebugLogger(os.Stdout))
	}

	app, err := newrelic.NewApplication(configOptions...)
	if err != nil {
		fmt.Printf("Failed to initialize New Relic: %v\n", err)
		return service
	}

	service.nrApp = app

	fmt.Printf("New Relic initialized for app: %s\n", cfg.ServiceName)
	return service
}

// Shutdown flushes pending New Relic data.
func (ls *LoggerService) Shutdown() {
	if ls.nrApp != nil {
		ls.nrApp.Shutdown(10 * time.Second)
	}
}

// GetApplication returns the New Relic application, nil when disabled.
func (ls *LoggerService) GetApplication() *newrelic.Application {
	return ls.nrApp
}

// NewLogger creates a logger without New Relic integration.
func NewLogger(serviceName, level string, isProd bool) zerolog.Logger {
	environment := "development"
	if isProd {
		environment = "production"
	}

	return NewLoggerWithService(&config.ObservabilityConfig{
		ServiceName: serviceName,
		Environment: environment,
		Logging: config.LoggingConfig{
			Level: level,
		},
	}, nil)
}

// NewLoggerWithService builds the root logger.
//
//   - production: JSON to stdout, forwarded to New Relic when enabled
//   - otherwise: console writer unless Logging.Format is "json"
func NewLoggerWithService(cfg *config.ObservabilityConfig, loggerService *LoggerService) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = "2006-01-02 15:04:05"
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	var writer io.Writer = os.Stdout

	if loggerService != nil && loggerService.nrApp != nil {
		// Forward logs to New Relic in addition to stdout.
		nrWriter := zerologWriter.New(os.Stdout, loggerService.nrApp)
		writer = nrWriter
	} else if !cfg.IsProduction() && cfg.Logging.Format != "json" {
		writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}
	}

	logger := zerolog.New(writer).
		Level(logLevel).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Logger()

	if !cfg.IsProduction() {
		logger = logger.With().Stack().Logger()
	}

	return logger
}

// WithTraceContext adds the New Relic trace and span ids to a logger.
func WithTraceContext(logger zerolog.Logger, txn *newrelic.Transaction) zerolog.Logger {
	if txn == nil {
		return logger
	}

	metadata := txn.GetTraceMetadata()

	return logger.With().
		Str("trace.id", metadata.TraceID).
		Str("span.id", metadata.SpanID).
		Logger()
}
