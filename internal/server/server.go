// Package server defines the core Server struct that composes the relay's main dependencies.
//
// It owns the lifecycle of:
//   - configuration
//   - logger + optional New Relic service wrapper
//   - the board API client
//   - http.Server
//
// It provides constructors and start/shutdown logic to run the relay cleanly.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/deppfellow/cardrelay/internal/config"
	"github.com/deppfellow/cardrelay/internal/trello"
	"github.com/rs/zerolog"

	loggerPkg "github.com/deppfellow/cardrelay/internal/logger"
)

// Server is the application container that holds shared resources.
//
// It is not the HTTP server itself. Everything it holds is created once at
// startup and only read afterwards, so handlers share it without locking.
type Server struct {
	// Config holds all environment/config values, including the static
	// board credentials.
	Config *config.Config

	// Logger is the application's main structured logger.
	Logger *zerolog.Logger

	// LoggerService optionally holds the New Relic application instance.
	LoggerService *loggerPkg.LoggerService

	// Trello is the board API client bound to the configured list.
	Trello *trello.Client

	httpServer *http.Server
}

// New constructs a Server and its board client.
//
// Extra client options (e.g. a custom *http.Client) are passed through.
func New(cfg *config.Config, logger *zerolog.Logger, loggerService *loggerPkg.LoggerService, opts ...trello.Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	client := trello.NewClient(cfg.Trello, opts...)

	logger.Info().
		Str("base_url", cfg.Trello.BaseURL).
		Str("list_id", client.ListID()).
		Dur("timeout", client.Timeout()).
		Bool("lookup_by_token", cfg.Trello.LookupByToken).
		Str("form_variant", cfg.Upload.FormVariant).
		Msg("board client configured")

	return &Server{
		Config:        cfg,
		Logger:        logger,
		LoggerService: loggerService,
		Trello:        client,
	}, nil
}

// SetupHTTPServer configures the internal net/http server.
//
// The write timeout covers the whole relay sequence, so it should be larger
// than the board timeout times the number of calls a submission can make.
func (s *Server) SetupHTTPServer(handler http.Handler) {
	s.httpServer = &http.Server{
		Addr:         ":" + s.Config.Server.Port,
		Handler:      handler,
		ReadTimeout:  time.Duration(s.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.Config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.Config.Server.IdleTimeout) * time.Second,
	}
}

// Start runs the HTTP server. It blocks until the server stops.
//
// It requires SetupHTTPServer to be called first. A clean shutdown returns nil.
func (s *Server) Start() error {
	if s.httpServer == nil {
		return errors.New("HTTP server not initialized")
	}

	s.Logger.Info().
		Str("port", s.Config.Server.Port).
		Str("env", s.Config.Primary.Env).
		Str("path", s.Config.Server.Path).
		Msg("starting server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and flushes telemetry.
//
// In-flight submissions run to completion or until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	if s.LoggerService != nil {
		s.LoggerService.Shutdown()
	}

	return nil
}
