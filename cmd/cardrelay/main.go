// Command cardrelay serves the form-to-card relay.
//
// Configuration is read from CARDRELAY_* environment variables (and a .env
// file when present). See internal/config.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deppfellow/cardrelay/internal/config"
	"github.com/deppfellow/cardrelay/internal/handler"
	"github.com/deppfellow/cardrelay/internal/logger"
	"github.com/deppfellow/cardrelay/internal/middleware"
	"github.com/deppfellow/cardrelay/internal/router"
	"github.com/deppfellow/cardrelay/internal/server"
	"github.com/deppfellow/cardrelay/internal/service"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := logger.NewLogger("cardrelay", "info", false)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}

	loggerService := logger.NewLoggerService(cfg.Observability)
	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	srv, err := server.New(cfg, &log, loggerService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize server")
	}

	services := service.NewServices(srv)
	handlers := handler.NewHandlers(srv, services)
	middlewares := middleware.NewMiddlewares(srv)
	r := router.NewRouter(srv, handlers, middlewares)

	srv.SetupHTTPServer(r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}

	log.Info().Msg("server exited properly")
}
