// Command minitrello serves an in-memory imitation of the board API for
// local runs of the relay. Point CARDRELAY_TRELLO__BASE_URL at
// http://localhost:<port>/1 and use the credentials printed at startup.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deppfellow/cardrelay/internal/logger"
	"github.com/deppfellow/cardrelay/internal/trellotest"
)

func main() {
	addr := flag.String("addr", envOr("MINITRELLO_ADDR", ":8000"), "listen address")
	flag.Parse()

	log := logger.NewLogger("minitrello", "info", false)

	board := trellotest.NewBoard()
	srv := &http.Server{
		Addr:              *addr,
		Handler:           board.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("addr", *addr).
		Str("key", trellotest.TestKey).
		Str("token", trellotest.TestToken).
		Str("list_id", trellotest.TestListID).
		Msg("serving fake board API")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("fake board stopped")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
