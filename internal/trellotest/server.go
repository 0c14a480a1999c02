package trellotest

import (
	"net/http/httptest"
	"testing"

	"github.com/deppfellow/cardrelay/internal/config"
)

// Server is a Board served over a local httptest server.
type Server struct {
	*Board
	URL string
}

// NewServer starts a Board and stops it when the test ends.
func NewServer(tb testing.TB) *Server {
	tb.Helper()

	board := NewBoard()
	srv := httptest.NewServer(board.Handler())
	tb.Cleanup(srv.Close)

	return &Server{Board: board, URL: srv.URL}
}

// BaseURL is the API root to configure clients with.
func (s *Server) BaseURL() string {
	return s.URL + "/1"
}

// Config returns a trello config block pointing at the server with the
// test credentials.
func (s *Server) Config() config.TrelloConfig {
	return config.TrelloConfig{
		APIKey:   TestKey,
		APIToken: TestToken,
		ListID:   TestListID,
		BaseURL:  s.BaseURL(),
		Timeout:  config.DefaultTrelloTimeout,
	}
}
