package handler

import (
	"github.com/deppfellow/cardrelay/internal/server"
	"github.com/deppfellow/cardrelay/internal/service"
)

// Handlers groups all HTTP handlers so the router gets a single object.
type Handlers struct {
	Health *HealthHandler // Health serves GET /status.
	Card   *CardHandler   // Card serves the submission endpoint.
}

// NewHandlers constructs the handler container.
func NewHandlers(s *server.Server, services *service.Services) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(s),
		Card:   NewCardHandler(s, services.Card),
	}
}
