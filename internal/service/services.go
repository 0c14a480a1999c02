package service

import (
	"github.com/deppfellow/cardrelay/internal/server"
)

// Services is a container for all business services.
type Services struct {
	Card *CardService
}

// NewServices wires every service to the shared application container.
func NewServices(s *server.Server) *Services {
	return &Services{
		Card: NewCardService(s.Config, s.Trello),
	}
}
