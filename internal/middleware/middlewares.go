package middleware

import (
	"github.com/deppfellow/cardrelay/internal/server"
	"github.com/newrelic/go-agent/v3/newrelic"
)

// Middlewares groups all middleware components used by the HTTP server.
//
// Everything is built once from the application container and reused during
// router setup.
type Middlewares struct {
	// Global holds CORS, request logging, recovery, secure headers, the
	// body limit and the global error handler.
	Global *GlobalMiddlewares

	// ContextEnhancer attaches a request-scoped logger to every request.
	ContextEnhancer *ContextEnhancer

	// Tracing provides New Relic middleware and transaction attributes.
	Tracing *TracingMiddleware

	// RateLimit throttles submissions per client IP.
	RateLimit *RateLimitMiddleware
}

// NewMiddlewares constructs all middleware components.
//
// When New Relic is not configured nrApp is nil and tracing degrades into a
// no-op.
func NewMiddlewares(s *server.Server) *Middlewares {
	var nrApp *newrelic.Application
	if s.LoggerService != nil {
		nrApp = s.LoggerService.GetApplication()
	}

	return &Middlewares{
		Global:          NewGlobalMiddlewares(s),
		ContextEnhancer: NewContextEnhancer(s),
		Tracing:         NewTracingMiddleware(s, nrApp),
		RateLimit:       NewRateLimitMiddleware(s),
	}
}
