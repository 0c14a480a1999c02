// Package router initializes the HTTP router (using Echo).
//
// It registers the middlewares and maps the submission path and the
// system routes to their handlers.
package router

import (
	"github.com/deppfellow/cardrelay/internal/handler"
	"github.com/deppfellow/cardrelay/internal/middleware"
	"github.com/deppfellow/cardrelay/internal/server"
	"github.com/labstack/echo/v4"
)

// NewRouter builds the echo instance.
//
// Middleware order matters: the request id and the New Relic transaction
// must exist before the context enhancer builds the request logger, and the
// request logger must see that logger.
func NewRouter(s *server.Server, h *handler.Handlers, m *middleware.Middlewares) *echo.Echo {
	router := echo.New()
	router.HideBanner = true
	router.HidePort = true

	router.HTTPErrorHandler = m.Global.GlobalErrorHandler

	router.Use(
		m.Global.CORS(),
		m.Global.Secure(),
		middleware.RequestID(),
		m.Tracing.NewRelicMiddleware(),
		m.Tracing.EnhanceTracing(),
		m.ContextEnhancer.EnhanceContext(),
		m.Global.RequestLogger(),
		m.Global.Recover(),
	)

	registerSystemRoutes(router, h)
	registerCardRoutes(router, s, h, m)

	return router
}

// registerCardRoutes mounts the submission endpoint at server.path.
//
// The body and rate limits only guard this route.
func registerCardRoutes(r *echo.Echo, s *server.Server, h *handler.Handlers, m *middleware.Middlewares) {
	r.POST(s.Config.Server.Path, h.Card.CreateCard,
		m.RateLimit.Limit(),
		m.Global.BodyLimit(),
	)
}
