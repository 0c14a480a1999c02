package middleware

import (
	"time"

	"github.com/deppfellow/cardrelay/internal/errs"
	"github.com/deppfellow/cardrelay/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware throttles submissions per client IP.
type RateLimitMiddleware struct {
	server *server.Server
}

func NewRateLimitMiddleware(s *server.Server) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		server: s,
	}
}

// Limit returns echo's rate limiter backed by an in-memory token bucket per
// IP. A zero server.rate_limit disables it.
func (r *RateLimitMiddleware) Limit() echo.MiddlewareFunc {
	limit := r.server.Config.Server.RateLimit

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(echo.Context) bool {
			return limit <= 0
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(limit),
			Burst:     max(1, int(limit)),
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			r.RecordRateLimitHit(c.Path())
			GetLogger(c).Warn().Str("identifier", identifier).Msg("rate limit hit")
			return errs.NewTooManyRequestsError("too many submissions")
		},
	})
}

// RecordRateLimitHit records a New Relic custom event when New Relic is enabled.
func (r *RateLimitMiddleware) RecordRateLimitHit(endpoint string) {
	if r.server.LoggerService != nil && r.server.LoggerService.GetApplication() != nil {
		r.server.LoggerService.GetApplication().RecordCustomEvent("RateLimitHit", map[string]interface{}{
			"endpoint": endpoint,
		})
	}
}
