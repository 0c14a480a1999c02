package middleware

import (
	"net/http"

	"github.com/deppfellow/cardrelay/internal/errs"
	"github.com/deppfellow/cardrelay/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// GlobalMiddlewares groups the middleware applied to every route and the
// global error handler.
type GlobalMiddlewares struct {
	server *server.Server
}

// NewGlobalMiddlewares constructs the middleware bundle.
func NewGlobalMiddlewares(s *server.Server) *GlobalMiddlewares {
	return &GlobalMiddlewares{
		server: s,
	}
}

// CORS returns Echo's CORS middleware configured from server.cors_allowed_origins.
//
// Forms are usually posted from a static site on another origin.
func (global *GlobalMiddlewares) CORS() echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: global.server.Config.Server.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	})
}

// BodyLimit caps the whole request body.
func (global *GlobalMiddlewares) BodyLimit() echo.MiddlewareFunc {
	return middleware.BodyLimit(global.server.Config.Server.BodyLimit)
}

// RequestLogger emits one "API" log line per request.
//
// When a handler returns an error the response has not been written yet, so
// the status is derived from the error the same way the error handler does.
// Reference: https://github.com/labstack/echo/issues/2310#issuecomment-1288196898
func (global *GlobalMiddlewares) RequestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogError:   true,
		LogLatency: true,
		LogHost:    true,
		LogMethod:  true,
		LogURIPath: true,

		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			statusCode := v.Status
			if v.Error != nil {
				statusCode, _, _ = resolveError(v.Error)
			}

			logger := GetLogger(c)

			var e *zerolog.Event
			switch {
			case statusCode >= 500:
				e = logger.Error().Err(v.Error)
			case statusCode >= 400:
				e = logger.Warn()
			default:
				e = logger.Info()
			}

			e.
				Dur("latency", v.Latency).
				Int("status", statusCode).
				Str("method", v.Method).
				Str("uri", v.URI).
				Str("host", v.Host).
				Str("ip", c.RealIP()).
				Str("user_agent", c.Request().UserAgent()).
				Msg("API")

			return nil
		},
	})
}

// Recover turns handler panics into 500 responses.
func (global *GlobalMiddlewares) Recover() echo.MiddlewareFunc {
	return middleware.Recover()
}

// Secure adds the standard security headers.
func (global *GlobalMiddlewares) Secure() echo.MiddlewareFunc {
	return middleware.Secure()
}

// resolveError maps any error to the status, code and client message of the
// response.
//
// Errors that are neither *errs.HTTPError nor *echo.HTTPError become a
// generic 500 so internal details never reach the client.
func resolveError(err error) (status int, code, message string) {
	var httpErr *errs.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status, httpErr.Code, httpErr.Message
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		if echoErr.Code == http.StatusNotFound {
			notFound := errs.NewNotFoundError("route not found")
			return notFound.Status, notFound.Code, notFound.Message
		}
		status = echoErr.Code
		code = errs.MakeUpperCaseWithUnderscores(http.StatusText(status))
		if msg, ok := echoErr.Message.(string); ok {
			return status, code, msg
		}
		return status, code, http.StatusText(status)
	}

	internal := errs.NewInternalServerError()
	return internal.Status, internal.Code, internal.Message
}

// GlobalErrorHandler is the final error funnel for the entire HTTP server.
//
// Every response body is plain text. The original error, which may carry the
// board API response or a wrapped cause, is only logged.
func (global *GlobalMiddlewares) GlobalErrorHandler(err error, c echo.Context) {
	status, code, message := resolveError(err)

	logger := *GetLogger(c)

	var e *zerolog.Event
	if status >= 500 {
		e = logger.Error().Stack()
	} else {
		e = logger.Warn()
	}

	var httpErr *errs.HTTPError
	if errors.As(err, &httpErr) && len(httpErr.Errors) > 0 {
		e = e.Interface("field_errors", httpErr.Errors)
	}

	e.Err(err).
		Int("status", status).
		Str("error_code", code).
		Msg(message)

	if c.Response().Committed {
		return
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}

	_ = c.String(status, message)
}
