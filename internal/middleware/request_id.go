package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	// RequestIDHeader carries the request correlation id in both directions.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the echo context key of the id.
	RequestIDKey = "request_id"
)

// RequestID reuses an incoming X-Request-ID or generates a UUID, stores it
// in the echo context and echoes it back on the response.
//
// The request id is unrelated to the correlation token embedded in card
// names: it identifies one HTTP exchange in the logs only.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			c.Set(RequestIDKey, requestID)
			c.Response().Header().Set(RequestIDHeader, requestID)

			return next(c)
		}
	}
}

// GetRequestID retrieves the request ID from Echo context.
//
// Returns empty string if not set.
func GetRequestID(c echo.Context) string {
	if requestID, ok := c.Get(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
