package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/deppfellow/cardrelay/internal/config"
	"github.com/deppfellow/cardrelay/internal/middleware"
	"github.com/deppfellow/cardrelay/internal/server"
	"github.com/labstack/echo/v4"
)

// HealthHandler serves GET /status for uptime monitors and load balancers.
type HealthHandler struct {
	Handler
}

// NewHealthHandler constructs a HealthHandler with access to shared app dependencies.
func NewHealthHandler(s *server.Server) *HealthHandler {
	return &HealthHandler{
		Handler: NewHandler(s),
	}
}

// CheckHealth reports status, timestamp, environment and the enabled
// dependency checks.
//
// It returns 200 when every check passes and 503 otherwise. With no checks
// configured it only proves the process is serving.
func (h *HealthHandler) CheckHealth(c echo.Context) error {
	start := time.Now()

	logger := middleware.GetLogger(c).With().
		Str("operation", "health_check").
		Logger()

	checks := map[string]interface{}{}
	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"environment": h.server.Config.Primary.Env,
		"checks":      checks,
	}
	isHealthy := true

	obs := h.server.Config.Observability
	if obs.HasCheck(config.CheckTrello) {
		ctx, cancel := context.WithTimeout(c.Request().Context(), obs.HealthChecks.Timeout)
		defer cancel()

		checkStart := time.Now()

		// Reading the target list proves both reachability and credentials.
		if _, err := h.server.Trello.GetList(ctx); err != nil {
			checks[config.CheckTrello] = map[string]interface{}{
				"status":        "unhealthy",
				"response_time": time.Since(checkStart).String(),
				"error":         err.Error(),
			}
			isHealthy = false

			logger.Error().
				Err(err).
				Dur("response_time", time.Since(checkStart)).
				Msg("trello health check failed")

			h.recordHealthError(map[string]interface{}{
				"check_type":       config.CheckTrello,
				"operation":        "health_check",
				"error_type":       "trello_unhealthy",
				"response_time_ms": time.Since(checkStart).Milliseconds(),
				"error_message":    err.Error(),
			})
		} else {
			checks[config.CheckTrello] = map[string]interface{}{
				"status":        "healthy",
				"response_time": time.Since(checkStart).String(),
			}

			logger.Debug().
				Dur("response_time", time.Since(checkStart)).
				Msg("trello health check passed")
		}
	}

	if !isHealthy {
		response["status"] = "unhealthy"

		logger.Warn().
			Dur("total_duration", time.Since(start)).
			Msg("health check failed")

		h.recordHealthError(map[string]interface{}{
			"check_type":        "overall",
			"operation":         "health_check",
			"error_type":        "overall_unhealthy",
			"total_duration_ms": time.Since(start).Milliseconds(),
		})

		return c.JSON(http.StatusServiceUnavailable, response)
	}

	return c.JSON(http.StatusOK, response)
}

func (h *HealthHandler) recordHealthError(attrs map[string]interface{}) {
	if h.server.LoggerService != nil && h.server.LoggerService.GetApplication() != nil {
		h.server.LoggerService.GetApplication().RecordCustomEvent("HealthCheckError", attrs)
	}
}
