package handler

import (
	"time"

	"github.com/deppfellow/cardrelay/internal/middleware"
	"github.com/deppfellow/cardrelay/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/integrations/nrpkgerrors"
	"github.com/newrelic/go-agent/v3/newrelic"
)

// Handler is the base handler type that holds shared application dependencies.
type Handler struct {
	server *server.Server
}

// NewHandler constructs a base Handler.
func NewHandler(s *server.Server) Handler {
	return Handler{server: s}
}

// BindFunc reads and validates the request payload.
//
// The returned release func is called once the request is done, on success
// and on failure alike. It may be nil.
type BindFunc[Req any] func(c echo.Context) (req Req, release func(), err error)

// HandlerFunc runs the endpoint on a bound payload.
type HandlerFunc[Req any, Res any] func(c echo.Context, req Req) (Res, error)

// ResponseHandler writes a successful result and names the operation in logs.
type ResponseHandler interface {
	Handle(c echo.Context, result interface{}) error
	GetOperation() string
	AddAttributes(txn *newrelic.Transaction, result interface{})
}

// TextResponseHandler writes a fixed plain-text body.
type TextResponseHandler struct {
	status int
	body   string
}

func (h TextResponseHandler) Handle(c echo.Context, result interface{}) error {
	return c.String(h.status, h.body)
}

func (h TextResponseHandler) GetOperation() string {
	return "handler_text"
}

func (h TextResponseHandler) AddAttributes(txn *newrelic.Transaction, result interface{}) {
	// http.status_code is already set by tracing middleware (EnhanceTracing).
}

// handleRequest is the shared execution pipeline of every endpoint:
//
//   - bind + validate, timed as the validation phase
//   - handler execution, timed separately
//   - structured logging with the request-scoped logger
//   - New Relic attributes and noticed errors
//   - response writing
func handleRequest[Req any, Res any](
	c echo.Context,
	bind BindFunc[Req],
	handler HandlerFunc[Req, Res],
	responseHandler ResponseHandler,
) error {
	start := time.Now()
	route := c.Path()

	txn := newrelic.FromContext(c.Request().Context())
	if txn != nil {
		txn.AddAttribute("handler.name", route)
		responseHandler.AddAttributes(txn, nil)
	}

	logger := middleware.GetLogger(c).With().
		Str("operation", responseHandler.GetOperation()).
		Str("route", route).
		Logger()

	logger.Debug().Msg("handling request")

	// ---------------- Validation phase ---------------------------------------
	validationStart := time.Now()

	req, release, err := bind(c)
	if release != nil {
		defer release()
	}
	validationDuration := time.Since(validationStart)

	if err != nil {
		logger.Warn().
			Err(err).
			Dur("validation_duration", validationDuration).
			Msg("request validation failed")

		if txn != nil {
			txn.NoticeError(nrpkgerrors.Wrap(err))
			txn.AddAttribute("validation.status", "failed")
			txn.AddAttribute("validation.duration_ms", validationDuration.Milliseconds())
		}

		return err
	}

	if txn != nil {
		txn.AddAttribute("validation.status", "success")
		txn.AddAttribute("validation.duration_ms", validationDuration.Milliseconds())
	}

	// ---------------- Handler execution phase --------------------------------
	handlerStart := time.Now()
	result, err := handler(c, req)
	handlerDuration := time.Since(handlerStart)

	if err != nil {
		logger.Error().
			Err(err).
			Dur("handler_duration", handlerDuration).
			Dur("total_duration", time.Since(start)).
			Msg("handler execution failed")

		if txn != nil {
			txn.AddAttribute("handler.status", "error")
			txn.AddAttribute("handler.duration_ms", handlerDuration.Milliseconds())
		}
		return err
	}

	if txn != nil {
		txn.AddAttribute("handler.status", "success")
		txn.AddAttribute("handler.duration_ms", handlerDuration.Milliseconds())
		txn.AddAttribute("total.duration_ms", time.Since(start).Milliseconds())
		responseHandler.AddAttributes(txn, result)
	}

	logger.Info().
		Dur("handler_duration", handlerDuration).
		Dur("validation_duration", validationDuration).
		Dur("total_duration", time.Since(start)).
		Msg("request completed successfully")

	return responseHandler.Handle(c, result)
}

// HandleText wraps an endpoint whose success response is a fixed text body.
func HandleText[Req any, Res any](
	bind BindFunc[Req],
	handler HandlerFunc[Req, Res],
	status int,
	body string,
) echo.HandlerFunc {
	return func(c echo.Context) error {
		return handleRequest(c, bind, handler, TextResponseHandler{status: status, body: body})
	}
}
