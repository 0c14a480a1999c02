package handler

import (
	"net/http"

	"github.com/deppfellow/cardrelay/internal/errs"
	"github.com/deppfellow/cardrelay/internal/middleware"
	"github.com/deppfellow/cardrelay/internal/server"
	"github.com/deppfellow/cardrelay/internal/service"
	"github.com/deppfellow/cardrelay/internal/upload"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// okBody is the body of every successful relay.
const okBody = "OK"

// CardHandler serves the submission endpoint.
type CardHandler struct {
	Handler
	cards *service.CardService
}

// NewCardHandler constructs a CardHandler.
func NewCardHandler(s *server.Server, cards *service.CardService) *CardHandler {
	return &CardHandler{
		Handler: NewHandler(s),
		cards:   cards,
	}
}

// CreateCard relays one form submission to the board and answers "OK".
//
// Spooled files are removed when the request ends, whatever the outcome.
func (h *CardHandler) CreateCard(c echo.Context) error {
	return HandleText(h.bindSubmission, h.relay, http.StatusOK, okBody)(c)
}

func (h *CardHandler) bindSubmission(c echo.Context) (*service.Submission, func(), error) {
	form, err := upload.Spool(c.Request(), upload.Options{
		TempDir:     h.server.Config.Upload.TempDir,
		MaxFileSize: h.server.Config.Upload.MaxFileSize,
	})
	if err != nil {
		// The body limit middleware fails the read mid-stream for chunked bodies.
		if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
			return nil, nil, err
		}
		// A body that cannot be read as a form carries no usable fields.
		if errors.Is(err, upload.ErrMalformedForm) {
			return nil, nil, &service.StepError{
				Step:     "spool",
				Response: errs.NewBadRequestError("insufficient data"),
				Cause:    err,
			}
		}
		return nil, nil, errors.Wrap(err, "spool submission")
	}

	release := func() {
		if err := form.Remove(); err != nil {
			middleware.GetLogger(c).Error().Err(err).Str("dir", form.Dir()).Msg("failed to remove spooled files")
		}
	}

	sub, err := h.cards.PrepareSubmission(form)
	if err != nil {
		return nil, release, err
	}

	return sub, release, nil
}

func (h *CardHandler) relay(c echo.Context, sub *service.Submission) (struct{}, error) {
	return struct{}{}, h.cards.Relay(c.Request().Context(), sub)
}
