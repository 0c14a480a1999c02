package errs_test

import (
	"net/http"
	"testing"

	"github.com/deppfellow/cardrelay/internal/errs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		err    *errs.HTTPError
		status int
		code   string
	}{
		{errs.NewBadRequestError("insufficient data"), http.StatusBadRequest, "BAD_REQUEST"},
		{errs.NewForbiddenError("type x is not allowed for y"), http.StatusForbidden, "FORBIDDEN"},
		{errs.NewNotFoundError("route not found"), http.StatusNotFound, "NOT_FOUND"},
		{errs.NewTooManyRequestsError("slow down"), http.StatusTooManyRequests, "TOO_MANY_REQUESTS"},
		{errs.NewBadGatewayError("unable to create card"), http.StatusBadGateway, "BAD_GATEWAY"},
		{errs.NewInternalServerError(), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.err.Message, tt.err.Error())
		})
	}
}

func TestWithFieldErrorsCopies(t *testing.T) {
	base := errs.NewBadRequestError("invalid label_id")
	detailed := base.WithFieldErrors([]errs.FieldError{{Field: "label_id", Error: "must be 24 hexadecimal characters"}})

	assert.Empty(t, base.Errors)
	assert.Len(t, detailed.Errors, 1)
	assert.Equal(t, base.Message, detailed.Message)
}

func TestIsMatchesAnyHTTPError(t *testing.T) {
	wrapped := errors.Wrap(errs.NewBadGatewayError("unable to add cover to card"), "attach cover")

	assert.ErrorIs(t, wrapped, &errs.HTTPError{})

	var httpErr *errs.HTTPError
	require.True(t, errors.As(wrapped, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.Status)
}
