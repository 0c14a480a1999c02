package errs

import (
	"net/http"
)

// newHTTPError builds an HTTPError whose code is derived from the status text:
// http.StatusText(502) => "Bad Gateway" => "BAD_GATEWAY".
func newHTTPError(status int, message string) *HTTPError {
	return &HTTPError{
		Code:    MakeUpperCaseWithUnderscores(http.StatusText(status)),
		Message: message,
		Status:  status,
	}
}

// NewBadRequestError creates a 400 Bad Request HTTPError.
//
// Used for missing or malformed submission data and content type mismatches.
func NewBadRequestError(message string) *HTTPError {
	return newHTTPError(http.StatusBadRequest, message)
}

// NewForbiddenError creates a 403 Forbidden HTTPError.
//
// Used when an uploaded file has a type the endpoint does not accept.
func NewForbiddenError(message string) *HTTPError {
	return newHTTPError(http.StatusForbidden, message)
}

// NewNotFoundError creates a 404 Not Found HTTPError.
func NewNotFoundError(message string) *HTTPError {
	return newHTTPError(http.StatusNotFound, message)
}

// NewTooManyRequestsError creates a 429 Too Many Requests HTTPError.
func NewTooManyRequestsError(message string) *HTTPError {
	return newHTTPError(http.StatusTooManyRequests, message)
}

// NewBadGatewayError creates a 502 Bad Gateway HTTPError.
//
// Any failure of the board API maps here: unreachable, rejected, or a
// response of unexpected shape. Side effects already committed on the
// board are not rolled back.
func NewBadGatewayError(message string) *HTTPError {
	return newHTTPError(http.StatusBadGateway, message)
}

// NewInternalServerError creates a 500 Internal Server Error HTTPError.
//
// The message is the generic status text, never the internal error.
func NewInternalServerError() *HTTPError {
	return newHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
