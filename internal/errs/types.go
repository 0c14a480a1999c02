package errs

import "strings"

// FieldError represents a field-level validation error.
// Example:
//
//	{ "field": "label_id", "error": "must be 24 hexadecimal characters" }
//
// Field errors are logged; the client only ever sees HTTPError.Message.
type FieldError struct {
	// Field is the form field name the error relates to (e.g. "label_id").
	Field string `json:"field"`

	// Error is the human-readable error message.
	Error string `json:"error"`
}

// HTTPError is the main custom error type for relay responses.
//
// Fields:
//   - Code: machine-friendly error code (e.g. "BAD_GATEWAY"), used in logs.
//   - Message: the plain-text body sent to the client.
//   - Status: HTTP status code.
//   - Errors: optional per-field details, logged only.
type HTTPError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Status  int          `json:"status"`
	Errors  []FieldError `json:"errors"`
}

// Error makes *HTTPError satisfy the built-in `error` interface.
func (e *HTTPError) Error() string {
	return e.Message
}

// Is reports whether target is also an *HTTPError.
//
// It does NOT compare Code/Status. Use errors.As to inspect those.
func (e *HTTPError) Is(target error) bool {
	_, ok := target.(*HTTPError)

	return ok
}

// WithFieldErrors returns a copy of this HTTPError carrying field details.
func (e *HTTPError) WithFieldErrors(fieldErrors []FieldError) *HTTPError {
	return &HTTPError{
		Code:    e.Code,
		Message: e.Message,
		Status:  e.Status,
		Errors:  fieldErrors,
	}
}

// MakeUpperCaseWithUnderscores converts a string into an UPPER_CASE_WITH_UNDERSCORES format.
//
// Example:
//
//	"Bad Gateway" -> "BAD_GATEWAY"
func MakeUpperCaseWithUnderscores(str string) string {
	return strings.ToUpper(strings.ReplaceAll(str, " ", "_"))
}
