// Package validation contains the logic for validating
// request data and configuration.
//
// It uses the `validator` library to enforce rules (like
// required fields or board identifier formats) defined in struct tags
// and extracts validation errors into a format the relay can
// turn into client responses.
package validation
