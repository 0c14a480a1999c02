// Package handler is the HTTP layer of the relay.
//
// It spools the inbound form, hands it to the service layer for validation
// and relaying, and writes the plain-text response. Errors are returned to
// the global error handler, which picks the status code.
package handler
