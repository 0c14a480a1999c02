// Package errs define custom error types and utilities.
//
// Its purpose is to give every failure the relay can surface a
// status code and a short plain-text message, so the client always
// receives exactly one terminal status and message per request.
package errs
