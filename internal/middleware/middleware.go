// Package middleware stores the global middleware of the relay.
//
// These intercept requests to handle cross-cutting concerns
// such as request ids, request logging, CORS, body and rate
// limits, tracing and panic recovery. The global error handler
// that turns every returned error into a plain-text response
// lives here too.
package middleware
