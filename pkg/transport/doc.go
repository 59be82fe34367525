// Package transport defines the request handler contract between the
// connection loop and the router, plus the middleware that wraps it.
//
// # Handler
//
// A Handler turns one parsed request into exactly one response and never
// returns an error: failures are already rendered as responses by the time
// ServeRequest returns. The router's Dispatcher is the main implementation.
//
// # Middleware
//
// Middleware wraps a Handler with cross-cutting behavior. Built-in
// middleware provides panic recovery, request ID assignment (X-Request-ID)
// and structured logging via log/slog. Unlike the router's short-circuit
// middleware, these wrap the whole dispatch and see the final response.
package transport
