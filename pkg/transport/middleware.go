package transport

// Middleware wraps a Handler. The server installs Recovery, RequestID and
// Logging ahead of any middleware passed with server.WithMiddleware.
type Middleware func(Handler) Handler

// Chain composes middleware so that Chain(a, b, c)(h) is a(b(c(h))).
// An empty chain returns the handler unchanged.
func Chain(middlewares ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
