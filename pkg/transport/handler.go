package transport

import (
	"context"

	"github.com/rhuss/ember/pkg/api"
)

// Handler serves one request. It must always return a non-nil response.
type Handler interface {
	ServeRequest(ctx context.Context, req *api.Request) *api.Response
}

// HandlerFunc is an adapter that allows using an ordinary function as a
// Handler.
type HandlerFunc func(ctx context.Context, req *api.Request) *api.Response

// ServeRequest calls f(ctx, req).
func (f HandlerFunc) ServeRequest(ctx context.Context, req *api.Request) *api.Response {
	return f(ctx, req)
}
