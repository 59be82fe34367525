package routing

import (
	"cmp"
	"context"
	"slices"

	"github.com/rhuss/ember/pkg/api"
)

// MiddlewareFunc inspects a request before the action runs. Returning a
// nil response continues with the next step; a non-nil response is served
// as-is and skips everything downstream. A non-nil error is handled like
// an action failure.
type MiddlewareFunc func(ctx context.Context, req *api.Request) (*api.Response, error)

// Middleware is a MiddlewareFunc with its position within its scope.
// Lower Order runs first; equal orders keep declaration order.
type Middleware struct {
	Order int
	Fn    MiddlewareFunc
}

// InstanceMiddlewareFunc is controller middleware that needs the
// per-request controller instance.
type InstanceMiddlewareFunc func(ctx context.Context, instance any, req *api.Request) (*api.Response, error)

// InstanceMiddleware is an InstanceMiddlewareFunc with its order.
type InstanceMiddleware struct {
	Order int
	Fn    InstanceMiddlewareFunc
}

// Use wraps fn as Middleware with order 0.
func Use(fn MiddlewareFunc) Middleware {
	return Middleware{Fn: fn}
}

func sortedMiddleware(mws []Middleware) []Middleware {
	out := slices.Clone(mws)
	slices.SortStableFunc(out, func(a, b Middleware) int { return cmp.Compare(a.Order, b.Order) })
	return out
}

func sortedInstanceMiddleware(mws []InstanceMiddleware) []InstanceMiddleware {
	out := slices.Clone(mws)
	slices.SortStableFunc(out, func(a, b InstanceMiddleware) int { return cmp.Compare(a.Order, b.Order) })
	return out
}

// runMiddleware runs mws in order and stops at the first response or error.
func runMiddleware(ctx context.Context, mws []Middleware, req *api.Request) (*api.Response, error) {
	for _, m := range mws {
		if resp, err := m.Fn(ctx, req); resp != nil || err != nil {
			return resp, err
		}
	}
	return nil, nil
}
