package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/transport"
)

// HandlerFunc is a synchronous action.
type HandlerFunc func(ctx context.Context, args *Args) (*api.Response, error)

// AsyncHandlerFunc is an asynchronous action. The returned channel must
// deliver exactly one Result.
type AsyncHandlerFunc func(ctx context.Context, args *Args) <-chan Result

// Result is the outcome of an asynchronous action.
type Result struct {
	Response *api.Response
	Err      error
}

// Action is one invocable endpoint under a controller prefix. Exactly one
// of Handler and AsyncHandler must be set.
type Action struct {
	Name         string
	Params       []Param
	Handler      HandlerFunc
	AsyncHandler AsyncHandlerFunc
}

// Async reports whether the action completes asynchronously.
func (a *Action) Async() bool {
	return a.AsyncHandler != nil
}

// Signature describes the action's name, parameters and calling mode. It
// changes whenever anything that affects dispatch changes.
func (a *Action) Signature() string {
	params := make([]string, len(a.Params))
	for i, p := range a.Params {
		params[i] = p.signature()
	}
	mode := "sync"
	if a.Async() {
		mode = "async"
	}
	return fmt.Sprintf("%s(%s) %s", a.Name, strings.Join(params, ", "), mode)
}

// Controller groups actions under a path prefix. The prefix has no leading
// slash and usually ends with one, e.g. "Heatmap/".
type Controller struct {
	Prefix  string
	Actions []Action

	// Middleware runs for every action of the controller before any
	// controller instance exists.
	Middleware []Middleware

	// InstanceMiddleware runs after New has created the per-request
	// controller instance. It requires New.
	InstanceMiddleware []InstanceMiddleware

	// New creates the per-request controller instance passed to instance
	// middleware and available to actions through Args.Instance.
	New func() any
}

// Go adapts fn into an AsyncHandlerFunc running on its own goroutine.
// A panic in fn is delivered as an error Result.
func Go(fn HandlerFunc) AsyncHandlerFunc {
	return func(ctx context.Context, args *Args) <-chan Result {
		ch := make(chan Result, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					ch <- Result{Err: transport.NewPanicError(r)}
				}
			}()
			resp, err := fn(ctx, args)
			ch <- Result{Response: resp, Err: err}
		}()
		return ch
	}
}

// inline runs a synchronous handler on the caller's goroutine and presents
// its outcome like an asynchronous one.
func inline(fn HandlerFunc) AsyncHandlerFunc {
	return func(ctx context.Context, args *Args) <-chan Result {
		resp, err := fn(ctx, args)
		ch := make(chan Result, 1)
		ch <- Result{Response: resp, Err: err}
		return ch
	}
}

var (
	// ErrDuplicateRoute is returned by Build when two actions resolve to
	// the same path.
	ErrDuplicateRoute = errors.New("duplicate route")

	// ErrInvalidRoute is returned by Build for malformed controllers or
	// actions.
	ErrInvalidRoute = errors.New("invalid route")
)

// Route is a compiled terminal of the Table.
type Route struct {
	key                string
	prefix             string
	action             *Action
	binding            *binding
	handler            AsyncHandlerFunc
	middleware         []Middleware
	instanceMiddleware []InstanceMiddleware
	newInstance        func() any
}

// Path returns prefix+actionName.
func (r *Route) Path() string { return r.key }

// Prefix returns the controller prefix.
func (r *Route) Prefix() string { return r.prefix }

// Action returns the registered action.
func (r *Route) Action() *Action { return r.action }

// Signature returns the route's signature string.
func (r *Route) Signature() string { return r.prefix + r.action.Signature() }

func compileRoute(c *Controller, a *Action) (*Route, error) {
	key := c.Prefix + a.Name
	switch {
	case strings.HasPrefix(c.Prefix, "/"):
		return nil, fmt.Errorf("%w: prefix %q has a leading slash", ErrInvalidRoute, c.Prefix)
	case a.Name == "":
		return nil, fmt.Errorf("%w: action without name under %q", ErrInvalidRoute, c.Prefix)
	case strings.IndexByte(key, 0) >= 0:
		return nil, fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidRoute, key)
	case (a.Handler == nil) == (a.AsyncHandler == nil):
		return nil, fmt.Errorf("%w: %s needs exactly one of Handler and AsyncHandler", ErrInvalidRoute, key)
	case len(c.InstanceMiddleware) > 0 && c.New == nil:
		return nil, fmt.Errorf("%w: %s has instance middleware but no New", ErrInvalidRoute, key)
	}

	b, err := compileBinding(a.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoute, key, err)
	}

	handler := a.AsyncHandler
	if handler == nil {
		handler = inline(a.Handler)
	}

	return &Route{
		key:                key,
		prefix:             c.Prefix,
		action:             a,
		binding:            b,
		handler:            handler,
		middleware:         sortedMiddleware(c.Middleware),
		instanceMiddleware: sortedInstanceMiddleware(c.InstanceMiddleware),
		newInstance:        c.New,
	}, nil
}

// invoke runs controller middleware, binds parameters and calls the action.
func (r *Route) invoke(ctx context.Context, req *api.Request, b binder) (*api.Response, error) {
	if resp, err := runMiddleware(ctx, r.middleware, req); resp != nil || err != nil {
		return resp, err
	}

	var instance any
	if r.newInstance != nil {
		instance = r.newInstance()
	}
	for _, m := range r.instanceMiddleware {
		if resp, err := m.Fn(ctx, instance, req); resp != nil || err != nil {
			return resp, err
		}
	}

	args, err := b.bind(r.binding, req)
	if err != nil {
		var bindErr *BindError
		if errors.As(err, &bindErr) {
			return bindErr.Response(), nil
		}
		return nil, err
	}
	args.instance = instance

	ch := r.handler(ctx, args)
	if ch == nil {
		return nil, fmt.Errorf("action %s returned no result channel", r.key)
	}
	select {
	case res := <-ch:
		return res.Response, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
