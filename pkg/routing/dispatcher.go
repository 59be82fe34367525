package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/codec"
	"github.com/rhuss/ember/pkg/debug"
	"github.com/rhuss/ember/pkg/transport"
)

// NotFoundHandler answers requests that match no route.
type NotFoundHandler func(ctx context.Context, req *api.Request) *api.Response

// ExceptionHandler turns an action error or panic into a response.
type ExceptionHandler func(ctx context.Context, req *api.Request, err error) *api.Response

// Dispatcher routes requests through the route table. It implements
// transport.Handler and never lets an error or panic escape.
type Dispatcher struct {
	table      atomic.Pointer[Table]
	middleware []Middleware
	notFound   NotFoundHandler
	exception  ExceptionHandler
	onError    func(req *api.Request, err error)
	binder     binder
	production bool
	logger     *slog.Logger
}

var _ transport.Handler = (*Dispatcher)(nil)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMiddleware sets the application-wide middleware. It runs before the
// route lookup, so it also sees requests that end up as 404.
func WithMiddleware(mws ...Middleware) DispatcherOption {
	return func(d *Dispatcher) {
		d.middleware = append(d.middleware, mws...)
	}
}

// WithNotFoundHandler replaces the default 404 response.
func WithNotFoundHandler(h NotFoundHandler) DispatcherOption {
	return func(d *Dispatcher) { d.notFound = h }
}

// WithExceptionHandler replaces the default error-to-response mapping.
func WithExceptionHandler(h ExceptionHandler) DispatcherOption {
	return func(d *Dispatcher) { d.exception = h }
}

// WithErrorObserver registers fn to be called for every error that
// reaches the exception handler.
func WithErrorObserver(fn func(req *api.Request, err error)) DispatcherOption {
	return func(d *Dispatcher) { d.onError = fn }
}

// WithCodec sets the codec used to decode body parameters.
func WithCodec(c codec.Codec) DispatcherOption {
	return func(d *Dispatcher) { d.binder.codec = c }
}

// WithProduction hides error details in default 500 responses.
func WithProduction(production bool) DispatcherOption {
	return func(d *Dispatcher) { d.production = production }
}

// WithDispatcherLogger sets the logger for action failures.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// NewDispatcher creates a dispatcher serving t.
func NewDispatcher(t *Table, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		binder: binder{codec: codec.Default},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.middleware = sortedMiddleware(d.middleware)
	if d.notFound == nil {
		d.notFound = func(context.Context, *api.Request) *api.Response { return api.NotFound() }
	}
	if d.exception == nil {
		production := d.production
		d.exception = func(_ context.Context, _ *api.Request, err error) *api.Response {
			return transport.ErrorResponse(err, production)
		}
	}
	d.table.Store(t)
	return d
}

// Table returns the table currently in use.
func (d *Dispatcher) Table() *Table {
	return d.table.Load()
}

// Reload swaps in t unless it has the same fingerprint as the current
// table. It reports whether the table was replaced. Requests already in
// flight finish on the table they started with.
func (d *Dispatcher) Reload(t *Table) bool {
	old := d.table.Load()
	if old != nil && old.Fingerprint() == t.Fingerprint() {
		debug.Log("routing", "route table unchanged, reload skipped")
		return false
	}
	d.table.Store(t)
	d.logger.Info("route table reloaded", "routes", t.Len())
	return true
}

// ServeRequest implements transport.Handler.
func (d *Dispatcher) ServeRequest(ctx context.Context, req *api.Request) (resp *api.Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = d.fail(ctx, req, transport.NewPanicError(r))
		}
	}()

	resp, err := d.dispatch(ctx, req)
	if err == nil && resp == nil {
		err = fmt.Errorf("no response for %s", req.Path())
	}
	if err == nil {
		// Encode structured payloads here so codec failures are handled
		// like any other action error.
		err = resp.Resolve()
	}
	if err != nil {
		return d.fail(ctx, req, err)
	}
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, req *api.Request) (*api.Response, error) {
	if resp, err := runMiddleware(ctx, d.middleware, req); resp != nil || err != nil {
		return resp, err
	}

	route, _ := d.table.Load().Lookup(req.Path())
	if route == nil {
		debug.Log("routing", "no route", "path", req.Path())
		return d.notFound(ctx, req), nil
	}
	debug.Trace("routing", "route matched", "path", route.Path(), "action", route.action.Name)
	return route.invoke(ctx, req, d.binder)
}

func (d *Dispatcher) fail(ctx context.Context, req *api.Request, err error) *api.Response {
	if d.onError != nil {
		d.onError(req, err)
	}
	if transport.StatusFromError(err) == api.StatusInternalServerError {
		attrs := []any{"path", req.Path(), "error", err}
		var pe *transport.PanicError
		if errors.As(err, &pe) {
			attrs = append(attrs, "stack", string(pe.Stack))
		}
		d.logger.Error("action failed", attrs...)
	}

	resp := d.exception(ctx, req, err)
	if resp == nil {
		return transport.ErrorResponse(err, d.production)
	}
	if rerr := resp.Resolve(); rerr != nil {
		return transport.ErrorResponse(rerr, d.production)
	}
	return resp
}
