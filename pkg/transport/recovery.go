package transport

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rhuss/ember/pkg/api"
)

// PanicError carries a recovered panic value and the stack at the point
// of recovery.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// NewPanicError captures the current stack for a recovered value.
func NewPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

// Recovery returns middleware that catches panics in the handler and
// converts them to server error responses. The connection stays usable
// after a recovered panic.
func Recovery(production bool) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *api.Request) (resp *api.Response) {
			defer func() {
				if r := recover(); r != nil {
					resp = ErrorResponse(NewPanicError(r), production)
				}
			}()
			return next.ServeRequest(ctx, req)
		})
	}
}
