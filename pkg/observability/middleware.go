package observability

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/transport"
)

// Metrics returns middleware that records request metrics.
//
// It captures:
//   - ember_requests_total (counter): one per request with method and status class labels
//   - ember_request_duration_seconds (histogram): time until the response was produced
//   - ember_streaming_responses_active (gauge): incremented until the response stream closes
func Metrics() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
			start := time.Now()
			resp := next.ServeRequest(ctx, req)

			method := req.Method.String()
			RequestsTotal.WithLabelValues(method, statusClass(resp.Status)).Inc()
			RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

			// The stream outlives the handler; the writer closes or
			// aborts it when the response ends.
			if s := resp.Stream(); s != nil {
				StreamingResponses.Inc()
				go func() {
					<-s.Done()
					StreamingResponses.Dec()
				}()
			}
			return resp
		})
	}
}

// statusClass builds a label like "2xx", "4xx" or "5xx".
func statusClass(s api.Status) string {
	return strconv.Itoa(s.Code()/100) + "xx"
}

// CountHandlerError is a dispatcher error observer that counts failed
// actions, separating panics from returned errors.
func CountHandlerError(_ *api.Request, err error) {
	kind := "error"
	var panicErr *transport.PanicError
	if errors.As(err, &panicErr) {
		kind = "panic"
	}
	HandlerErrorsTotal.WithLabelValues(kind).Inc()
}
