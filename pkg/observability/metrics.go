// Package observability provides Prometheus metrics, request middleware
// and a connection observer for monitoring an ember server.
package observability

import "github.com/prometheus/client_golang/prometheus"

// HTTPBuckets defines histogram buckets for request handling latencies,
// ranging from 1ms to 10s.
var HTTPBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10}

var (
	// RequestsTotal counts dispatched requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records the time from request receipt until the
	// handler produced a response, in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ember_request_duration_seconds",
			Help:    "Request duration",
			Buckets: HTTPBuckets,
		},
		[]string{"method"},
	)

	// StreamingResponses tracks chunked responses whose stream is still open.
	StreamingResponses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_streaming_responses_active",
			Help: "Active streaming responses",
		},
	)

	// Connections tracks open client connections.
	Connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_connections_active",
			Help: "Active connections",
		},
	)

	// WebSocketSessions tracks upgraded connections.
	WebSocketSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_websocket_sessions_active",
			Help: "Active WebSocket sessions",
		},
	)

	// BadRequestsTotal counts requests rejected by the parser.
	BadRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_bad_requests_total",
			Help: "Rejected requests",
		},
		[]string{"status"},
	)

	// UnexpectedErrorsTotal counts connection I/O failures and failed
	// WebSocket handoffs.
	UnexpectedErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_unexpected_errors_total",
			Help: "Unexpected connection errors",
		},
	)

	// HandlerErrorsTotal counts action errors and panics reaching the
	// exception handler.
	HandlerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_handler_errors_total",
			Help: "Handler errors",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingResponses,
		Connections,
		WebSocketSessions,
		BadRequestsTotal,
		UnexpectedErrorsTotal,
		HandlerErrorsTotal,
	)
}
