package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/rhuss/ember/pkg/api"
)

func newRequest() *api.Request {
	return api.NewRequest(api.MethodGET, "/Stats/Overview", nil, nil, nil)
}

func TestChainAppliesMiddlewareInOrder(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
				order = append(order, name+":before")
				resp := next.ServeRequest(ctx, req)
				order = append(order, name+":after")
				return resp
			})
		}
	}

	handler := HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
		order = append(order, "handler")
		return api.Text("ok", api.StatusOK)
	})

	wrapped := Chain(mw("first"), mw("second"), mw("third"))(handler)
	wrapped.ServeRequest(context.Background(), newRequest())

	expected := []string{
		"first:before", "second:before", "third:before",
		"handler",
		"third:after", "second:after", "first:after",
	}

	if len(order) != len(expected) {
		t.Fatalf("execution order length = %d, want %d: %v", len(order), len(expected), order)
	}
	for i, got := range order {
		if got != expected[i] {
			t.Errorf("order[%d] = %q, want %q", i, got, expected[i])
		}
	}
}

func TestEmptyChainKeepsHandler(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
		return api.Text("direct", api.StatusConflict)
	})

	resp := Chain()(handler).ServeRequest(context.Background(), newRequest())
	if resp.Status != api.StatusConflict {
		t.Errorf("status = %v, want %v", resp.Status, api.StatusConflict)
	}
}

func TestRecoveryCatchesPanic(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
		panic("test panic")
	})

	resp := Recovery(false)(handler).ServeRequest(context.Background(), newRequest())

	if resp.Status != api.StatusInternalServerError {
		t.Errorf("status = %v, want %v", resp.Status, api.StatusInternalServerError)
	}
	body, _ := resp.Bytes()
	if !strings.Contains(string(body), "test panic") {
		t.Errorf("body = %q, should contain %q", body, "test panic")
	}
}

func TestRecoveryHidesPanicInProduction(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
		panic("secret detail")
	})

	resp := Recovery(true)(handler).ServeRequest(context.Background(), newRequest())
	body, _ := resp.Bytes()
	if string(body) != "Internal server error." {
		t.Errorf("body = %q, want generic message", body)
	}
}

func TestRecoveryPassesThroughNormalExecution(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
		return api.Text("fine", api.StatusOK)
	})

	resp := Recovery(false)(handler).ServeRequest(context.Background(), newRequest())
	if resp.Status != api.StatusOK {
		t.Errorf("status = %v, want %v", resp.Status, api.StatusOK)
	}
}

func TestRequestIDGeneratesNewID(t *testing.T) {
	var capturedID string

	handler := HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
		capturedID = RequestIDFromRequest(req)
		return api.Text("ok", api.StatusOK)
	})

	resp := RequestID()(handler).ServeRequest(context.Background(), newRequest())

	if _, err := uuid.Parse(capturedID); err != nil {
		t.Errorf("request ID %q is not a UUID: %v", capturedID, err)
	}
	if got := resp.Header("X-Request-ID"); got != capturedID {
		t.Errorf("response X-Request-ID = %q, want %q", got, capturedID)
	}
}

func TestRequestIDPropagatesExisting(t *testing.T) {
	var capturedID string

	handler := HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
		capturedID = RequestIDFromRequest(req)
		return api.Text("ok", api.StatusOK)
	})

	req := api.NewRequest(api.MethodGET, "/", []api.Header{{Name: "x-request-id", Value: "existing-id-123"}}, nil, nil)
	RequestID()(handler).ServeRequest(context.Background(), req)

	if capturedID != "existing-id-123" {
		t.Errorf("request ID = %q, want %q", capturedID, "existing-id-123")
	}
}

func TestRequestIDReplacesUnsafeValues(t *testing.T) {
	tests := []struct {
		name  string
		value string
		keep  bool
	}{
		{"plain", "trace-42", true},
		{"max length", strings.Repeat("a", 128), true},
		{"bare carriage return", "abc\rSet-Cookie: evil=1", false},
		{"line feed", "abc\nX-Evil: 1", false},
		{"tab", "abc\tdef", false},
		{"non ascii", "idé", false},
		{"too long", strings.Repeat("a", 129), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
				captured = RequestIDFromRequest(req)
				return api.Text("ok", api.StatusOK)
			})

			req := api.NewRequest(api.MethodGET, "/", []api.Header{{Name: "x-request-id", Value: tt.value}}, nil, nil)
			resp := RequestID()(handler).ServeRequest(context.Background(), req)

			echoed := resp.Header("X-Request-ID")
			if echoed != captured {
				t.Errorf("response X-Request-ID = %q, want %q", echoed, captured)
			}
			if tt.keep {
				if captured != tt.value {
					t.Errorf("request ID = %q, want %q", captured, tt.value)
				}
				return
			}
			if _, err := uuid.Parse(captured); err != nil {
				t.Errorf("request ID = %q, want a generated UUID", captured)
			}
		})
	}
}

func TestRequestIDUniqueness(t *testing.T) {
	ids := make(map[string]bool)
	handler := HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
		ids[RequestIDFromRequest(req)] = true
		return api.Text("ok", api.StatusOK)
	})

	wrapped := RequestID()(handler)
	for range 100 {
		wrapped.ServeRequest(context.Background(), newRequest())
	}

	if len(ids) != 100 {
		t.Errorf("expected 100 unique IDs, got %d", len(ids))
	}
}

func TestLoggingEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
		return api.Text("ok", api.StatusOK)
	})

	req := newRequest()
	SetRequestID(req, "req-log-test")
	Logging(logger)(handler).ServeRequest(context.Background(), req)

	output := buf.String()
	for _, expected := range []string{"request_id=req-log-test", "method=GET", "path=Stats/Overview", "status=200", "request completed"} {
		if !strings.Contains(output, expected) {
			t.Errorf("log output missing %q in:\n%s", expected, output)
		}
	}
}

func TestLoggingEmitsErrorOnFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
		return ErrorResponse(errors.New("test failure"), false)
	})

	Logging(logger)(handler).ServeRequest(context.Background(), newRequest())

	output := buf.String()
	if !strings.Contains(output, "request failed") || !strings.Contains(output, "level=ERROR") {
		t.Errorf("log output missing error entry in:\n%s", output)
	}
}
