package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhuss/ember/pkg/api"
)

// maxRequestIDLen bounds a client-supplied request ID.
const maxRequestIDLen = 128

// RequestID returns middleware that assigns a unique request ID to each
// request. An incoming X-Request-ID header is reused when it is at most
// 128 bytes of printable ASCII; otherwise a new UUID is generated. The ID is echoed in the response's X-Request-ID header and
// can be retrieved with RequestIDFromRequest.
func RequestID() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
			id := req.Header("x-request-id")
			if !validRequestID(id) {
				id = uuid.New().String()
			}
			SetRequestID(req, id)

			resp := next.ServeRequest(ctx, req)
			if resp != nil && resp.Kind() != api.BodyWebSocket {
				resp.SetHeader("X-Request-ID", id)
			}
			return resp
		})
	}
}

// validRequestID rejects IDs that could break out of the response header,
// such as a bare CR that survived line parsing.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x20 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// RequestIDFromRequest returns the request ID assigned by the RequestID
// middleware, or "" if none is set.
func RequestIDFromRequest(req *api.Request) string {
	if id, ok := req.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// SetRequestID stores a request ID on the request.
func SetRequestID(req *api.Request, id string) {
	req.Set(requestIDKey, id)
}
