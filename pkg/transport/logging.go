package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/ember/pkg/api"
)

// Logging returns middleware that emits one structured log entry per
// dispatched request with method, path, status, duration and request ID.
// Server errors are logged at error level.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
			start := time.Now()
			resp := next.ServeRequest(ctx, req)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromRequest(req)),
				slog.String("method", req.Method.String()),
				slog.String("path", req.Path()),
				slog.Int("status", resp.Status.Code()),
				slog.Duration("duration", time.Since(start)),
			}
			if req.RemoteAddr != nil {
				attrs = append(attrs, slog.String("remote", req.RemoteAddr.String()))
			}

			switch {
			case resp.Kind() == api.BodyStream:
				logger.LogAttrs(ctx, slog.LevelInfo, "streaming response started", attrs...)
			case resp.Status == api.StatusInternalServerError:
				logger.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
			default:
				logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
			}
			return resp
		})
	}
}
