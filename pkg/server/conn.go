package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/debug"
	"github.com/rhuss/ember/pkg/websocket"
	"github.com/rhuss/ember/pkg/wire"
)

func (s *Server) serveConn(conn net.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	tc := s.conns.Track(conn.RemoteAddr(), cancel)
	s.observer.ConnectionOpened()

	// Cancelling the connection context unblocks every read and write.
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	defer func() {
		stop()
		cancel()
		conn.Close()
		s.conns.Forget(tc)
		s.observer.ConnectionClosed()
		debug.Log("server", "connection closed", "conn", tc.ID)
	}()

	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	debug.Log("server", "connection accepted", "conn", tc.ID, "remote", conn.RemoteAddr())

	lr := wire.NewLineReader(conn)
	parser := wire.NewParser(lr, conn.RemoteAddr(), s.config.MaxBodyBytes)
	// The idle timeout covers only the gap before a request line.
	parser.OnRequestStart(func() {
		tc.SetIdle(false)
		if s.config.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Time{})
		}
	})
	w := wire.NewResponseWriter(conn, wire.WriterConfig{
		ServerHeader:    s.config.ServerHeader,
		InsecureCookies: s.config.InsecureCookies,
	})

	for {
		if s.closing.Load() {
			return
		}
		tc.SetIdle(true)
		if s.config.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))
		}

		req, err := parser.ReadRequest()
		tc.SetIdle(false)
		if err != nil {
			s.readFailed(ctx, w, conn, err)
			return
		}

		resp := s.handler.ServeRequest(ctx, req)
		if resp.Kind() == api.BodyWebSocket {
			if req.WebSocket {
				s.handoff(ctx, w, conn, lr, req, resp)
				return
			}
			s.unexpected(ctx, wire.ErrNotWebSocket, slog.String("path", req.Path()))
			resp = api.Text("Upgrade required.", api.StatusUpgradeRequired)
		}

		if err := w.WriteResponse(ctx, resp); err != nil {
			if ctx.Err() == nil {
				s.unexpected(ctx, err, slog.String("path", req.Path()))
			}
			return
		}
	}
}

// readFailed handles everything ReadRequest can return besides a request.
func (s *Server) readFailed(ctx context.Context, w *wire.ResponseWriter, conn net.Conn, err error) {
	var bad *wire.BadRequestError
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF):
		// Client closed between requests.
	case errors.As(err, &bad):
		if werr := w.WriteRejection(bad); werr != nil {
			debug.Log("server", "failed to write rejection", "error", werr)
		}
		s.logger.LogAttrs(ctx, slog.LevelWarn, "bad request",
			slog.Int("status", bad.Status.Code()),
			slog.String("reason", bad.Reason),
			slog.String("request_line", debug.Truncate(bad.RequestLine, 200)),
			slog.String("remote", conn.RemoteAddr().String()),
		)
		s.observer.BadRequest(BadRequestEvent{
			RemoteAddr:  conn.RemoteAddr(),
			RequestLine: bad.RequestLine,
			Status:      bad.Status,
			Reason:      bad.Reason,
		})
	case ctx.Err() != nil || s.closing.Load():
		// Closed by Shutdown or Close.
	case errors.As(err, &ne) && ne.Timeout():
		debug.Log("server", "idle timeout", "remote", conn.RemoteAddr())
	default:
		s.unexpected(ctx, err, slog.String("remote", conn.RemoteAddr().String()))
	}
}

// handoff completes the upgrade and runs the WebSocket handler on this
// goroutine. The connection is closed when the handler returns.
func (s *Server) handoff(ctx context.Context, w *wire.ResponseWriter, conn net.Conn, lr *wire.LineReader, req *api.Request, resp *api.Response) {
	sess, err := w.Upgrade(req, conn, lr)
	if err != nil {
		s.unexpected(ctx, err, slog.String("path", req.Path()))
		return
	}

	s.observer.WebSocketOpened()
	defer s.observer.WebSocketClosed()

	// The session outlives the HTTP idle timeout.
	conn.SetReadDeadline(time.Time{})

	if err := resp.WebSocketHandler()(ctx, sess); err != nil && !websocket.IsClosed(err) && ctx.Err() == nil {
		s.unexpected(ctx, err, slog.String("path", req.Path()))
	}
	sess.Close()
}

func (s *Server) unexpected(ctx context.Context, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.String("error", err.Error()))
	s.logger.LogAttrs(ctx, slog.LevelError, "unexpected connection error", attrs...)
	s.observer.UnexpectedError(err)
}
