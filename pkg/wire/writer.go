package wire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/debug"
	"github.com/rhuss/ember/pkg/websocket"
)

// DefaultServerHeader identifies the server on every response.
const DefaultServerHeader = "Ember v1.0"

// WriteBufferSize is the size of the userspace write buffer.
const WriteBufferSize = 8192

var (
	// ErrNotWebSocket is returned when a handler answers a request that did
	// not ask for an upgrade with a WebSocket response.
	ErrNotWebSocket = errors.New("websocket response for a request without upgrade intent")

	// ErrMissingWebSocketKey is returned when the upgrade request lacks
	// Sec-WebSocket-Key.
	ErrMissingWebSocketKey = errors.New("websocket upgrade without Sec-WebSocket-Key")
)

// WriterConfig holds the per-server settings the writer needs.
type WriterConfig struct {
	// ServerHeader is the value of the Server header.
	ServerHeader string

	// InsecureCookies drops the HttpOnly and Secure attributes from secure
	// cookies. Only meant for local development over plain HTTP.
	InsecureCookies bool
}

// ResponseWriter serializes responses onto one connection.
type ResponseWriter struct {
	bw     *bufio.Writer
	config WriterConfig
}

// NewResponseWriter wraps w with a WriteBufferSize buffer.
func NewResponseWriter(w io.Writer, config WriterConfig) *ResponseWriter {
	if config.ServerHeader == "" {
		config.ServerHeader = DefaultServerHeader
	}
	return &ResponseWriter{bw: bufio.NewWriterSize(w, WriteBufferSize), config: config}
}

// WriteRejection answers a protocol violation. The caller closes the
// connection afterwards.
func (w *ResponseWriter) WriteRejection(e *BadRequestError) error {
	w.bw.WriteString(e.Status.StatusLine())
	w.bw.WriteString("\r\nServer: ")
	w.bw.WriteString(w.config.ServerHeader)
	w.bw.WriteString("\r\nConnection: close\r\nContent-Type: text/plain\r\nContent-Length: ")
	w.bw.WriteString(strconv.Itoa(len(e.Reason) + 2))
	w.bw.WriteString("\r\n\r\n")
	w.bw.WriteString(e.Reason)
	w.bw.WriteString("\r\n")
	return w.bw.Flush()
}

// WriteResponse writes a known-length or chunked response. WebSocket
// responses go through Upgrade instead. If writing a streaming response
// fails, the relay stream is aborted so its producer is released.
func (w *ResponseWriter) WriteResponse(ctx context.Context, resp *api.Response) (err error) {
	if s := resp.Stream(); s != nil {
		defer func() {
			if err != nil {
				s.Abort(err)
			}
		}()
	}
	if resp.Kind() == api.BodyWebSocket {
		return errors.New("websocket response passed to WriteResponse")
	}
	if err := resp.Resolve(); err != nil {
		return err
	}
	if err := w.writeHead(resp); err != nil {
		return err
	}
	if resp.Kind() == api.BodyStream {
		return w.writeChunked(ctx, resp)
	}
	return w.writeKnownLength(resp)
}

func (w *ResponseWriter) writeHead(resp *api.Response) error {
	if !resp.Status.Valid() {
		return fmt.Errorf("unsupported response status %d", uint8(resp.Status))
	}
	w.bw.WriteString(resp.Status.StatusLine())
	w.bw.WriteString("\r\nServer: ")
	w.bw.WriteString(w.config.ServerHeader)
	w.bw.WriteString("\r\n")
	if mime := resp.ContentType.MIME(); mime != "" {
		w.bw.WriteString("Content-Type: ")
		w.bw.WriteString(mime)
		w.bw.WriteString("\r\n")
	}
	for _, h := range resp.Headers {
		w.bw.WriteString(h.Name)
		w.bw.WriteString(": ")
		w.bw.WriteString(h.Value)
		if h.SecureCookie() && !w.config.InsecureCookies {
			w.bw.WriteString("; HttpOnly; Secure")
		}
		w.bw.WriteString("\r\n")
	}
	return nil
}

func (w *ResponseWriter) writeKnownLength(resp *api.Response) error {
	body, err := resp.Bytes()
	if err != nil {
		return err
	}
	if resp.Status == api.StatusNoContent || resp.Status == api.StatusNotModified {
		// These statuses carry neither a body nor Content-Length.
		w.bw.WriteString("\r\n")
		return w.bw.Flush()
	}
	w.bw.WriteString("Content-Length: ")
	w.bw.WriteString(strconv.Itoa(len(body)))
	w.bw.WriteString("\r\n\r\n")
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	if _, err := w.bw.Write(body); err != nil {
		return fmt.Errorf("failed to write body: %w", err)
	}
	return w.bw.Flush()
}

func (w *ResponseWriter) writeChunked(ctx context.Context, resp *api.Response) error {
	s := resp.Stream()
	w.bw.WriteString("Transfer-Encoding: chunked\r\n\r\n")
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	var size [16]byte
	chunks := 0
	for {
		p, err := s.Pop(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("relay stream failed: %w", err)
		}
		w.bw.Write(strconv.AppendInt(size[:0], int64(len(p)), 16))
		w.bw.WriteString("\r\n")
		w.bw.Write(p)
		w.bw.WriteString("\r\n")
		if err := w.bw.Flush(); err != nil {
			return fmt.Errorf("failed to write chunk: %w", err)
		}
		chunks++
	}

	w.bw.WriteString("0\r\n\r\n")
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failed to write final chunk: %w", err)
	}
	debug.Log("relay", "stream completed", "chunks", chunks)
	return nil
}

// Upgrade completes the WebSocket handshake for req and returns the session
// to hand to the response's handler. After Upgrade the connection carries
// no more HTTP traffic.
func (w *ResponseWriter) Upgrade(req *api.Request, conn net.Conn, lr *LineReader) (*websocket.Session, error) {
	if !req.WebSocket {
		return nil, ErrNotWebSocket
	}
	key := req.Header("sec-websocket-key")
	if key == "" {
		return nil, ErrMissingWebSocketKey
	}

	w.bw.WriteString("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: ")
	w.bw.WriteString(websocket.AcceptKey(key))
	w.bw.WriteString("\r\n\r\n")
	if err := w.bw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write upgrade response: %w", err)
	}
	debug.Log("websocket", "upgraded", "path", req.Path(), "remote", req.RemoteAddr)
	return websocket.NewSession(conn, lr.Buffered(), req.Path()), nil
}
