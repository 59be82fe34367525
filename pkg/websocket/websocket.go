// Package websocket holds the post-handshake side of a WebSocket upgrade:
// the accept-key computation and the Session handed to application code
// once the HTTP connection has been switched over.
package websocket

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"io"
	"net"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// acceptGUID is the fixed value appended to the client key (RFC 6455 4.2.2).
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Message types accepted by WriteMessage.
const (
	TextMessage   = ws.OpText
	BinaryMessage = ws.OpBinary
)

// Handler runs a WebSocket session. The session owns the connection for the
// rest of its lifetime; the connection is closed when the handler returns.
type Handler func(ctx context.Context, s *Session) error

// AcceptKey computes the Sec-WebSocket-Accept value for a client key.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Session is a raw bidirectional stream with no HTTP framing left on it.
// Reads first drain any bytes the HTTP reader had already buffered.
type Session struct {
	conn   net.Conn
	r      io.Reader
	path   string
	remote net.Addr
}

// NewSession wraps an upgraded connection. buffered holds bytes read from
// the socket past the end of the upgrade request.
func NewSession(conn net.Conn, buffered []byte, path string) *Session {
	var r io.Reader = conn
	if len(buffered) > 0 {
		r = io.MultiReader(bytes.NewReader(bytes.Clone(buffered)), conn)
	}
	return &Session{conn: conn, r: r, path: path, remote: conn.RemoteAddr()}
}

// Path returns the request path that was upgraded, without leading slash.
func (s *Session) Path() string { return s.path }

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() net.Addr { return s.remote }

// Conn returns the underlying connection.
func (s *Session) Conn() net.Conn { return s.conn }

func (s *Session) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *Session) Write(p []byte) (int, error) { return s.conn.Write(p) }

// Close closes the connection.
func (s *Session) Close() error { return s.conn.Close() }

// ReadMessage reads the next text or binary message from the client.
// Ping and close frames are answered transparently; a close frame from the
// client surfaces as a wsutil.ClosedError.
func (s *Session) ReadMessage() ([]byte, ws.OpCode, error) {
	return wsutil.ReadClientData(s)
}

// WriteMessage sends one unfragmented server frame.
func (s *Session) WriteMessage(op ws.OpCode, p []byte) error {
	return wsutil.WriteServerMessage(s, op, p)
}

// WriteText sends a text message.
func (s *Session) WriteText(msg string) error {
	return s.WriteMessage(TextMessage, []byte(msg))
}

// IsClosed reports whether err means the session ended normally: a close
// frame from the client or a connection that is already gone.
func IsClosed(err error) bool {
	var closed wsutil.ClosedError
	return errors.As(err, &closed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
