package api

import (
	"errors"
	"fmt"

	"github.com/rhuss/ember/pkg/codec"
	"github.com/rhuss/ember/pkg/relay"
	"github.com/rhuss/ember/pkg/websocket"
)

// ErrUnresolvedPayload is returned by Bytes while a structured payload has
// not been encoded yet.
var ErrUnresolvedPayload = errors.New("structured payload not resolved")

// BodyKind identifies which body source a Response carries.
type BodyKind uint8

const (
	BodyBytes BodyKind = iota
	BodyStructured
	BodyStream
	BodyWebSocket
)

var (
	notFoundBody = []byte("Not found. :(")
	redirectBody = []byte("Redirect.")
)

type structuredPayload struct {
	value any
	codec codec.Codec
}

// Response is what a handler returns. Exactly one body source is set,
// chosen by the constructor.
type Response struct {
	Status      Status
	ContentType ContentType
	Headers     []Header

	body       []byte
	structured *structuredPayload
	stream     *relay.Stream
	websocket  websocket.Handler
}

// Data returns a known-length response. An empty payload with StatusOK
// becomes StatusNoContent.
func Data(data []byte, status Status, contentType ContentType) *Response {
	if len(data) == 0 && status == StatusOK {
		status = StatusNoContent
	}
	return &Response{Status: status, ContentType: contentType, body: data}
}

// Text returns a plaintext response.
func Text(s string, status Status) *Response {
	return Data([]byte(s), status, ContentTypePlaintext)
}

// HTML returns an HTML response.
func HTML(s string, status Status) *Response {
	return Data([]byte(s), status, ContentTypeHTML)
}

// JSON returns a response whose value is encoded with the default codec
// right before it is written.
func JSON(v any, status Status) *Response {
	return Encoded(v, codec.Default, status, ContentTypeJSON)
}

// Encoded returns a response whose value is encoded with c on Resolve.
func Encoded(v any, c codec.Codec, status Status, contentType ContentType) *Response {
	return &Response{
		Status:      status,
		ContentType: contentType,
		structured:  &structuredPayload{value: v, codec: c},
	}
}

// Stream returns a chunked response fed by s.
func Stream(s *relay.Stream, status Status, contentType ContentType) *Response {
	return &Response{Status: status, ContentType: contentType, stream: s}
}

// OpenWebSocket returns a response that upgrades the connection and hands
// it to h. Only valid for requests with WebSocket set.
func OpenWebSocket(h websocket.Handler) *Response {
	return &Response{Status: StatusOK, ContentType: ContentTypeCustom, websocket: h}
}

// Redirect returns a 302, or a 301 when permanent, to target.
func Redirect(target string, permanent bool) *Response {
	status := StatusFound
	if permanent {
		status = StatusMovedPermanently
	}
	return Data(redirectBody, status, ContentTypePlaintext).SetHeader("Location", target)
}

// NotFound returns the default 404 response.
func NotFound() *Response {
	return Data(notFoundBody, StatusNotFound, ContentTypePlaintext)
}

// Kind reports the body source.
func (r *Response) Kind() BodyKind {
	switch {
	case r.stream != nil:
		return BodyStream
	case r.websocket != nil:
		return BodyWebSocket
	case r.structured != nil:
		return BodyStructured
	}
	return BodyBytes
}

// Bytes returns the immediate payload.
func (r *Response) Bytes() ([]byte, error) {
	if r.structured != nil {
		return nil, ErrUnresolvedPayload
	}
	return r.body, nil
}

// Resolve encodes a structured payload into bytes. It runs at most once;
// later calls and calls on other body kinds are no-ops.
func (r *Response) Resolve() error {
	if r.structured == nil {
		return nil
	}
	p := r.structured
	c := p.codec
	if c == nil {
		c = codec.Default
	}
	data, err := c.Marshal(p.value)
	if err != nil {
		return fmt.Errorf("failed to encode response payload: %w", err)
	}
	r.body = data
	r.structured = nil
	return nil
}

// Stream returns the relay stream of a streaming response.
func (r *Response) Stream() *relay.Stream {
	return r.stream
}

// WebSocketHandler returns the session handler of an upgrade response.
func (r *Response) WebSocketHandler() websocket.Handler {
	return r.websocket
}

// Header returns the first extra header with the given name.
func (r *Response) Header(name string) string {
	for _, h := range r.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// SetHeader replaces the first header with the same name, or appends.
func (r *Response) SetHeader(name, value string) *Response {
	for i := range r.Headers {
		if r.Headers[i].Name == name {
			r.Headers[i] = Header{Name: name, Value: value}
			return r
		}
	}
	return r.AddHeader(name, value)
}

// AddHeader appends a header even if one with the same name exists.
func (r *Response) AddHeader(name, value string) *Response {
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
	return r
}

// SetCookie appends a Set-Cookie header. Earlier headers for the same
// cookie are left in place.
func (r *Response) SetCookie(c Cookie) *Response {
	r.Headers = append(r.Headers, Header{Name: "Set-Cookie", Value: c.String(), secureCookie: c.Secure})
	return r
}
