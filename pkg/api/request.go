package api

import (
	"net"
	"net/url"
	"strings"
	"time"
)

// Method is the closed set of accepted request methods.
type Method uint8

const (
	MethodGET Method = iota + 1
	MethodPOST
	MethodPUT
	MethodDELETE
)

// ParseMethod maps a request-line method token to a Method.
func ParseMethod(s string) (Method, bool) {
	switch s {
	case "GET":
		return MethodGET, true
	case "POST":
		return MethodPOST, true
	case "PUT":
		return MethodPUT, true
	case "DELETE":
		return MethodDELETE, true
	}
	return 0, false
}

func (m Method) String() string {
	switch m {
	case MethodGET:
		return "GET"
	case MethodPOST:
		return "POST"
	case MethodPUT:
		return "PUT"
	case MethodDELETE:
		return "DELETE"
	}
	return "UNKNOWN"
}

// HasBody reports whether requests with this method carry a
// Content-Length delimited body.
func (m Method) HasBody() bool {
	return m == MethodPOST || m == MethodPUT
}

// Header is a single name/value pair. Request header names are lower-cased
// on ingestion; lookups compare names exactly.
type Header struct {
	Name  string
	Value string

	secureCookie bool
}

// SecureCookie reports whether this is a Set-Cookie header that should
// receive the HttpOnly and Secure attributes.
func (h Header) SecureCookie() bool {
	return h.secureCookie
}

// Request is one parsed request. It is owned by the connection goroutine
// and must not be retained after the response has been written.
type Request struct {
	Method     Method
	Headers    []Header
	Body       []byte
	ReceivedAt time.Time
	RemoteAddr net.Addr

	// WebSocket is set for GET requests whose Connection header asks for
	// an upgrade.
	WebSocket bool

	target  string
	pathEnd int
	query   url.Values
	values  map[any]any
}

// NewRequest builds a request from a raw request target, which must start
// with '/'.
func NewRequest(method Method, target string, headers []Header, body []byte, remote net.Addr) *Request {
	target = strings.TrimPrefix(target, "/")
	pathEnd := strings.IndexByte(target, '?')
	if pathEnd < 0 {
		pathEnd = len(target)
	}
	return &Request{
		Method:     method,
		Headers:    headers,
		Body:       body,
		ReceivedAt: time.Now(),
		RemoteAddr: remote,
		target:     target,
		pathEnd:    pathEnd,
	}
}

// Path returns the path without leading slash and without querystring.
func (r *Request) Path() string {
	return r.target[:r.pathEnd]
}

// Query returns the raw querystring without the '?'.
func (r *Request) Query() string {
	if r.pathEnd >= len(r.target) {
		return ""
	}
	return r.target[r.pathEnd+1:]
}

// PathAndQuery returns the request target without leading slash.
func (r *Request) PathAndQuery() string {
	return r.target
}

// QueryValues parses the querystring once and caches the result.
// Malformed escapes are skipped rather than failing the whole query.
func (r *Request) QueryValues() url.Values {
	if r.query == nil {
		r.query, _ = url.ParseQuery(r.Query())
	}
	return r.query
}

// Header returns the value of the first header with the given lower-case
// name, or "" when absent.
func (r *Request) Header(name string) string {
	for _, h := range r.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// HeaderValues returns every value for the given lower-case name, in order.
func (r *Request) HeaderValues(name string) []string {
	var values []string
	for _, h := range r.Headers {
		if h.Name == name {
			values = append(values, h.Value)
		}
	}
	return values
}

// Cookie returns the url-decoded value of the named cookie.
func (r *Request) Cookie(name string) (string, bool) {
	for _, h := range r.Headers {
		if h.Name != "cookie" {
			continue
		}
		for part := range strings.SplitSeq(h.Value, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok || k != name {
				continue
			}
			if decoded, err := url.QueryUnescape(v); err == nil {
				return decoded, true
			}
			return v, true
		}
	}
	return "", false
}

// Range parses the Range header. Malformed headers yield nil so callers
// fall back to a full response.
func (r *Request) Range() *RangeHeader {
	v := r.Header("range")
	if v == "" {
		return nil
	}
	return ParseRange(v)
}

// StringBody returns the body as a string.
func (r *Request) StringBody() string {
	return string(r.Body)
}

// Elapsed returns the time since the request line was received.
func (r *Request) Elapsed() time.Duration {
	return time.Since(r.ReceivedAt)
}

// Set stores a request-scoped value, typically from middleware for the
// handler. Requests are confined to one goroutine so no locking is done.
func (r *Request) Set(key, value any) {
	if r.values == nil {
		r.values = make(map[any]any)
	}
	r.values[key] = value
}

// Value returns a value stored with Set.
func (r *Request) Value(key any) any {
	return r.values[key]
}
