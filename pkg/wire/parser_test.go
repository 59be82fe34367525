package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/rhuss/ember/pkg/api"
)

func parse(t *testing.T, raw string, maxBody int64) (*api.Request, error) {
	t.Helper()
	return NewParser(NewLineReader(strings.NewReader(raw)), nil, maxBody).ReadRequest()
}

func TestOnRequestStartRunsAfterRequestLine(t *testing.T) {
	var calls int
	p := NewParser(NewLineReader(strings.NewReader("GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\n")), nil, 0)
	p.OnRequestStart(func() { calls++ })

	for want := 1; want <= 2; want++ {
		if _, err := p.ReadRequest(); err != nil {
			t.Fatalf("ReadRequest error: %v", err)
		}
		if calls != want {
			t.Errorf("hook calls = %d, want %d", calls, want)
		}
	}
	if _, err := p.ReadRequest(); err != io.EOF {
		t.Errorf("ReadRequest at end = %v, want io.EOF", err)
	}
	if calls != 2 {
		t.Errorf("hook ran on a closed connection: calls = %d", calls)
	}
}

func TestParseGET(t *testing.T) {
	req, err := parse(t, "GET /Heatmap/GetHeatmap?id=3 HTTP/1.1\r\nHost: example\r\nX-Two:  spaced\r\nX-Colon: a:b\r\n\r\n", 0)
	if err != nil {
		t.Fatalf("ReadRequest error: %v", err)
	}
	if req.Method != api.MethodGET {
		t.Errorf("Method = %v, want GET", req.Method)
	}
	if req.Path() != "Heatmap/GetHeatmap" || req.Query() != "id=3" {
		t.Errorf("Path/Query = %q/%q", req.Path(), req.Query())
	}
	if req.Body != nil {
		t.Errorf("GET body = %q, want nil", req.Body)
	}
	tests := []struct{ name, want string }{
		{"host", "example"},
		{"x-two", " spaced"},
		{"x-colon", "a:b"},
	}
	for _, tt := range tests {
		if got := req.Header(tt.name); got != tt.want {
			t.Errorf("Header(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
	if req.WebSocket {
		t.Error("plain GET flagged as WebSocket")
	}
	if req.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not set")
	}
}

func TestParseBodyLengths(t *testing.T) {
	for _, n := range []int{0, 1, 17, ReadBufferSize - 1, ReadBufferSize, 3*ReadBufferSize + 7} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			body := bytes.Repeat([]byte{'x'}, n)
			for i := range body {
				body[i] = byte('a' + i%26)
			}
			raw := fmt.Sprintf("POST /Echo/Post HTTP/1.1\r\nContent-Length: %d\r\n\r\n%s", n, body)

			req, err := parse(t, raw, 0)
			if err != nil {
				t.Fatalf("ReadRequest error: %v", err)
			}
			if len(req.Body) != n {
				t.Errorf("body length = %d, want %d", len(req.Body), n)
			}
			if !bytes.Equal(req.Body, body) {
				t.Error("body bytes differ from sent bytes")
			}
		})
	}
}

func TestParseKeepAliveSequence(t *testing.T) {
	raw := "PUT /a HTTP/1.1\r\nContent-Length: 3\r\n\r\nabcGET /b HTTP/1.1\r\n\r\n"
	p := NewParser(NewLineReader(strings.NewReader(raw)), nil, 0)

	first, err := p.ReadRequest()
	if err != nil || first.StringBody() != "abc" {
		t.Fatalf("first = %v, %v", first, err)
	}
	second, err := p.ReadRequest()
	if err != nil || second.Path() != "b" {
		t.Fatalf("second = %v, %v", second, err)
	}
	if _, err := p.ReadRequest(); err != io.EOF {
		t.Errorf("third = %v, want io.EOF", err)
	}
}

func TestParseGracefulClose(t *testing.T) {
	for _, raw := range []string{"", "\r\n"} {
		if _, err := parse(t, raw, 0); err != io.EOF {
			t.Errorf("parse(%q) = %v, want io.EOF", raw, err)
		}
	}
}

func TestParseRejections(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		maxBody    int64
		wantStatus api.Status
		wantReason string
	}{
		{"two fields", "GET /\r\n\r\n", 0, api.StatusBadRequest, "Invalid request line."},
		{"four fields", "GET / HTTP/1.1 extra\r\n\r\n", 0, api.StatusBadRequest, "Invalid request line."},
		{"old protocol", "GET / HTTP/1.0\r\n\r\n", 0, api.StatusBadRequest, "Invalid protocol or path."},
		{"relative path", "GET index HTTP/1.1\r\n\r\n", 0, api.StatusBadRequest, "Invalid protocol or path."},
		{"header without colon", "GET / HTTP/1.1\r\nbroken\r\n\r\n", 0, api.StatusBadRequest, "Invalid header line."},
		{"unsupported method", "PATCH / HTTP/1.1\r\n\r\n", 0, api.StatusBadRequest, "Invalid or unsupported method."},
		{"lowercase method", "get / HTTP/1.1\r\n\r\n", 0, api.StatusBadRequest, "Invalid or unsupported method."},
		{"missing length", "POST / HTTP/1.1\r\n\r\n", 0, api.StatusLengthRequired, "Length required."},
		{"garbage length", "PUT / HTTP/1.1\r\nContent-Length: ten\r\n\r\n", 0, api.StatusLengthRequired, "Length required."},
		{"negative length", "PUT / HTTP/1.1\r\nContent-Length: -1\r\n\r\n", 0, api.StatusLengthRequired, "Length required."},
		{"too large", "POST / HTTP/1.1\r\nContent-Length: 11\r\n\r\n", 10, api.StatusEntityTooLarge, "Request entity too large."},
		{"truncated body", "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nabc", 0, api.StatusBadRequest, "Unexpected end of stream while reading body."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.raw, tt.maxBody)
			var bad *BadRequestError
			if !errors.As(err, &bad) {
				t.Fatalf("err = %v, want *BadRequestError", err)
			}
			if bad.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", bad.Status, tt.wantStatus)
			}
			if bad.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", bad.Reason, tt.wantReason)
			}
			if bad.RequestLine != strings.SplitN(tt.raw, "\r\n", 2)[0] {
				t.Errorf("RequestLine = %q", bad.RequestLine)
			}
		})
	}
}

func TestParseDefaultMaxBody(t *testing.T) {
	raw := fmt.Sprintf("POST / HTTP/1.1\r\nContent-Length: %d\r\n\r\n", DefaultMaxBodyBytes+1)
	_, err := parse(t, raw, 0)
	var bad *BadRequestError
	if !errors.As(err, &bad) || bad.Status != api.StatusEntityTooLarge {
		t.Errorf("err = %v, want 413 rejection", err)
	}
}

func TestParseTruncatedHeaders(t *testing.T) {
	_, err := parse(t, "GET / HTTP/1.1\r\nHost: x\r\n", 0)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestParseWebSocketIntent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"upgrade token", "GET /ws HTTP/1.1\r\nConnection: Upgrade\r\n\r\n", true},
		{"token list", "GET /ws HTTP/1.1\r\nConnection: keep-alive,  UPGRADE\r\n\r\n", true},
		{"websocket token", "GET /ws HTTP/1.1\r\nConnection: websocket\r\n\r\n", true},
		{"substring only", "GET /ws HTTP/1.1\r\nConnection: upgraded\r\n\r\n", false},
		{"keep-alive", "GET /ws HTTP/1.1\r\nConnection: keep-alive\r\n\r\n", false},
		{"not GET", "DELETE /ws HTTP/1.1\r\nConnection: upgrade\r\n\r\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := parse(t, tt.raw, 0)
			if err != nil {
				t.Fatalf("ReadRequest error: %v", err)
			}
			if req.WebSocket != tt.want {
				t.Errorf("WebSocket = %v, want %v", req.WebSocket, tt.want)
			}
		})
	}
}
