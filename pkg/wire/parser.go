package wire

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/debug"
)

// DefaultMaxBodyBytes caps Content-Length at 1 GiB.
const DefaultMaxBodyBytes int64 = 1 << 30

// Rejection reasons sent to the client.
const (
	reasonInvalidRequestLine = "Invalid request line."
	reasonInvalidProtocol    = "Invalid protocol or path."
	reasonInvalidHeader      = "Invalid header line."
	reasonInvalidMethod      = "Invalid or unsupported method."
	reasonLengthRequired     = "Length required."
	reasonTooLarge           = "Request entity too large."
	reasonTruncatedBody      = "Unexpected end of stream while reading body."
)

// BadRequestError is a protocol violation. The connection loop answers it
// with a single response carrying Connection: close and then hangs up.
type BadRequestError struct {
	Status      api.Status
	RequestLine string
	Reason      string
}

// Error implements the error interface.
func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad request (%s): %s", e.Status, e.Reason)
}

type parseState uint8

const (
	stateAwaitRequestLine parseState = iota
	stateAwaitHeaders
	stateAwaitBody
	stateReady
)

// Parser reads requests off one connection.
type Parser struct {
	lr           *LineReader
	remote       net.Addr
	maxBodyBytes int64
	onStart      func()
}

// NewParser creates a parser. A maxBodyBytes of zero selects
// DefaultMaxBodyBytes.
func NewParser(lr *LineReader, remote net.Addr, maxBodyBytes int64) *Parser {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Parser{lr: lr, remote: remote, maxBodyBytes: maxBodyBytes}
}

// OnRequestStart registers fn to run once a request line has arrived,
// before headers and body are read. The connection loop uses it to end
// the idle phase.
func (p *Parser) OnRequestStart(fn func()) {
	p.onStart = fn
}

// ReadRequest parses the next request. It returns io.EOF when the client
// closed the connection between requests, a *BadRequestError for protocol
// violations and any other error for I/O failures.
func (p *Parser) ReadRequest() (*api.Request, error) {
	var (
		state       = stateAwaitRequestLine
		requestLine string
		receivedAt  time.Time
		methodToken string
		target      string
		method      api.Method
		headers     []api.Header
		body        []byte
	)

	for {
		switch state {
		case stateAwaitRequestLine:
			line, err := p.lr.ReadLine()
			if errors.Is(err, io.EOF) || (err == nil && line == "") {
				return nil, io.EOF
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read request line: %w", err)
			}
			receivedAt = time.Now()
			requestLine = line
			if p.onStart != nil {
				p.onStart()
			}
			debug.Trace("wire", "request line", "line", line, "remote", p.remote)

			fields := strings.Fields(line)
			if len(fields) != 3 {
				return nil, reject(api.StatusBadRequest, line, reasonInvalidRequestLine)
			}
			if fields[2] != "HTTP/1.1" || !strings.HasPrefix(fields[1], "/") {
				return nil, reject(api.StatusBadRequest, line, reasonInvalidProtocol)
			}
			methodToken, target = fields[0], fields[1]
			state = stateAwaitHeaders

		case stateAwaitHeaders:
			line, err := p.lr.ReadLine()
			if err != nil {
				return nil, fmt.Errorf("failed to read headers: %w", unexpected(err))
			}
			if line != "" {
				name, value, ok := strings.Cut(line, ":")
				if !ok {
					return nil, reject(api.StatusBadRequest, requestLine, reasonInvalidHeader)
				}
				headers = append(headers, api.Header{
					Name:  strings.ToLower(name),
					Value: strings.TrimPrefix(value, " "),
				})
				continue
			}

			var known bool
			if method, known = api.ParseMethod(methodToken); !known {
				return nil, reject(api.StatusBadRequest, requestLine, reasonInvalidMethod)
			}
			if method.HasBody() {
				state = stateAwaitBody
			} else {
				state = stateReady
			}

		case stateAwaitBody:
			n, err := contentLength(headers)
			if err != nil {
				return nil, reject(api.StatusLengthRequired, requestLine, reasonLengthRequired)
			}
			if n > p.maxBodyBytes {
				return nil, reject(api.StatusEntityTooLarge, requestLine, reasonTooLarge)
			}
			body, err = p.lr.ReadExact(int(n))
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, reject(api.StatusBadRequest, requestLine, reasonTruncatedBody)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read body: %w", err)
			}
			debug.Dump("wire", "request body", body)
			state = stateReady

		case stateReady:
			req := api.NewRequest(method, target, headers, body, p.remote)
			req.ReceivedAt = receivedAt
			req.WebSocket = method == api.MethodGET && wantsUpgrade(headers)
			return req, nil
		}
	}
}

func reject(status api.Status, line, reason string) *BadRequestError {
	debug.Log("wire", "rejecting request", "status", status.Code(), "reason", reason)
	return &BadRequestError{Status: status, RequestLine: line, Reason: reason}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func contentLength(headers []api.Header) (int64, error) {
	for _, h := range headers {
		if h.Name != "content-length" {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(h.Value), 10, 64)
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, fmt.Errorf("negative content length %d", n)
		}
		return n, nil
	}
	return 0, errors.New("missing content length")
}

// wantsUpgrade reports whether any Connection header lists "upgrade" or
// "websocket".
func wantsUpgrade(headers []api.Header) bool {
	for _, h := range headers {
		if h.Name != "connection" {
			continue
		}
		tokens := strings.FieldsFunc(h.Value, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})
		for _, tok := range tokens {
			if strings.EqualFold(tok, "upgrade") || strings.EqualFold(tok, "websocket") {
				return true
			}
		}
	}
	return false
}
