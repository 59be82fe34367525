package api

import "fmt"

// Status is the closed set of response status codes the server can emit.
// Adding a status means adding a row to statusTable as well.
type Status uint8

const (
	StatusOK Status = iota
	StatusNoContent
	StatusResetContent
	StatusPartialContent
	StatusMovedPermanently
	StatusFound
	StatusSeeOther
	StatusNotModified
	StatusBadRequest
	StatusForbidden
	StatusNotFound
	StatusConflict
	StatusLengthRequired
	StatusEntityTooLarge
	StatusUpgradeRequired
	StatusInternalServerError

	statusCount
)

var statusTable = [statusCount]struct {
	code int
	line string
}{
	StatusOK:                  {200, "HTTP/1.1 200 OK"},
	StatusNoContent:           {204, "HTTP/1.1 204 No Content"},
	StatusResetContent:        {205, "HTTP/1.1 205 Reset Content"},
	StatusPartialContent:      {206, "HTTP/1.1 206 Partial Content"},
	StatusMovedPermanently:    {301, "HTTP/1.1 301 Moved Permanently"},
	StatusFound:               {302, "HTTP/1.1 302 Found"},
	StatusSeeOther:            {303, "HTTP/1.1 303 See Other"},
	StatusNotModified:         {304, "HTTP/1.1 304 Not Modified"},
	StatusBadRequest:          {400, "HTTP/1.1 400 Bad Request"},
	StatusForbidden:           {403, "HTTP/1.1 403 Forbidden"},
	StatusNotFound:            {404, "HTTP/1.1 404 Not Found"},
	StatusConflict:            {409, "HTTP/1.1 409 Conflict"},
	StatusLengthRequired:      {411, "HTTP/1.1 411 Length Required"},
	StatusEntityTooLarge:      {413, "HTTP/1.1 413 Request Entity Too Large"},
	StatusUpgradeRequired:     {426, "HTTP/1.1 426 Upgrade Required"},
	StatusInternalServerError: {500, "HTTP/1.1 500 Internal Server Error"},
}

// Valid reports whether s is a member of the closed set.
func (s Status) Valid() bool {
	return s < statusCount
}

// Code returns the numeric status code.
func (s Status) Code() int {
	if !s.Valid() {
		return 0
	}
	return statusTable[s].code
}

// StatusLine returns the full status line without the trailing CRLF.
func (s Status) StatusLine() string {
	if !s.Valid() {
		return ""
	}
	return statusTable[s].line
}

// String returns "<code> <reason>".
func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
	return statusTable[s].line[len("HTTP/1.1 "):]
}

// StatusFromCode maps a numeric code back into the closed set.
func StatusFromCode(code int) (Status, bool) {
	for s := range statusCount {
		if statusTable[s].code == code {
			return s, true
		}
	}
	return 0, false
}

// ContentType is the closed set of content types the writer emits itself.
type ContentType uint8

const (
	ContentTypeOctetStream ContentType = iota
	ContentTypeJSON
	ContentTypePlaintext
	ContentTypeHTML

	// ContentTypeCustom suppresses the Content-Type header. Set one via
	// Response.SetHeader instead.
	ContentTypeCustom
)

var contentTypes = [...]string{
	ContentTypeOctetStream: "application/octet-stream",
	ContentTypeJSON:        "application/json",
	ContentTypePlaintext:   "text/plain",
	ContentTypeHTML:        "text/html",
}

// MIME returns the header value, or "" for ContentTypeCustom.
func (c ContentType) MIME() string {
	if int(c) >= len(contentTypes) {
		return ""
	}
	return contentTypes[c]
}
