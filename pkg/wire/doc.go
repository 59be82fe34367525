// Package wire implements HTTP/1.1 framing over a raw connection: the line
// reader, the request parser state machine and the response writer with
// known-length, chunked and WebSocket upgrade modes.
package wire
