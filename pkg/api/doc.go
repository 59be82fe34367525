// Package api defines the protocol data model shared by the wire codec,
// the router and application handlers.
//
// The package performs no socket I/O. Core types:
//   - [Request]: one parsed HTTP/1.1 request
//   - [Response]: status, content type, headers and exactly one body source
//   - [Status] and [ContentType]: closed enums with fixed wire text
//   - [Error]: a handler failure carrying the status it should produce
package api
