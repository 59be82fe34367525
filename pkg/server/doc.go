// Package server owns the listening socket and runs one connection loop
// per accepted client: parse a request, dispatch it, write the response,
// and repeat until the client goes away, sends something unparseable or
// upgrades to WebSocket.
package server
