package server

import (
	"net"

	"github.com/rhuss/ember/pkg/api"
)

// BadRequestEvent describes a request rejected by the parser.
type BadRequestEvent struct {
	RemoteAddr  net.Addr
	RequestLine string
	Status      api.Status
	Reason      string
}

// Observer is notified of connection-level events that never reach a
// handler. Implementations must be safe for concurrent use.
type Observer interface {
	// BadRequest is called after a rejection was written.
	BadRequest(BadRequestEvent)
	// UnexpectedError is called for I/O failures and failed handoffs.
	UnexpectedError(err error)
	ConnectionOpened()
	ConnectionClosed()
	WebSocketOpened()
	WebSocketClosed()
}

// NopObserver ignores every event. Embed it to implement only some methods.
type NopObserver struct{}

func (NopObserver) BadRequest(BadRequestEvent) {}
func (NopObserver) UnexpectedError(error)      {}
func (NopObserver) ConnectionOpened()          {}
func (NopObserver) ConnectionClosed()          {}
func (NopObserver) WebSocketOpened()           {}
func (NopObserver) WebSocketClosed()           {}

// multiObserver fans events out to several observers.
type multiObserver []Observer

func (m multiObserver) BadRequest(e BadRequestEvent) {
	for _, o := range m {
		o.BadRequest(e)
	}
}

func (m multiObserver) UnexpectedError(err error) {
	for _, o := range m {
		o.UnexpectedError(err)
	}
}

func (m multiObserver) ConnectionOpened() {
	for _, o := range m {
		o.ConnectionOpened()
	}
}

func (m multiObserver) ConnectionClosed() {
	for _, o := range m {
		o.ConnectionClosed()
	}
}

func (m multiObserver) WebSocketOpened() {
	for _, o := range m {
		o.WebSocketOpened()
	}
}

func (m multiObserver) WebSocketClosed() {
	for _, o := range m {
		o.WebSocketClosed()
	}
}
