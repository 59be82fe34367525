package observability

import (
	"strconv"

	"github.com/rhuss/ember/pkg/server"
)

// Observer counts connection-level events. It implements server.Observer.
type Observer struct{}

var _ server.Observer = Observer{}

func (Observer) BadRequest(e server.BadRequestEvent) {
	BadRequestsTotal.WithLabelValues(strconv.Itoa(e.Status.Code())).Inc()
}

func (Observer) UnexpectedError(error) { UnexpectedErrorsTotal.Inc() }
func (Observer) ConnectionOpened()     { Connections.Inc() }
func (Observer) ConnectionClosed()     { Connections.Dec() }
func (Observer) WebSocketOpened()      { WebSocketSessions.Inc() }
func (Observer) WebSocketClosed()      { WebSocketSessions.Dec() }
