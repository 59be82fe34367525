package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Conn is one tracked connection. Its cancel function tears down the
// connection context, which the server ties to closing the socket.
type Conn struct {
	ID     string
	Remote net.Addr
	Since  time.Time

	cancel context.CancelFunc
	idle   atomic.Bool
}

// SetIdle marks the connection as waiting for its next request.
func (c *Conn) SetIdle(idle bool) { c.idle.Store(idle) }

// Idle reports whether the connection is between requests.
func (c *Conn) Idle() bool { return c.idle.Load() }

// ConnSet tracks live connections so shutdown can close the idle ones
// first and cancel the rest once its deadline passes.
type ConnSet struct {
	mu    sync.Mutex
	conns map[string]*Conn
}

// NewConnSet creates an empty set.
func NewConnSet() *ConnSet {
	return &ConnSet{conns: make(map[string]*Conn)}
}

// Track adds a connection under a fresh ID.
func (s *ConnSet) Track(remote net.Addr, cancel context.CancelFunc) *Conn {
	c := &Conn{
		ID:     uuid.New().String(),
		Remote: remote,
		Since:  time.Now(),
		cancel: cancel,
	}
	s.mu.Lock()
	s.conns[c.ID] = c
	s.mu.Unlock()
	return c
}

// Forget removes c without cancelling it.
func (s *ConnSet) Forget(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.ID)
	s.mu.Unlock()
}

// CancelIdle cancels every idle connection and returns how many it hit.
// Cancelled connections stay in the set until their loop calls Forget.
func (s *ConnSet) CancelIdle() int {
	return s.cancel(func(c *Conn) bool { return c.Idle() })
}

// CancelAll cancels every connection and returns how many it hit.
func (s *ConnSet) CancelAll() int {
	return s.cancel(func(*Conn) bool { return true })
}

func (s *ConnSet) cancel(match func(*Conn) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.conns {
		if match(c) {
			c.cancel()
			n++
		}
	}
	return n
}

// Oldest returns how long the longest-lived connection has been open,
// or zero when the set is empty.
func (s *ConnSet) Oldest() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var since time.Time
	for _, c := range s.conns {
		if since.IsZero() || c.Since.Before(since) {
			since = c.Since
		}
	}
	if since.IsZero() {
		return 0
	}
	return time.Since(since)
}

// Len returns the number of tracked connections.
func (s *ConnSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
