// Package relay provides the single-producer/single-consumer byte-segment
// queue that connects a streaming handler to the connection's chunked writer.
//
// A handler creates a Stream, returns it inside a streaming response and
// pushes segments from its own goroutine. The writer pops segments in push
// order and frames each one as an HTTP chunk. Closing the stream signals
// end-of-stream; the writer aborts it when the client goes away so a
// blocked producer is released with ErrClosed.
package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rhuss/ember/pkg/debug"
)

// DefaultCapacity is the number of queued segments after which Push blocks.
const DefaultCapacity = 64

var (
	// ErrClosed is returned by Push once the stream has been closed or aborted.
	ErrClosed = errors.New("relay: push on closed stream")

	// ErrAborted is reported to the consumer after Abort without a cause.
	ErrAborted = errors.New("relay: stream aborted")
)

// Option configures a Stream.
type Option func(*Stream)

// WithCapacity bounds the queue to n segments. Zero means unbounded.
func WithCapacity(n int) Option {
	return func(s *Stream) {
		if n < 0 {
			n = 0
		}
		s.capacity = n
	}
}

// WithNoCopy stores pushed slices as-is. The producer must never modify a
// slice after pushing it.
func WithNoCopy() Option {
	return func(s *Stream) { s.noCopy = true }
}

// Stream is a FIFO of immutable byte segments.
//
// All methods are safe for concurrent use, but the intended shape is one
// producer and one consumer.
type Stream struct {
	mu       sync.Mutex
	segments [][]byte
	capacity int
	noCopy   bool
	closed   bool
	err      error

	readable chan struct{}
	writable chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a stream. Without options the stream is bounded to
// DefaultCapacity segments and copies on push.
func New(opts ...Option) *Stream {
	s := &Stream{
		capacity: DefaultCapacity,
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Push appends p to the stream, blocking while a bounded stream is full.
// Empty segments are dropped since a zero-length chunk terminates the
// HTTP stream. Push fails with ErrClosed once the stream is closed.
func (s *Stream) Push(ctx context.Context, p []byte) error {
	if !s.noCopy && len(p) > 0 {
		p = bytes.Clone(p)
	}
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		if len(p) == 0 {
			s.mu.Unlock()
			return nil
		}
		if s.capacity == 0 || len(s.segments) < s.capacity {
			s.segments = append(s.segments, p)
			s.mu.Unlock()
			notify(s.readable)
			return nil
		}
		s.mu.Unlock()

		debug.Trace("relay", "push blocked", "capacity", s.capacity)
		select {
		case <-s.writable:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pop removes the oldest segment, blocking until one is available.
// After Close it drains the remaining segments and then returns io.EOF.
// After CloseWithError or Abort it returns the recorded error.
func (s *Stream) Pop(ctx context.Context) ([]byte, error) {
	for {
		s.mu.Lock()
		if len(s.segments) > 0 {
			p := s.segments[0]
			s.segments[0] = nil
			s.segments = s.segments[1:]
			s.mu.Unlock()
			notify(s.writable)
			return p, nil
		}
		if s.closed {
			err := s.err
			s.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return nil, err
		}
		s.mu.Unlock()

		select {
		case <-s.readable:
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Write implements io.Writer on top of Push.
func (s *Stream) Write(p []byte) (int, error) {
	if err := s.Push(context.Background(), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close marks the end of the stream. Segments already queued are still
// delivered. Closing twice is a no-op.
func (s *Stream) Close() error {
	return s.CloseWithError(nil)
}

// CloseWithError ends the stream so that the consumer fails with err once
// the queued segments are drained. A nil err is equivalent to Close.
func (s *Stream) CloseWithError(err error) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.err = err
	}
	s.mu.Unlock()
	s.finish()
	return nil
}

// Abort discards queued segments and fails both sides. The writer calls it
// when the connection dies mid-stream.
func (s *Stream) Abort(err error) {
	if err == nil {
		err = ErrAborted
	}
	s.mu.Lock()
	s.closed = true
	if s.err == nil {
		s.err = err
	}
	s.segments = nil
	s.mu.Unlock()
	s.finish()
}

// Len reports the number of queued segments.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

// Done is closed once the stream is closed or aborted.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
