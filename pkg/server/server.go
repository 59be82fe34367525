package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rhuss/ember/pkg/transport"
	"github.com/rhuss/ember/pkg/wire"
)

// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown
// or Close.
var ErrServerClosed = errors.New("server closed")

// Config holds the connection-level settings.
type Config struct {
	Addr            string
	MaxBodyBytes    int64
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	ServerHeader    string
	InsecureCookies bool
	Production      bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxBodyBytes:    wire.DefaultMaxBodyBytes,
		ShutdownTimeout: 30 * time.Second,
		ServerHeader:    wire.DefaultServerHeader,
	}
}

// Server accepts connections and serves them with a transport.Handler.
type Server struct {
	config     Config
	handler    transport.Handler
	logger     *slog.Logger
	middleware []transport.Middleware
	observers  multiObserver
	observer   Observer

	conns *transport.ConnSet

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	closing   atomic.Bool
	wg        sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(s *Server) { s.config = cfg }
}

// WithAddr sets the listen address used by ListenAndServe.
func WithAddr(addr string) Option {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodyBytes sets the largest accepted request body.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.config.MaxBodyBytes = n }
}

// WithIdleTimeout closes keep-alive connections that stay silent for d.
// Zero disables the timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.config.IdleTimeout = d }
}

// WithShutdownTimeout sets the graceful shutdown deadline used by
// ListenAndServe.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithServerHeader overrides the Server header value.
func WithServerHeader(v string) Option {
	return func(s *Server) { s.config.ServerHeader = v }
}

// WithInsecureCookies drops HttpOnly and Secure from secure cookies.
func WithInsecureCookies(insecure bool) Option {
	return func(s *Server) { s.config.InsecureCookies = insecure }
}

// WithProduction hides panic details in recovered 500 responses.
func WithProduction(production bool) Option {
	return func(s *Server) { s.config.Production = production }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMiddleware adds transport middleware inside the default recovery,
// request ID and logging middleware.
func WithMiddleware(mws ...transport.Middleware) Option {
	return func(s *Server) { s.middleware = append(s.middleware, mws...) }
}

// WithObserver registers an observer for connection-level events.
func WithObserver(o Observer) Option {
	return func(s *Server) { s.observers = append(s.observers, o) }
}

// New creates a server for handler. Recovery, request ID and logging
// middleware are applied automatically.
func New(handler transport.Handler, opts ...Option) *Server {
	s := &Server{
		config:    DefaultConfig(),
		logger:    slog.Default(),
		conns:     transport.NewConnSet(),
		listeners: make(map[net.Listener]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.observer = s.observers
	if len(s.observers) == 0 {
		s.observer = NopObserver{}
	}

	mws := append([]transport.Middleware{
		transport.Recovery(s.config.Production),
		transport.RequestID(),
		transport.Logging(s.logger),
	}, s.middleware...)
	s.handler = transport.Chain(mws...)(handler)
	return s
}

// ListenAndServe listens on the configured address and serves until ctx
// is done or SIGINT/SIGTERM arrives. It then shuts down gracefully within
// the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		errCh <- s.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Serve accepts connections on ln until Shutdown or Close. It always
// returns a non-nil error; after Shutdown or Close it is ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	if !s.trackListener(ln, true) {
		return ErrServerClosed
	}
	defer s.trackListener(ln, false)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
				s.logger.Warn("accept failed, retrying", slog.String("error", err.Error()), slog.Duration("backoff", backoff))
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

// Shutdown stops accepting, closes idle connections and waits for active
// ones to finish. When ctx expires first, the remaining connections are
// cancelled and closed and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	s.closeListeners()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.conns.CancelIdle()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			oldest := s.conns.Oldest()
			n := s.conns.CancelAll()
			s.logger.Warn("shutdown deadline reached, cancelling connections",
				slog.Int("connections", n),
				slog.Duration("oldest", oldest),
			)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops accepting and closes every connection immediately.
func (s *Server) Close() error {
	s.closing.Store(true)
	s.closeListeners()
	s.conns.CancelAll()
	return nil
}

// ActiveConnections returns the number of open connections.
func (s *Server) ActiveConnections() int {
	return s.conns.Len()
}

func (s *Server) trackListener(ln net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closing.Load() {
			return false
		}
		s.listeners[ln] = struct{}{}
	} else {
		delete(s.listeners, ln)
	}
	return true
}

func (s *Server) closeListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ln := range s.listeners {
		ln.Close()
		delete(s.listeners, ln)
	}
}
