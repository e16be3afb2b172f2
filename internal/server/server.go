// Package server owns the listening socket and the http.Server serving it.
//
// A Server is an explicit value pairing the running instance with its
// shutdown handle, so several can coexist in one process (tests).
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	applog "github.com/janisto/hello-server/internal/platform/logging"
)

var (
	// ErrAlreadyStarted is returned by Start on a running server.
	ErrAlreadyStarted = errors.New("server already started")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("server closed")
)

const defaultShutdownTimeout = 10 * time.Second

// Options configures the listener and the underlying http.Server.
type Options struct {
	// Addr is the TCP listen address. Port 0 picks a free port.
	Addr              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	// ShutdownTimeout bounds the graceful drain performed by Run.
	ShutdownTimeout time.Duration
}

// Server is a single HTTP listener with an explicit lifecycle:
// Start binds and serves, Close drains and releases the socket.
type Server struct {
	opts Options
	srv  *http.Server
	done chan struct{}

	mu       sync.Mutex
	listener net.Listener
	started  bool
	closed   bool
	serveErr error

	closeOnce sync.Once
	closeErr  error
}

// New returns an unstarted server dispatching to handler.
func New(opts Options, handler http.Handler) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
		MaxHeaderBytes:    opts.MaxHeaderBytes,
		ErrorLog:          zap.NewStdLog(applog.Logger().Named("http")),
	}
	return &Server{opts: opts, srv: srv, done: make(chan struct{})}
}

// Start binds the listen address and begins serving in the background.
// Bind failures are returned synchronously; the server then holds no socket.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case s.started:
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	s.listener = ln
	s.started = true

	applog.LogInfo(ctx, "server listening", zap.String("addr", ln.Addr().String()))
	go s.serve(ln)
	return nil
}

func (s *Server) serve(ln net.Listener) {
	defer close(s.done)
	err := s.srv.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	s.mu.Lock()
	s.serveErr = err
	s.mu.Unlock()
	applog.LogError(context.Background(), "serve failed", err, zap.String("addr", ln.Addr().String()))
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

// Done is closed when the serve loop has exited, when a server that was
// never started is closed, or when Run fails to start.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Err reports an unexpected serve loop failure.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serveErr
}

// Close stops accepting connections, waits for in-flight requests until ctx
// expires (then force-closes them) and returns only after the listening
// socket is released. Subsequent calls return the first result.
func (s *Server) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		s.closed = true
		s.mu.Unlock()

		if !started {
			close(s.done)
			return
		}

		err := s.srv.Shutdown(ctx)
		if err != nil {
			applog.LogWarn(ctx, "graceful shutdown incomplete, forcing close", zap.Error(err))
			if closeErr := s.srv.Close(); closeErr != nil {
				err = errors.Join(err, closeErr)
			}
		}
		<-s.done
		s.closeErr = err
		applog.LogInfo(ctx, "server closed", zap.String("addr", s.Addr()))
	})
	return s.closeErr
}

// Run starts the server and blocks until ctx is cancelled or the serve loop
// fails, then closes it within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		// Close still releases Done for callers waiting on it.
		_ = s.Close(ctx)
		return err
	}

	select {
	case <-ctx.Done():
		applog.LogInfo(ctx, "shutdown signal received")
	case <-s.done:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()
	closeErr := s.Close(shutdownCtx)
	if err := s.Err(); err != nil {
		return err
	}
	return closeErr
}
