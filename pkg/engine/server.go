package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/stubd/stubd/internal/registry"
	"github.com/stubd/stubd/pkg/config"
	"github.com/stubd/stubd/pkg/logging"
	"github.com/stubd/stubd/pkg/proxy"
	"github.com/stubd/stubd/pkg/requestlog"
	"github.com/stubd/stubd/pkg/sandbox"
)

// Server owns the mock traffic port. It wires the endpoint registry,
// the dispatch handler, and the request log together and runs them
// behind one http.Server.
type Server struct {
	cfg        *config.ServerConfiguration
	registry   *registry.Registry
	requestLog RequestLog
	handler    *Handler
	log        *slog.Logger
	sink       requestlog.Sink
	notFound   http.Handler
	httpServer *http.Server
	listener   net.Listener
	mu         sync.RWMutex
	running    bool
	startTime  time.Time
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithLogger sets the operational logger for the server.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRegistry shares an existing endpoint registry with the server.
// The admin API uses this so both servers see the same endpoints.
func WithRegistry(reg *registry.Registry) ServerOption {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithRequestLog replaces the default in-memory request log.
func WithRequestLog(rl RequestLog) ServerOption {
	return func(s *Server) {
		if rl != nil {
			s.requestLog = rl
		}
	}
}

// WithSink attaches durable storage to the request log. Only applies
// when the server owns an in-memory log.
func WithSink(sink requestlog.Sink) ServerOption {
	return func(s *Server) {
		s.sink = sink
	}
}

// WithNotFound installs a handler for requests no endpoint matched.
func WithNotFound(nf http.Handler) ServerOption {
	return func(s *Server) {
		s.notFound = nf
	}
}

// NewServer creates a new Server with the given configuration.
// Optional ServerOption functions can be passed to customize the server.
func NewServer(cfg *config.ServerConfiguration, opts ...ServerOption) *Server {
	if cfg == nil {
		cfg = config.DefaultServerConfiguration()
	}

	s := &Server{
		cfg: cfg,
		log: logging.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry = registry.New()
	}
	if s.requestLog == nil {
		maxEntries := cfg.MaxLogEntries
		if maxEntries <= 0 {
			maxEntries = DefaultMaxEntries
		}
		s.requestLog = NewInMemoryLog(maxEntries)
	}
	if mem, ok := s.requestLog.(*InMemoryLog); ok {
		mem.SetOperationalLogger(s.log.With("component", "requestlog"))
		if s.sink != nil {
			mem.SetSink(s.sink)
		}
	}

	handler := NewHandler(s.registry)
	handler.SetLogger(s.requestLog)
	handler.SetOperationalLogger(s.log.With("component", "engine"))
	if cfg.SandboxTimeoutMs > 0 {
		handler.SetSandbox(sandbox.New(
			sandbox.WithBudget(time.Duration(cfg.SandboxTimeoutMs) * time.Millisecond),
		))
	}
	var proxyOpts []proxy.Option
	if cfg.ProxyTimeoutSec > 0 {
		proxyOpts = append(proxyOpts, proxy.WithTimeout(time.Duration(cfg.ProxyTimeoutSec)*time.Second))
	}
	if cfg.MaxBodySize > 0 {
		proxyOpts = append(proxyOpts, proxy.WithMaxBodySize(cfg.MaxBodySize))
		handler.SetMaxBodySize(cfg.MaxBodySize)
	}
	if len(proxyOpts) > 0 {
		handler.SetForwarder(proxy.New(proxyOpts...))
	}
	if s.notFound != nil {
		handler.SetNotFoundHandler(s.notFound)
	}
	s.handler = handler

	return s
}

// Start begins serving mock traffic. The listener is bound before
// Start returns, so Addr and Port are valid immediately even when the
// configured port is 0.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.MockPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}

	s.log.Info("starting mock server", "addr", listener.Addr().String())
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("mock server error", "error", err)
		}
	}()

	s.running = true
	s.startTime = time.Now()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mock server shutdown: %w", err))
		}
	}

	s.running = false
	s.listener = nil

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime in seconds.
func (s *Server) Uptime() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return int(time.Since(s.startTime).Seconds())
}

// Addr returns the bound listen address, or "" when stopped. With a
// configured port of 0 this reports the ephemeral port the kernel
// picked.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Port returns the bound listen port, or 0 when stopped.
func (s *Server) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return 0
	}
	if tcpAddr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcpAddr.Port
	}
	return 0
}

// Config returns the server configuration.
func (s *Server) Config() *config.ServerConfiguration {
	return s.cfg
}

// Registry returns the endpoint registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// RequestLog returns the request log.
func (s *Server) RequestLog() RequestLog {
	return s.requestLog
}

// Handler returns the dispatch handler, mainly for tests that drive
// it without a listener.
func (s *Server) Handler() *Handler {
	return s.handler
}
