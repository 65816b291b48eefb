// Package admin serves the management API on its own port: endpoint
// CRUD, document imports, request log queries, metrics, and the live
// log feeds over SSE and WebSocket.
package admin

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
	"github.com/stubd/stubd/pkg/engine"
	"github.com/stubd/stubd/pkg/logging"
	"github.com/stubd/stubd/pkg/metrics"
)

// Keep-alive cadence and per-write budget for the live log feeds.
const (
	feedPingInterval = 30 * time.Second
	feedWriteTimeout = 10 * time.Second
)

// Server is the admin API server. It shares the endpoint registry and
// request log with the mock server and runs on its own port with the
// same start/stop lifecycle.
type Server struct {
	cfg      *config.ServerConfiguration
	registry *registry.Registry
	logs     engine.RequestLog
	engine   *engine.Server
	metrics  *metrics.Registry
	version  string
	log      *slog.Logger

	pingInterval time.Duration

	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
	stop       chan struct{}
	mu         sync.RWMutex
	running    bool
	startTime  time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithEngine attaches the mock server. Status reports its port and
// uptime, and its registry and request log become the defaults.
func WithEngine(eng *engine.Server) Option {
	return func(s *Server) {
		s.engine = eng
	}
}

// WithRegistry shares an endpoint registry with the server.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithRequestLog shares a request log with the server.
func WithRequestLog(rl engine.RequestLog) Option {
	return func(s *Server) {
		if rl != nil {
			s.logs = rl
		}
	}
}

// WithVersion sets the version string reported by /status.
func WithVersion(v string) Option {
	return func(s *Server) {
		if v != "" {
			s.version = v
		}
	}
}

// WithMetrics serves the given registry on /metrics instead of the
// package default.
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Server) {
		s.metrics = reg
	}
}

// NewServer creates an admin server for the given configuration.
func NewServer(cfg *config.ServerConfiguration, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.DefaultServerConfiguration()
	}

	s := &Server{
		cfg:          cfg,
		version:      "dev",
		log:          logging.Nop(),
		pingInterval: feedPingInterval,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.engine != nil {
		if s.registry == nil {
			s.registry = s.engine.Registry()
		}
		if s.logs == nil {
			s.logs = s.engine.RequestLog()
		}
	}
	if s.registry == nil {
		s.registry = registry.New()
	}
	if s.logs == nil {
		s.logs = engine.NewInMemoryLog(cfg.MaxLogEntries)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = mux

	return s
}

// Start begins serving the admin API. The listener is bound before
// Start returns, so Addr and Port are valid immediately even when the
// configured port is 0.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("admin server is already running")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.AdminPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:     s.handler,
		ReadTimeout: time.Duration(s.cfg.ReadTimeout) * time.Second,
		// No write timeout: the SSE and WebSocket feeds hold their
		// response streams open indefinitely.
	}

	s.log.Info("starting admin API", "addr", listener.Addr().String())
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("admin server error", "error", err)
		}
	}()

	s.stop = make(chan struct{})
	s.running = true
	s.startTime = time.Now()
	s.refreshEndpointGauges()
	return nil
}

// Stop gracefully shuts down the server. Live feeds are told to end
// first so shutdown does not wait out their streams.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}

	close(s.stop)
	srv := s.httpServer
	s.running = false
	s.listener = nil
	// Shutdown runs outside the state lock: in-flight handlers read
	// server state through it and shutdown waits for them.
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("admin server shutdown: %w", err)
		}
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

// Addr returns the bound listen address, or "" when stopped.
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

// Handler returns the route handler, mainly for tests that drive it
// without a listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// stopped returns the channel closed when Stop begins, or nil before
// the first Start. Feed handlers select on it to end their streams.
func (s *Server) stopped() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stop
}

func (s *Server) startedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return time.Time{}
	}
	return s.startTime
}
