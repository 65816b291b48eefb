package engine

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stubd/stubd/internal/registry"
	"github.com/stubd/stubd/pkg/config"
	"github.com/stubd/stubd/pkg/endpoint"
)

func TestNewServer(t *testing.T) {
	t.Parallel()

	t.Run("nil config uses defaults", func(t *testing.T) {
		t.Parallel()
		srv := NewServer(nil)
		require.NotNil(t, srv)
		assert.NotNil(t, srv.Config())
		assert.Equal(t, config.DefaultMockPort, srv.Config().MockPort)
		assert.NotNil(t, srv.Handler())
		assert.NotNil(t, srv.Registry())
		assert.NotNil(t, srv.RequestLog())
		assert.False(t, srv.IsRunning())
	})

	t.Run("custom config", func(t *testing.T) {
		t.Parallel()
		cfg := &config.ServerConfiguration{
			MockPort:      9090,
			MaxLogEntries: 500,
			ReadTimeout:   30,
			WriteTimeout:  30,
		}
		srv := NewServer(cfg)
		assert.Equal(t, 9090, srv.Config().MockPort)
		assert.Equal(t, 500, srv.Config().MaxLogEntries)
	})

	t.Run("nil logger option falls back to nop", func(t *testing.T) {
		t.Parallel()
		srv := NewServer(nil, WithLogger(nil))
		require.NotNil(t, srv)
		assert.NotNil(t, srv.log)
	})

	t.Run("shared registry", func(t *testing.T) {
		t.Parallel()
		reg := registry.New()
		srv := NewServer(nil, WithRegistry(reg))
		assert.Same(t, reg, srv.Registry())
	})

	t.Run("custom request log", func(t *testing.T) {
		t.Parallel()
		rl := NewInMemoryLog(10)
		srv := NewServer(nil, WithRequestLog(rl))
		assert.Same(t, rl, srv.RequestLog())
	})
}

func TestServerStartStop(t *testing.T) {
	cfg := &config.ServerConfiguration{Host: "127.0.0.1", MockPort: 0, MaxLogEntries: 100}

	t.Run("starts and stops", func(t *testing.T) {
		srv := NewServer(cfg)

		assert.False(t, srv.IsRunning())
		assert.Equal(t, 0, srv.Uptime())
		assert.Equal(t, 0, srv.Port())

		require.NoError(t, srv.Start())
		assert.True(t, srv.IsRunning())
		// Port 0 resolves to an ephemeral port at bind time.
		assert.Positive(t, srv.Port())
		assert.NotEmpty(t, srv.Addr())

		time.Sleep(10 * time.Millisecond)
		assert.GreaterOrEqual(t, srv.Uptime(), 0)

		require.NoError(t, srv.Stop())
		assert.False(t, srv.IsRunning())
		assert.Equal(t, 0, srv.Uptime())
		assert.Equal(t, 0, srv.Port())
	})

	t.Run("start twice errors", func(t *testing.T) {
		srv := NewServer(cfg)

		require.NoError(t, srv.Start())
		defer func() { _ = srv.Stop() }()

		err := srv.Start()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already running")
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		srv := NewServer(cfg)

		assert.NoError(t, srv.Stop())

		require.NoError(t, srv.Start())
		assert.NoError(t, srv.Stop())
		assert.NoError(t, srv.Stop())
	})
}

func TestServerServesTraffic(t *testing.T) {
	srv := NewServer(&config.ServerConfiguration{Host: "127.0.0.1", MockPort: 0})

	_, err := srv.Registry().Add(&endpoint.Endpoint{
		PathTemplate: "/api/ping",
		Methods:      []string{"GET"},
		Strategy:     endpoint.StrategyStatic,
		Static:       &endpoint.StaticResponse{StatusCode: 200, Body: "pong"},
	})
	require.NoError(t, err)

	require.NoError(t, srv.Start())
	defer func() { _ = srv.Stop() }()

	resp, err := http.Get("http://" + srv.Addr() + "/api/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "pong", string(body))

	// The round trip lands in the request log.
	entries := srv.RequestLog().List(nil)
	require.Len(t, entries, 1)
	assert.Equal(t, "/api/ping", entries[0].Path)
	assert.Equal(t, 200, entries[0].ResponseStatus)
}

func TestServerSinkOption(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	srv := NewServer(nil, WithSink(sink))

	_, err := srv.Registry().Add(&endpoint.Endpoint{
		PathTemplate: "/ping",
		Methods:      []string{"GET"},
		Strategy:     endpoint.StrategyStatic,
		Static:       &endpoint.StaticResponse{StatusCode: 204},
	})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/ping", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 204, rec.Code)
	require.Len(t, sink.entries, 1)
	assert.Equal(t, "/ping", sink.entries[0].Path)
}

func TestServerNotFoundOption(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, WithNotFound(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})))

	req := httptest.NewRequest("GET", "/missing", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGone, rec.Code)
}
