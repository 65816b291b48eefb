package metrics

import (
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("test_total", "test counter")

	require.NoError(t, c.Inc())
	require.NoError(t, c.Add(2))
	assert.Error(t, c.Add(-1))

	samples := c.Collect()
	require.Len(t, samples, 1)
	assert.Equal(t, 3.0, samples[0].Value)
}

func TestCounterLabels(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("requests_total", "requests", "method", "status")

	vec, err := c.WithLabels("GET", "200")
	require.NoError(t, err)
	require.NoError(t, vec.Inc())
	require.NoError(t, vec.Inc())

	vec2, err := c.WithLabels("POST", "502")
	require.NoError(t, err)
	require.NoError(t, vec2.Inc())

	_, err = c.WithLabels("GET")
	assert.ErrorIs(t, err, ErrLabelCountMismatch)

	samples := c.Collect()
	assert.Len(t, samples, 2)

	total := 0.0
	for _, s := range samples {
		total += s.Value
	}
	assert.Equal(t, 3.0, total)
}

func TestGauge(t *testing.T) {
	r := NewRegistry()
	g := r.NewGauge("active", "active things")

	require.NoError(t, g.Set(5))
	require.NoError(t, g.Inc())
	require.NoError(t, g.Dec())
	require.NoError(t, g.Add(-2))

	samples := g.Collect()
	require.Len(t, samples, 1)
	assert.Equal(t, 3.0, samples[0].Value)
}

func TestHistogram(t *testing.T) {
	r := NewRegistry()
	h := r.NewHistogram("duration_seconds", "durations", []float64{0.1, 1})

	require.NoError(t, h.Observe(0.05))
	require.NoError(t, h.Observe(0.5))
	require.NoError(t, h.Observe(5))

	samples := h.Collect()

	byName := map[string]float64{}
	for _, s := range samples {
		key := s.Name
		if le, ok := s.Labels["le"]; ok {
			key += ":" + le
		}
		byName[key] = s.Value
	}

	assert.Equal(t, 1.0, byName["duration_seconds_bucket:0.1"])
	assert.Equal(t, 2.0, byName["duration_seconds_bucket:1"])
	assert.Equal(t, 3.0, byName["duration_seconds_bucket:+Inf"])
	assert.Equal(t, 3.0, byName["duration_seconds_count"])
	assert.InDelta(t, 5.55, byName["duration_seconds_sum"], 0.001)
}

func TestRegistryDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.NewCounter("dup", "first")
	assert.Panics(t, func() { r.NewCounter("dup", "second") })
}

func TestHandlerTextFormat(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("stubd_requests_total", "Total requests", "method")
	vec, err := c.WithLabels("GET")
	require.NoError(t, err)
	require.NoError(t, vec.Inc())

	g := r.NewGauge("stubd_uptime_seconds", "Uptime")
	require.NoError(t, g.Set(42))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, out, "# HELP stubd_requests_total Total requests")
	assert.Contains(t, out, "# TYPE stubd_requests_total counter")
	assert.Contains(t, out, `stubd_requests_total{method="GET"} 1`)
	assert.Contains(t, out, "stubd_uptime_seconds 42")
}

func TestConcurrentCounter(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("concurrent_total", "concurrent")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Inc()
			}
		}()
	}
	wg.Wait()

	samples := c.Collect()
	require.Len(t, samples, 1)
	assert.Equal(t, 1000.0, samples[0].Value)
}

func TestInitIdempotent(t *testing.T) {
	Reset()
	defer Reset()

	r1 := Init()
	r2 := Init()
	assert.Same(t, r1, r2)
	require.NotNil(t, RequestsTotal)

	vec, err := RequestsTotal.WithLabels("GET", "static", "200")
	require.NoError(t, err)
	require.NoError(t, vec.Inc())

	rec := httptest.NewRecorder()
	r1.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "stubd_requests_total"))
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "3", formatFloat(3))
	assert.Equal(t, "0.25", formatFloat(0.25))
	assert.Equal(t, "+Inf", formatFloat(math.Inf(1)))
}
