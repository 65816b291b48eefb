package admin

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/stubd/stubd/pkg/api/types"
	"github.com/stubd/stubd/pkg/config"
	"github.com/stubd/stubd/pkg/httputil"
	"github.com/stubd/stubd/pkg/metrics"
)

// errBodyTooLarge marks a request body that exceeded the configured
// cap, so handlers can answer 413 instead of 400.
var errBodyTooLarge = errors.New("request body too large")

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, types.HealthResponse{
		Status: "ok",
		Uptime: s.Uptime(),
	})
}

// handleStatus handles GET /status. Port and uptime come from the
// attached mock server when there is one.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.registry.Snapshot()
	active := 0
	for _, ep := range snap.All() {
		if ep.IsActive() {
			active++
		}
	}

	status := "running"
	mockPort := s.cfg.MockPort
	uptime := s.Uptime()
	if s.engine != nil {
		if s.engine.IsRunning() {
			mockPort = s.engine.Port()
			uptime = s.engine.Uptime()
		} else {
			status = "stopped"
			uptime = 0
		}
	}

	httputil.WriteJSON(w, http.StatusOK, types.ServerStatus{
		Status:          status,
		MockPort:        mockPort,
		AdminPort:       s.Port(),
		Uptime:          uptime,
		EndpointCount:   snap.Len(),
		ActiveEndpoints: active,
		LogCount:        s.logs.Count(),
		Version:         s.version,
		StartedAt:       s.startedAt(),
	})
}

// handleMetrics handles GET /metrics with Prometheus text exposition.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	reg := s.metrics
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}
	if reg == nil {
		httputil.WriteError(w, http.StatusNotFound, "metrics_disabled", "metrics are not initialized")
		return
	}
	reg.Handler().ServeHTTP(w, r)
}

// readBody drains the request body up to the configured cap.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	limit := s.cfg.MaxBodySize
	if limit <= 0 {
		limit = config.DefaultServerConfiguration().MaxBodySize
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errBodyTooLarge
		}
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return body, nil
}

// writeBodyError maps a readBody failure onto the wire.
func writeBodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body exceeds the maximum allowed size")
		return
	}
	httputil.WriteError(w, http.StatusBadRequest, "read_error", err.Error())
}

// pathID parses the {id} path value as an endpoint id.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("endpoint id must be a positive integer")
	}
	return id, nil
}

// parsePositiveInt returns a parsed int only when the value is a valid
// positive integer.
func parsePositiveInt(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
