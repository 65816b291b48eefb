package admin

import (
	"net/http"
	"strconv"

	"github.com/stubd/stubd/pkg/api/types"
	"github.com/stubd/stubd/pkg/httputil"
	"github.com/stubd/stubd/pkg/requestlog"
)

// logFilterFromQuery builds a request log filter from query
// parameters. Values that do not parse are ignored rather than
// rejected.
func logFilterFromQuery(r *http.Request) *requestlog.Filter {
	q := r.URL.Query()
	filter := &requestlog.Filter{
		Method: q.Get("method"),
		Path:   q.Get("path"),
	}
	if id, err := strconv.ParseInt(q.Get("endpointId"), 10, 64); err == nil && id > 0 {
		filter.EndpointID = id
	}
	if n, ok := parsePositiveInt(q.Get("status")); ok {
		filter.Status = n
	}
	if n, ok := parsePositiveInt(q.Get("limit")); ok {
		filter.Limit = n
	}
	if n, ok := parsePositiveInt(q.Get("offset")); ok {
		filter.Offset = n
	}
	return filter
}

// handleListLogs handles GET /logs.
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	entries := s.logs.List(logFilterFromQuery(r))
	httputil.WriteJSON(w, http.StatusOK, types.LogListResponse{
		Requests: entries,
		Count:    len(entries),
		Total:    s.logs.Count(),
	})
}

// handleGetLog handles GET /logs/{id}.
func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	entry := s.logs.Get(r.PathValue("id"))
	if entry == nil {
		httputil.WriteError(w, http.StatusNotFound, "not_found", "log entry not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

// handleClearLogs handles DELETE /logs.
func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	cleared := s.logs.Clear()
	s.log.Info("request log cleared", "entries", cleared)
	httputil.WriteJSON(w, http.StatusOK, types.ClearLogsResponse{Cleared: cleared})
}
