package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stubd/stubd/pkg/httputil"
	"github.com/stubd/stubd/pkg/requestlog"
)

// handleStreamLogs handles GET /logs/stream: a server-sent event feed
// of request log entries, optionally narrowed with ?endpointId=. Each
// entry arrives as an `event: log` frame; comment frames keep idle
// connections alive.
func (s *Server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported")
		return
	}

	var sub requestlog.Subscriber
	var cancel func()
	if v := r.URL.Query().Get("endpointId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid_endpoint_id", "endpointId must be a positive integer")
			return
		}
		sub, cancel = s.logs.SubscribeEndpoint(id)
	} else {
		sub, cancel = s.logs.Subscribe()
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(s.pingInterval)
	defer keepAlive.Stop()
	stop := s.stopped()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-stop:
			return
		case entry, open := <-sub:
			if !open {
				return
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: log\ndata: %s\n\n", data)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprintf(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}
