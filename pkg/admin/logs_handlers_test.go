package admin

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stubd/stubd/pkg/api/types"
	"github.com/stubd/stubd/pkg/requestlog"
)

// seedLogs records three entries in order, so lists come back c, b, a.
func seedLogs(t *testing.T, s *Server) {
	t.Helper()
	base := time.Now().Add(-time.Minute)
	s.logs.Log(&requestlog.Entry{
		ID: "a", Timestamp: base,
		Method: http.MethodGet, Path: "/api/users",
		EndpointID: 1, ResponseStatus: 200,
	})
	s.logs.Log(&requestlog.Entry{
		ID: "b", Timestamp: base.Add(time.Second),
		Method: http.MethodPost, Path: "/api/orders",
		EndpointID: 2, ResponseStatus: 201,
	})
	s.logs.Log(&requestlog.Entry{
		ID: "c", Timestamp: base.Add(2 * time.Second),
		Method: http.MethodGet, Path: "/api/users/7",
		EndpointID: 1, ResponseStatus: 404,
	})
}

func listIDs(resp types.LogListResponse) []string {
	ids := make([]string, len(resp.Requests))
	for i, e := range resp.Requests {
		ids[i] = e.ID
	}
	return ids
}

func TestListLogs(t *testing.T) {
	t.Parallel()

	s := newTestAdmin(t)
	seedLogs(t, s)

	tests := []struct {
		name   string
		target string
		ids    []string
	}{
		{name: "newest first", target: "/logs", ids: []string{"c", "b", "a"}},
		{name: "by endpoint", target: "/logs?endpointId=1", ids: []string{"c", "a"}},
		{name: "by method", target: "/logs?method=post", ids: []string{"b"}},
		{name: "by path prefix", target: "/logs?path=/api/users", ids: []string{"c", "a"}},
		{name: "by status", target: "/logs?status=404", ids: []string{"c"}},
		{name: "limit", target: "/logs?limit=1", ids: []string{"c"}},
		{name: "limit and offset", target: "/logs?limit=1&offset=1", ids: []string{"b"}},
		{name: "bad values are ignored", target: "/logs?endpointId=x&limit=-2", ids: []string{"c", "b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusOK, rec.Code)

			var resp types.LogListResponse
			decodeBody(t, rec, &resp)
			assert.Equal(t, tt.ids, listIDs(resp))
			assert.Equal(t, len(tt.ids), resp.Count)
			assert.Equal(t, 3, resp.Total, "total is the retained count, not the filtered one")
		})
	}
}

func TestGetLogEntry(t *testing.T) {
	t.Parallel()

	s := newTestAdmin(t)
	seedLogs(t, s)

	rec := doRequest(t, s, http.MethodGet, "/logs/b", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entry requestlog.Entry
	decodeBody(t, rec, &entry)
	assert.Equal(t, "b", entry.ID)
	assert.Equal(t, "/api/orders", entry.Path)

	rec = doRequest(t, s, http.MethodGet, "/logs/zzz", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestClearLogs(t *testing.T) {
	t.Parallel()

	s := newTestAdmin(t)
	seedLogs(t, s)

	rec := doRequest(t, s, http.MethodDelete, "/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp types.ClearLogsResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, 3, resp.Cleared)

	rec = doRequest(t, s, http.MethodGet, "/logs", "")
	var list types.LogListResponse
	decodeBody(t, rec, &list)
	assert.Equal(t, 0, list.Total)
	assert.Empty(t, list.Requests)
}
