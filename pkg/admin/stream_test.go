package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stubd/stubd/pkg/requestlog"
)

// openStream connects to an SSE target and returns a buffered reader
// over the response body. The request carries a deadline so a broken
// stream fails the test instead of hanging it.
func openStream(t *testing.T, baseURL, target string) *bufio.Reader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+target, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

// readSSEFrame reads one frame. Events come back as (event, data);
// comment keep-alives come back with an empty event and the comment
// text as data.
func readSSEFrame(t *testing.T, br *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	seen := false
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\n")
		switch {
		case line == "":
			if seen {
				return event, data
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
			seen = true
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
			seen = true
		case strings.HasPrefix(line, ":"):
			data = strings.TrimSpace(strings.TrimPrefix(line, ":"))
			seen = true
		}
	}
}

func TestStreamLogs(t *testing.T) {
	t.Parallel()

	s := newTestAdmin(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	br := openStream(t, ts.URL, "/logs/stream")

	// The connected frame doubles as the subscription handshake: once
	// it has been read, the stream cannot miss later entries.
	event, data := readSSEFrame(t, br)
	assert.Equal(t, "connected", event)
	assert.JSONEq(t, `{"status": "connected"}`, data)

	s.logs.Log(&requestlog.Entry{ID: "s1", Method: http.MethodGet, Path: "/a", EndpointID: 1})

	event, data = readSSEFrame(t, br)
	require.Equal(t, "log", event)
	var entry requestlog.Entry
	require.NoError(t, json.Unmarshal([]byte(data), &entry))
	assert.Equal(t, "s1", entry.ID)
	assert.Equal(t, "/a", entry.Path)
}

func TestStreamLogsEndpointFilter(t *testing.T) {
	t.Parallel()

	s := newTestAdmin(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	br := openStream(t, ts.URL, "/logs/stream?endpointId=2")
	event, _ := readSSEFrame(t, br)
	require.Equal(t, "connected", event)

	s.logs.Log(&requestlog.Entry{ID: "other", EndpointID: 1})
	s.logs.Log(&requestlog.Entry{ID: "mine", EndpointID: 2})

	event, data := readSSEFrame(t, br)
	require.Equal(t, "log", event)
	var entry requestlog.Entry
	require.NoError(t, json.Unmarshal([]byte(data), &entry))
	assert.Equal(t, "mine", entry.ID, "entries for other endpoints stay out of the feed")
}

func TestStreamLogsKeepAlive(t *testing.T) {
	t.Parallel()

	s := newTestAdmin(t)
	s.pingInterval = 20 * time.Millisecond
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	br := openStream(t, ts.URL, "/logs/stream")
	event, _ := readSSEFrame(t, br)
	require.Equal(t, "connected", event)

	event, data := readSSEFrame(t, br)
	assert.Empty(t, event)
	assert.Equal(t, "keep-alive", data)
}

func TestStreamLogsBadEndpointID(t *testing.T) {
	t.Parallel()

	s := newTestAdmin(t)
	rec := doRequest(t, s, http.MethodGet, "/logs/stream?endpointId=abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_endpoint_id", errorCode(t, rec))
}

func TestStopEndsStreams(t *testing.T) {
	s := newTestAdmin(t)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })

	br := openStream(t, "http://"+s.Addr(), "/logs/stream")
	event, _ := readSSEFrame(t, br)
	require.Equal(t, "connected", event)

	require.NoError(t, s.Stop())

	// The handler returns on stop, ending the chunked response, so the
	// client sees a clean EOF rather than a timeout.
	var err error
	for err == nil {
		_, err = br.ReadString('\n')
	}
	assert.ErrorIs(t, err, io.EOF)
}
