package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stubd/stubd/pkg/requestlog"
)

// connectFeed dials a WebSocket log feed. By the time Dial returns the
// server side is subscribed, so entries logged afterward are never
// missed.
func connectFeed(t *testing.T, baseURL, target string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + target
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test cleanup") })
	return conn
}

// readFeedFrame reads and decodes one frame, failing the test if none
// arrives in time.
func readFeedFrame(t *testing.T, conn *websocket.Conn) feedFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)

	var frame feedFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestWatchLogs(t *testing.T) {
	t.Parallel()

	s := newTestAdmin(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := connectFeed(t, ts.URL, "/ws/logs")

	s.logs.Log(&requestlog.Entry{ID: "w1", Method: http.MethodGet, Path: "/x", EndpointID: 3})

	frame := readFeedFrame(t, conn)
	assert.Equal(t, frameLog, frame.Type)
	require.NotNil(t, frame.Data)
	assert.Equal(t, "w1", frame.Data.ID)
	assert.Equal(t, "/x", frame.Data.Path)

	stamp, err := time.Parse(time.RFC3339Nano, frame.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), stamp, time.Minute)
}

func TestWatchEndpointLogs(t *testing.T) {
	t.Parallel()

	s := newTestAdmin(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := connectFeed(t, ts.URL, "/ws/logs/5")

	s.logs.Log(&requestlog.Entry{ID: "other", EndpointID: 4})
	s.logs.Log(&requestlog.Entry{ID: "mine", EndpointID: 5})

	frame := readFeedFrame(t, conn)
	assert.Equal(t, frameLog, frame.Type)
	require.NotNil(t, frame.Data)
	assert.Equal(t, "mine", frame.Data.ID, "entries for other endpoints stay out of the feed")
}

func TestWatchLogsPing(t *testing.T) {
	t.Parallel()

	s := newTestAdmin(t)
	s.pingInterval = 20 * time.Millisecond
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := connectFeed(t, ts.URL, "/ws/logs")

	frame := readFeedFrame(t, conn)
	assert.Equal(t, framePing, frame.Type)
	assert.Nil(t, frame.Data)
	_, err := time.Parse(time.RFC3339Nano, frame.Timestamp)
	assert.NoError(t, err)
}

func TestWatchEndpointLogsBadID(t *testing.T) {
	t.Parallel()

	s := newTestAdmin(t)
	rec := doRequest(t, s, http.MethodGet, "/ws/logs/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_id", errorCode(t, rec))
}

func TestStopClosesFeeds(t *testing.T) {
	s := newTestAdmin(t)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })

	conn := connectFeed(t, "http://"+s.Addr(), "/ws/logs")
	require.NoError(t, s.Stop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}
