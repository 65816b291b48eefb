package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "github.com/coder/websocket"

	"github.com/stubd/stubd/pkg/httputil"
	"github.com/stubd/stubd/pkg/requestlog"
)

// Frame types on the WebSocket log feed.
const (
	frameLog  = "log"
	framePing = "ping"
)

// feedFrame is one message on the WebSocket log feed.
type feedFrame struct {
	Type      string            `json:"type"`
	Data      *requestlog.Entry `json:"data,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func logFrame(entry *requestlog.Entry) *feedFrame {
	return &feedFrame{Type: frameLog, Data: entry, Timestamp: feedStamp()}
}

func pingFrame() *feedFrame {
	return &feedFrame{Type: framePing, Timestamp: feedStamp()}
}

func feedStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// handleWatchLogs handles GET /ws/logs: every entry, all endpoints.
func (s *Server) handleWatchLogs(w http.ResponseWriter, r *http.Request) {
	s.serveLogFeed(w, r, 0)
}

// handleWatchEndpointLogs handles GET /ws/logs/{id}: entries for one
// endpoint id.
func (s *Server) handleWatchEndpointLogs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}
	s.serveLogFeed(w, r, id)
}

// serveLogFeed upgrades the connection and streams log frames until
// the client goes away or the server stops. The feed is write-only;
// a drain goroutine keeps control frames serviced and reports the
// disconnect.
func (s *Server) serveLogFeed(w http.ResponseWriter, r *http.Request, endpointID int64) {
	// Subscribing before the handshake completes means no entry logged
	// after the client sees the 101 can be missed.
	var sub requestlog.Subscriber
	var cancel func()
	if endpointID != 0 {
		sub, cancel = s.logs.SubscribeEndpoint(endpointID)
	} else {
		sub, cancel = s.logs.Subscribe()
	}
	defer cancel()

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
		CompressionMode:    ws.CompressionDisabled,
	})
	if err != nil {
		s.log.Debug("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	ctx := r.Context()
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	keepAlive := time.NewTicker(s.pingInterval)
	defer keepAlive.Stop()
	stop := s.stopped()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case <-stop:
			conn.Close(ws.StatusGoingAway, "server stopping")
			return
		case entry, open := <-sub:
			if !open {
				return
			}
			if err := writeFrame(ctx, conn, logFrame(entry)); err != nil {
				return
			}
		case <-keepAlive.C:
			if err := writeFrame(ctx, conn, pingFrame()); err != nil {
				return
			}
		}
	}
}

// writeFrame sends one frame with a bounded write budget, so one stuck
// client cannot pin the feed goroutine.
func writeFrame(ctx context.Context, conn *ws.Conn, frame *feedFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
	defer cancel()
	return conn.Write(wctx, ws.MessageText, data)
}
