package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/stubd/stubd/pkg/requestlog"
)

// logsFlags holds all flag values for the logs command.
type logsFlags struct {
	endpointID int64
	method     string
	path       string
	status     int
	limit      int
	verbose    bool
	clear      bool
	follow     bool
}

var logsOpts logsFlags

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View request logs",
	Long: `View request logs from a running server.

Without --follow the command fetches retained entries from the admin
API, newest first. With --follow it subscribes to the live log feed
over WebSocket and prints entries as requests arrive.`,
	Example: `  # Show recent requests
  stubd logs

  # Show the last 50 entries
  stubd logs -n 50

  # Only requests that hit endpoint 3
  stubd logs --endpoint 3

  # Stream in real-time, like tail -f
  stubd logs --follow

  # Stream one endpoint's traffic
  stubd logs --follow --endpoint 3

  # Clear retained entries
  stubd logs --clear`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogs(&logsOpts)
	},
}

func init() {
	f := &logsOpts
	logsCmd.Flags().Int64Var(&f.endpointID, "endpoint", 0, "Filter by endpoint id")
	logsCmd.Flags().StringVarP(&f.method, "method", "m", "", "Filter by HTTP method")
	logsCmd.Flags().StringVarP(&f.path, "path", "p", "", "Filter by path prefix")
	logsCmd.Flags().IntVar(&f.status, "status", 0, "Filter by response status")
	logsCmd.Flags().IntVarP(&f.limit, "limit", "n", 20, "Number of entries to show")
	logsCmd.Flags().BoolVar(&f.verbose, "verbose", false, "Show endpoint, error, and proxy detail per entry")
	logsCmd.Flags().BoolVar(&f.clear, "clear", false, "Clear all retained entries")
	logsCmd.Flags().BoolVarP(&f.follow, "follow", "f", false, "Stream logs in real-time (like tail -f)")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(f *logsFlags) error {
	if f.clear {
		client := NewAdminClient(adminURL)
		count, err := client.ClearLogs()
		if err != nil {
			return fmt.Errorf("%s", FormatConnectionError(err))
		}
		fmt.Printf("Cleared %d log entries\n", count)
		return nil
	}

	if f.follow {
		return followLogs(adminURL, f.endpointID, jsonOutput, f.verbose)
	}

	client := NewAdminClient(adminURL)
	result, err := client.GetLogs(&LogFilter{
		EndpointID: f.endpointID,
		Method:     f.method,
		Path:       f.path,
		Status:     f.status,
		Limit:      f.limit,
	})
	if err != nil {
		return fmt.Errorf("%s", FormatConnectionError(err))
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Requests)
	}

	if len(result.Requests) == 0 {
		fmt.Println("No request logs")
		return nil
	}

	if f.verbose {
		for _, e := range result.Requests {
			printVerboseEntry(e)
		}
		return nil
	}
	return printTableLogs(result.Requests)
}

func printTableLogs(entries []*requestlog.Entry) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tMETHOD\tPATH\tSTATUS\tENDPOINT\tDURATION")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%.1fms\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Method,
			truncate(e.Path, 25), e.ResponseStatus, endpointCell(e), e.DurationMs)
	}
	return w.Flush()
}

// printTableEntry prints one entry in the table column layout, for
// streaming output where no tabwriter can align the whole set.
func printTableEntry(e *requestlog.Entry) {
	fmt.Printf("%s  %-6s  %-25s  %d  %-15s  %.1fms\n",
		e.Timestamp.Format("2006-01-02 15:04:05"), e.Method,
		truncate(e.Path, 25), e.ResponseStatus, endpointCell(e), e.DurationMs)
}

// printVerboseEntry prints one entry with endpoint, error, and proxy
// detail.
func printVerboseEntry(e *requestlog.Entry) {
	fmt.Printf("[%s] %s %s → %d (%.1fms)\n",
		e.Timestamp.Format("2006-01-02 15:04:05"), e.Method, e.Path,
		e.ResponseStatus, e.DurationMs)
	fmt.Printf("  Endpoint: %s\n", endpointCell(e))
	if e.Error != "" {
		fmt.Printf("  Error: %s\n", e.Error)
	}
	if e.Proxy != nil {
		fmt.Printf("  Proxy: %s → %d (%.1fms)\n",
			e.Proxy.TargetURL, e.Proxy.ResponseStatus, e.Proxy.ElapsedMs)
		if e.Proxy.Error != "" {
			fmt.Printf("  Proxy error: %s\n", e.Proxy.Error)
		}
	}
}

// endpointCell renders the matched endpoint for table output.
func endpointCell(e *requestlog.Entry) string {
	if e.EndpointID == 0 {
		return "(none)"
	}
	if e.EndpointName != "" {
		return truncate(fmt.Sprintf("#%d %s", e.EndpointID, e.EndpointName), 15)
	}
	return "#" + strconv.FormatInt(e.EndpointID, 10)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

// logFeedFrame mirrors the frames the admin log feed sends.
type logFeedFrame struct {
	Type      string            `json:"type"`
	Data      *requestlog.Entry `json:"data,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// followLogs subscribes to the WebSocket log feed and prints entries
// until interrupted or the server goes away.
func followLogs(adminURL string, endpointID int64, jsonOut, verbose bool) error {
	feedURL, err := buildFeedURL(adminURL, endpointID)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, resp, err := dialer.Dial(feedURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connection failed: %v (HTTP %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("%s", FormatConnectionError(&APIError{
			ErrorCode: "connection_error",
			Message:   fmt.Sprintf("cannot connect to admin API at %s: %v", adminURL, err),
		}))
	}
	defer conn.Close()

	fmt.Println("Streaming logs (press Ctrl+C to stop)...")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Println("\nStopping log stream...")
		cancel()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}()

	msgChan := make(chan []byte, 100)
	errChan := make(chan error, 1)
	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-ctx.Done():
				default:
					errChan <- err
				}
				return
			}
			msgChan <- message
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errChan:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				fmt.Println("Connection closed by server")
				return nil
			}
			return fmt.Errorf("read error: %v", err)
		case message := <-msgChan:
			var frame logFeedFrame
			if err := json.Unmarshal(message, &frame); err != nil {
				continue
			}
			// Pings keep the connection warm; only log frames print.
			if frame.Type != "log" || frame.Data == nil {
				continue
			}
			switch {
			case jsonOut:
				data, err := json.Marshal(frame.Data)
				if err != nil {
					continue
				}
				fmt.Println(string(data))
			case verbose:
				printVerboseEntry(frame.Data)
			default:
				printTableEntry(frame.Data)
			}
		}
	}
}

// buildFeedURL derives the WebSocket feed URL from the admin base URL.
// A positive endpoint id selects the per-endpoint feed.
func buildFeedURL(adminURL string, endpointID int64) (string, error) {
	u, err := url.Parse(adminURL)
	if err != nil {
		return "", fmt.Errorf("invalid admin URL %q: %w", adminURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported admin URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/logs"
	if endpointID > 0 {
		u.Path += "/" + strconv.FormatInt(endpointID, 10)
	}
	return u.String(), nil
}
