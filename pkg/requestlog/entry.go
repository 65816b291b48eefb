// Package requestlog defines the request log model and the interfaces
// the engine uses to record, query, and stream entries.
package requestlog

import "time"

// Protocol labels for log entries.
const (
	ProtocolHTTP = "http"
	ProtocolSOAP = "soap"
)

// MaxBodyCapture caps how much request/response body is retained in a
// log entry. Larger bodies are truncated; BodySize keeps the original
// length.
const MaxBodyCapture = 10 * 1024

// Entry is the structured record of one dispatched request, matched or
// not. Entries are immutable once handed to a Logger and are shared
// read-only with every subscriber.
type Entry struct {
	// ID is the unique entry id.
	ID string `json:"id"`

	// Timestamp is when the request arrived.
	Timestamp time.Time `json:"timestamp"`

	// Protocol is "http" or "soap".
	Protocol string `json:"protocol"`

	Method      string            `json:"method"`
	Path        string            `json:"path"`
	QueryString string            `json:"queryString,omitempty"`
	QueryParams map[string]string `json:"queryParams,omitempty"`
	// Headers joins repeated values with ", ".
	Headers map[string]string `json:"headers,omitempty"`

	// Body is the request body, truncated at MaxBodyCapture.
	Body     string `json:"body,omitempty"`
	BodySize int64  `json:"bodySize"`

	RemoteAddr string `json:"remoteAddr,omitempty"`

	// EndpointID is zero when no endpoint matched.
	EndpointID   int64             `json:"endpointId,omitempty"`
	EndpointName string            `json:"endpointName,omitempty"`
	// MatchedParams holds the {name} bindings from the path template.
	MatchedParams map[string]string `json:"matchedParams,omitempty"`

	ResponseStatus  int               `json:"responseStatus"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	ResponseBody    string            `json:"responseBody,omitempty"`

	// DurationMs is the total processing time, delays included.
	DurationMs float64 `json:"durationMs"`

	// Aborted marks requests whose client went away before the
	// response was written.
	Aborted bool `json:"aborted,omitempty"`

	// Error carries the sandbox or proxy diagnostic, empty if none.
	Error string `json:"error,omitempty"`

	// Proxy is set when the response came from (or was attempted
	// against) an upstream target.
	Proxy *ProxyInfo `json:"proxy,omitempty"`
}

// ProxyInfo records one outbound forwarding attempt.
type ProxyInfo struct {
	// TargetURL is the upstream URL after placeholder substitution.
	TargetURL string `json:"targetUrl"`

	OutboundHeaders map[string]string `json:"outboundHeaders,omitempty"`

	// ResponseStatus is zero when the call never produced a response.
	ResponseStatus  int               `json:"responseStatus,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`

	// ResponseBody is recorded after decompression, truncated at
	// MaxBodyCapture.
	ResponseBody string `json:"responseBody,omitempty"`

	ElapsedMs float64 `json:"elapsedMs"`

	// Error is the transport diagnostic, empty on success.
	Error string `json:"error,omitempty"`

	// Warnings lists non-fatal oddities such as unresolved {name}
	// tokens in the target URL.
	Warnings []string `json:"warnings,omitempty"`
}

// TruncateBody enforces MaxBodyCapture on captured bodies.
func TruncateBody(s string) string {
	if len(s) <= MaxBodyCapture {
		return s
	}
	return s[:MaxBodyCapture]
}
