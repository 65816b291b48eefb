// Package proxy forwards matched requests to an upstream target and
// captures the exchange for the request log. One attempt is made per
// request, never retried; failures are reported to the dispatcher
// instead of being raised to the mock client.
package proxy

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/stubd/stubd/pkg/requestlog"
	"github.com/stubd/stubd/pkg/template"
)

const (
	// DefaultTimeout bounds one outbound attempt end to end.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize is the maximum upstream body size to capture (10MB).
	DefaultMaxBodySize = 10 * 1024 * 1024
)

// hopByHopHeaders never cross the forwarder in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// excludedResponseHeaders are invalidated by decoding and re-serving
// the upstream body, so they are dropped from the client response.
var excludedResponseHeaders = map[string]bool{
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Connection":        true,
	"Content-Encoding":  true,
}

// Error records an outbound failure. Timeout distinguishes deadline
// overruns from other transport failures.
type Error struct {
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("proxy timeout: %v", e.Err)
	}
	return fmt.Sprintf("proxy transport error: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Request is the inbound call being forwarded. Body has already been
// buffered by the dispatcher.
type Request struct {
	Method     string
	Header     http.Header
	Body       []byte
	Host       string
	RemoteAddr string

	// Query is the raw query string, merged into the target URL.
	Query string

	// PathSuffix is the trailing-wildcard remainder of the request
	// path. It is appended to token-free targets so a /files{*}
	// endpoint can mirror a whole subtree.
	PathSuffix string
}

// Outcome reports one forwarding attempt. Info is always populated and
// ready for the request log; Status, Header, and Body are only valid
// when the attempt succeeded.
type Outcome struct {
	Status int
	Header http.Header
	Body   []byte
	Info   *requestlog.ProxyInfo
}

// Forwarder performs outbound calls for proxy endpoints and proxy
// branches. Safe for concurrent use.
type Forwarder struct {
	client  *http.Client
	maxBody int64
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithClient substitutes the outbound HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Forwarder) {
		if c != nil {
			f.client = c
		}
	}
}

// WithTimeout sets the outbound attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithMaxBodySize caps how much of the upstream body is read.
func WithMaxBodySize(n int64) Option {
	return func(f *Forwarder) {
		if n > 0 {
			f.maxBody = n
		}
	}
}

// New returns a Forwarder with a 30s client timeout.
func New(opts ...Option) *Forwarder {
	f := &Forwarder{
		client:  &http.Client{Timeout: DefaultTimeout},
		maxBody: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forward renders the target template and performs a single outbound
// call. Placeholder values are taken from the params maps in order,
// first match wins. The returned Outcome is non-nil even on error so
// the exchange can always be logged.
func (f *Forwarder) Forward(ctx context.Context, target string, in *Request, params ...map[string]string) (*Outcome, error) {
	info := &requestlog.ProxyInfo{}
	out := &Outcome{Info: info}

	url, warnings := buildTargetURL(target, in, params...)
	info.TargetURL = url
	info.Warnings = warnings

	req, err := http.NewRequestWithContext(ctx, in.Method, url, bytes.NewReader(in.Body))
	if err != nil {
		ferr := &Error{Err: err}
		info.Error = ferr.Error()
		return out, ferr
	}

	copyHeader(req.Header, in.Header)
	req.Header.Del("Host")
	req.Header.Del("Content-Length")
	for _, h := range hopByHopHeaders {
		req.Header.Del(h)
	}
	if in.RemoteAddr != "" {
		ip := clientIP(in.RemoteAddr)
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		req.Header.Set("X-Forwarded-For", ip)
	}
	if in.Host != "" {
		req.Header.Set("X-Forwarded-Host", in.Host)
	}
	info.OutboundHeaders = flattenHeader(req.Header)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		info.ElapsedMs = msSince(start)
		ferr := classify(err)
		info.Error = ferr.Error()
		return out, ferr
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	info.ElapsedMs = msSince(start)
	if err != nil {
		ferr := classify(fmt.Errorf("read upstream response: %w", err))
		info.Error = ferr.Error()
		return out, ferr
	}

	body, warn := decodeBody(raw, resp.Header.Get("Content-Encoding"))
	if warn != "" {
		info.Warnings = append(info.Warnings, warn)
	}

	out.Status = resp.StatusCode
	out.Header = filterResponseHeader(resp.Header)
	out.Body = body
	info.ResponseStatus = resp.StatusCode
	info.ResponseHeaders = flattenHeader(resp.Header)
	info.ResponseBody = requestlog.TruncateBody(string(body))
	return out, nil
}

// buildTargetURL resolves the target template. A target with {name}
// tokens is rendered from the params maps; a token-free target gets the
// wildcard path suffix appended. The inbound query string is merged
// either way.
func buildTargetURL(target string, in *Request, params ...map[string]string) (string, []string) {
	var warnings []string
	url := target
	if len(template.Tokens(target)) == 0 {
		url = strings.TrimRight(url, "/")
		if suffix := in.PathSuffix; suffix != "" {
			if !strings.HasPrefix(suffix, "/") {
				suffix = "/" + suffix
			}
			url += suffix
		}
	} else {
		rendered, unresolved := template.RenderURL(url, params...)
		url = rendered
		for _, name := range unresolved {
			warnings = append(warnings, fmt.Sprintf("unresolved placeholder {%s}", name))
		}
	}
	if in.Query != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + in.Query
	}
	return url, warnings
}

// classify wraps a transport failure, marking deadline overruns so the
// log distinguishes a dead upstream from a slow one.
func classify(err error) *Error {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		timeout = true
	}
	return &Error{Timeout: timeout, Err: err}
}

func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func copyHeader(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func filterResponseHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, values := range src {
		if excludedResponseHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
	return dst
}

func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for key, values := range h {
		out[key] = strings.Join(values, ", ")
	}
	return out
}

// decodeBody undoes gzip/deflate so the recorded body is readable. The
// original Accept-Encoding is forwarded upstream, so the transport
// never transparently decompresses for us.
func decodeBody(raw []byte, encoding string) ([]byte, string) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return raw, fmt.Sprintf("gzip decode failed: %v", err)
		}
		defer func() { _ = zr.Close() }()
		out, err := io.ReadAll(zr)
		if err != nil {
			return raw, fmt.Sprintf("gzip decode failed: %v", err)
		}
		return out, ""
	case "deflate":
		// Upstreams disagree on whether deflate means zlib or raw.
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer func() { _ = zr.Close() }()
			if out, err := io.ReadAll(zr); err == nil {
				return out, ""
			}
		}
		fr := flate.NewReader(bytes.NewReader(raw))
		defer func() { _ = fr.Close() }()
		out, err := io.ReadAll(fr)
		if err != nil {
			return raw, fmt.Sprintf("deflate decode failed: %v", err)
		}
		return out, ""
	}
	return raw, ""
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
