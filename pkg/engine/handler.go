package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stubd/stubd/internal/matching"
	"github.com/stubd/stubd/internal/registry"
	"github.com/stubd/stubd/pkg/endpoint"
	"github.com/stubd/stubd/pkg/httputil"
	"github.com/stubd/stubd/pkg/logging"
	"github.com/stubd/stubd/pkg/proxy"
	"github.com/stubd/stubd/pkg/requestlog"
	"github.com/stubd/stubd/pkg/sandbox"
	"github.com/stubd/stubd/pkg/soap"
	"github.com/stubd/stubd/pkg/template"
)

// MaxRequestBodySize is the default cap on inbound request bodies.
// Larger bodies are rejected with 413 rather than truncated.
const MaxRequestBodySize = 10 << 20 // 10MB

// Metric strategy label for requests no endpoint matched.
const strategyNone = "none"

// Handler serves the mock traffic port. Each request is resolved
// against one registry snapshot, dispatched through the matched
// endpoint's strategy, and always recorded in the request log.
type Handler struct {
	registry  *registry.Registry
	logger    requestlog.Logger
	log       *slog.Logger
	sandbox   *sandbox.Evaluator
	forwarder *proxy.Forwarder
	notFound  http.Handler
	maxBody   int64
}

// NewHandler creates a Handler over the given registry with default
// sandbox and forwarder settings.
func NewHandler(reg *registry.Registry) *Handler {
	return &Handler{
		registry:  reg,
		log:       logging.Nop(),
		sandbox:   sandbox.New(),
		forwarder: proxy.New(),
		maxBody:   MaxRequestBodySize,
	}
}

// SetLogger sets the request log sink. A nil logger disables
// recording.
func (h *Handler) SetLogger(logger requestlog.Logger) {
	h.logger = logger
}

// SetOperationalLogger sets the logger for warnings and debug output.
func (h *Handler) SetOperationalLogger(log *slog.Logger) {
	if log != nil {
		h.log = log
	} else {
		h.log = logging.Nop()
	}
}

// SetSandbox replaces the condition evaluator.
func (h *Handler) SetSandbox(ev *sandbox.Evaluator) {
	if ev != nil {
		h.sandbox = ev
	}
}

// SetForwarder replaces the proxy forwarder.
func (h *Handler) SetForwarder(f *proxy.Forwarder) {
	if f != nil {
		h.forwarder = f
	}
}

// SetNotFoundHandler installs a handler for requests no endpoint
// matched. The default writes a JSON 404.
func (h *Handler) SetNotFoundHandler(nf http.Handler) {
	h.notFound = nf
}

// SetMaxBodySize overrides the inbound body cap.
func (h *Handler) SetMaxBodySize(n int64) {
	if n > 0 {
		h.maxBody = n
	}
}

// ServeHTTP implements http.Handler for the mock traffic port.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	entry := &requestlog.Entry{
		Timestamp:   start,
		Protocol:    requestlog.ProtocolHTTP,
		Method:      r.Method,
		Path:        r.URL.Path,
		QueryString: r.URL.RawQuery,
		QueryParams: lastValues(r.URL.Query()),
		RemoteAddr:  r.RemoteAddr,
	}

	body, tooLarge := h.readBody(w, r)

	entry.Headers = flattenHeader(r.Header)
	entry.Body = requestlog.TruncateBody(string(body))
	entry.BodySize = int64(len(body))

	rec := newResponseRecorder(w)
	strategy := strategyNone
	if tooLarge {
		httputil.WriteError(rec, http.StatusRequestEntityTooLarge, "body_too_large", "request body exceeds the maximum allowed size")
	} else {
		strategy = h.dispatch(rec, r, body, entry)
	}

	entry.ResponseStatus = rec.status
	entry.ResponseHeaders = flattenHeader(rec.Header())
	entry.ResponseBody = rec.body.String()
	entry.DurationMs = float64(time.Since(start).Microseconds()) / 1000.0
	if r.Context().Err() != nil {
		entry.Aborted = true
	}

	if h.logger != nil {
		h.logger.Log(entry)
	}
	recordRequest(r.Method, strategy, rec.status, time.Since(start))
}

// dispatch resolves the route and executes the matched endpoint's
// strategy, filling entry as it goes. Returns the strategy label for
// metrics.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, body []byte, entry *requestlog.Entry) string {
	snap := h.registry.Snapshot()

	matches, err := matching.Resolve(snap.Candidates(), r.Method, r.URL.Path)
	if err != nil {
		recordMatchMiss()
		h.writeNotFound(w, r)
		return strategyNone
	}

	m, ep := h.selectEndpoint(snap, matches, body, r.Header)
	if ep == nil {
		recordMatchMiss()
		h.writeNotFound(w, r)
		return strategyNone
	}
	entry.EndpointID = ep.ID
	entry.EndpointName = ep.Name
	entry.MatchedParams = m.Params
	if ep.Protocol == endpoint.ProtocolSOAP {
		entry.Protocol = requestlog.ProtocolSOAP
	}

	h.log.Debug("request matched",
		"method", r.Method,
		"path", r.URL.Path,
		"endpoint_id", ep.ID,
		"strategy", ep.Strategy,
	)

	switch ep.Strategy {
	case endpoint.StrategyStatic:
		h.serveStatic(w, r, ep, m.Params)
	case endpoint.StrategyProxy:
		h.serveProxy(w, r, ep, m, body, entry)
	case endpoint.StrategyConditional:
		h.serveConditional(w, r, ep, m, body, entry)
	default:
		// Unknown strategies are rejected at registration; an
		// endpoint reaching here is treated as unmatched.
		h.writeNotFound(w, r)
	}
	return ep.Strategy
}

// selectEndpoint picks the winning match. When several soap endpoints
// tie on specificity for the same path, the envelope's operation name
// chooses among them (endpoint name == operation); without an
// envelope, or when no name matches, the normal ranking stands.
func (h *Handler) selectEndpoint(snap *registry.Snapshot, matches []matching.Match, body []byte, header http.Header) (matching.Match, *endpoint.Endpoint) {
	best := matches[0]
	ep, _ := snap.Get(best.Candidate.ID)

	if ep == nil || ep.Protocol != endpoint.ProtocolSOAP || len(matches) == 1 {
		return best, ep
	}

	info, err := soap.Inspect(body, header)
	if err != nil || info.Operation == "" {
		return best, ep
	}
	for _, m := range matches {
		if !matching.SameSpecificity(best, m) {
			break
		}
		cand, ok := snap.Get(m.Candidate.ID)
		if !ok || cand.Protocol != endpoint.ProtocolSOAP {
			continue
		}
		if cand.Name == info.Operation {
			return m, cand
		}
	}
	return best, ep
}

func (h *Handler) serveStatic(w http.ResponseWriter, r *http.Request, ep *endpoint.Endpoint, params map[string]string) {
	st := ep.Static
	if st == nil {
		st = &endpoint.StaticResponse{}
	}
	if !h.wait(r.Context(), st.DelayMs) {
		return
	}
	h.writeStatic(w, ep, st.StatusCode, st.Headers, st.Body, params)
}

func (h *Handler) serveProxy(w http.ResponseWriter, r *http.Request, ep *endpoint.Endpoint, m matching.Match, body []byte, entry *requestlog.Entry) {
	ps := ep.Proxy
	if ps == nil {
		ps = &endpoint.ProxySettings{}
	}
	if !h.wait(r.Context(), ps.DelayMs) {
		return
	}
	h.forward(w, r, ps.TargetURL, m, body, entry, nil)
}

func (h *Handler) serveConditional(w http.ResponseWriter, r *http.Request, ep *endpoint.Endpoint, m matching.Match, body []byte, entry *requestlog.Entry) {
	cs := ep.Conditional
	if cs == nil {
		cs = &endpoint.ConditionalSettings{}
	}

	conditions := make([]string, len(cs.Branches))
	for i, b := range cs.Branches {
		conditions[i] = b.Condition
	}

	outcome, err := h.sandbox.Evaluate(r.Context(), sandboxRequest(r, m.Params, body), cs.PrepareScript, conditions)
	if err != nil {
		if r.Context().Err() != nil {
			// Client gone; the caller records the aborted entry.
			return
		}
		var serr *sandbox.Error
		recordSandboxFailure(errors.As(err, &serr) && serr.Timeout)
		entry.Error = err.Error()
		h.log.Warn("sandbox evaluation failed",
			"endpoint_id", ep.ID,
			"error", err,
		)
		h.serveDefault(w, r, ep, cs, m.Params)
		return
	}

	if outcome.BranchIndex < 0 {
		h.serveDefault(w, r, ep, cs, m.Params)
		return
	}

	br := cs.Branches[outcome.BranchIndex]
	if !h.wait(r.Context(), br.DelayMs) {
		return
	}
	if br.Type == endpoint.BranchProxy {
		// Proxy branches forward the original headers unmodified;
		// branch headers apply to static branches only.
		h.forward(w, r, br.ProxyURL, m, body, entry, outcome.StringVars())
		return
	}
	h.writeStatic(w, ep, br.StatusCode, br.Headers, br.Body, m.Params, outcome.StringVars())
}

// serveDefault writes the conditional endpoint's fallback response,
// used when no branch matched or the sandbox failed.
func (h *Handler) serveDefault(w http.ResponseWriter, r *http.Request, ep *endpoint.Endpoint, cs *endpoint.ConditionalSettings, params map[string]string) {
	def := cs.Default
	if !h.wait(r.Context(), def.DelayMs) {
		return
	}
	h.writeStatic(w, ep, def.StatusCode, def.Headers, def.Body, params)
}

// forward runs one outbound attempt and relays the result, mapping
// transport failures to 502 while the detail lands in the log entry.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, target string, m matching.Match, body []byte, entry *requestlog.Entry, vars map[string]string) {
	preq := &proxy.Request{
		Method:     r.Method,
		Header:     r.Header,
		Body:       body,
		Host:       r.Host,
		RemoteAddr: r.RemoteAddr,
		Query:      r.URL.RawQuery,
		PathSuffix: m.Candidate.Template.Remainder(r.URL.Path),
	}

	sources := []map[string]string{m.Params}
	if vars != nil {
		sources = append(sources, vars)
	}

	out, err := h.forwarder.Forward(r.Context(), target, preq, sources...)
	entry.Proxy = out.Info
	if err != nil {
		entry.Error = err.Error()
		recordProxyRequest(r.Method, 0)
		if r.Context().Err() != nil {
			return
		}
		h.log.Warn("proxy attempt failed",
			"target", out.Info.TargetURL,
			"error", err,
		)
		httputil.WriteError(w, http.StatusBadGateway, "bad_gateway", "upstream request failed")
		return
	}

	recordProxyRequest(r.Method, out.Status)
	dst := w.Header()
	for name, values := range out.Header {
		for _, v := range values {
			dst.Add(name, v)
		}
	}
	w.WriteHeader(out.Status)
	_, _ = w.Write(out.Body)
}

// writeStatic renders {name} placeholders in the body and header
// values from the given sources and writes the canned response.
func (h *Handler) writeStatic(w http.ResponseWriter, ep *endpoint.Endpoint, status int, headers map[string]string, body string, sources ...map[string]string) {
	rendered := template.Render(body, sources...)

	userSetContentType := false
	for name, value := range headers {
		w.Header().Set(name, template.Render(value, sources...))
		if strings.EqualFold(name, "Content-Type") {
			userSetContentType = true
		}
	}
	if !userSetContentType {
		w.Header().Set("Content-Type", detectContentType(ep, rendered))
	}

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if rendered != "" {
		_, _ = io.WriteString(w, rendered)
	}
}

func (h *Handler) writeNotFound(w http.ResponseWriter, r *http.Request) {
	if h.notFound != nil {
		h.notFound.ServeHTTP(w, r)
		return
	}
	httputil.WriteError(w, http.StatusNotFound, "no_route", "no endpoint matched the request")
}

// wait sleeps for the configured delay. Returns false when the request
// context is canceled first, in which case nothing should be written.
func (h *Handler) wait(ctx context.Context, delayMs int) bool {
	if delayMs <= 0 {
		return true
	}
	t := time.NewTimer(time.Duration(delayMs) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// readBody drains the request body up to the configured cap and
// replaces it with a rewindable copy. The second return is true when
// the cap was exceeded.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Body == nil {
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.log.Warn("request body too large", "path", r.URL.Path, "limit", h.maxBody)
			return nil, true
		}
		h.log.Warn("failed to read request body", "path", r.URL.Path, "error", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, false
}

// sandboxRequest builds the read-only view a condition script sees.
// Header keys are lowercased; repeated query keys keep the last value.
func sandboxRequest(r *http.Request, params map[string]string, body []byte) *sandbox.Request {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}
	return &sandbox.Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		Headers:    headers,
		Query:      lastValues(r.URL.Query()),
		PathParams: params,
		Body:       string(body),
	}
}

// detectContentType picks a Content-Type for responses whose headers
// do not set one: soap endpoints default to text/xml, everything else
// is sniffed from the body shape.
func detectContentType(ep *endpoint.Endpoint, body string) string {
	if ep.Protocol == endpoint.ProtocolSOAP {
		return "text/xml; charset=utf-8"
	}
	switch {
	case looksLikeJSON(body):
		return "application/json"
	case looksLikeXML(body):
		return "application/xml"
	default:
		return "text/plain; charset=utf-8"
	}
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	return (strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) ||
		(strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"))
}

func looksLikeXML(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "<")
}

func lastValues(values url.Values) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for name, vs := range values {
		if len(vs) > 0 {
			out[name] = vs[len(vs)-1]
		}
	}
	return out
}

func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// responseRecorder captures the status code and a bounded copy of the
// response body so the dispatcher can log what it served.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	written bool
	body    bytes.Buffer
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (w *responseRecorder) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	w.written = true
	if room := requestlog.MaxBodyCapture - w.body.Len(); room > 0 {
		if len(b) > room {
			w.body.Write(b[:room])
		} else {
			w.body.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
