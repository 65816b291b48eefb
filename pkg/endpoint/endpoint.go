// Package endpoint defines the mock endpoint model: a path template, a
// method set, and one of three response strategies (static, proxy,
// conditional). Endpoints are plain data; they are validated by the
// registrar paths (admin API, file loader, importers) and treated as
// immutable once published to the registry.
package endpoint

import (
	"slices"
	"strings"
	"time"
)

// Protocol labels for an endpoint. SOAP endpoints participate in
// operation-name matching and default to an XML content type.
const (
	ProtocolHTTP = "http"
	ProtocolSOAP = "soap"
)

// Response strategies.
const (
	StrategyStatic      = "static"
	StrategyProxy       = "proxy"
	StrategyConditional = "conditional"
)

// Conditional branch response types.
const (
	BranchStatic = "static"
	BranchProxy  = "proxy"
)

// Endpoint is one registered mock route.
type Endpoint struct {
	// ID is assigned by the registry when zero. Lower ids win matching
	// ties, so ids also encode registration order.
	ID int64 `json:"id,omitempty" yaml:"id,omitempty"`

	// Name is the display name. For SOAP endpoints it doubles as the
	// operation name used to disambiguate shared paths.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Protocol is "http" (default) or "soap".
	Protocol string `json:"protocol,omitempty" yaml:"protocol,omitempty"`

	// PathTemplate holds literal segments, {name} parameters, and an
	// optional trailing {*} wildcard, e.g. /api/users/{id} or /files{*}.
	PathTemplate string `json:"pathTemplate" yaml:"pathTemplate"`

	// Methods is the non-empty set of HTTP verbs this endpoint serves.
	Methods []string `json:"methods" yaml:"methods"`

	// Strategy selects the response mode and which payload field applies.
	Strategy string `json:"strategy" yaml:"strategy"`

	// Active defaults to true when omitted. Inactive endpoints never match.
	Active *bool `json:"active,omitempty" yaml:"active,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`

	// Exactly one of the following is set, matching Strategy.
	Static      *StaticResponse      `json:"static,omitempty" yaml:"static,omitempty"`
	Proxy       *ProxySettings       `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	Conditional *ConditionalSettings `json:"conditional,omitempty" yaml:"conditional,omitempty"`
}

// StaticResponse is a canned response.
type StaticResponse struct {
	StatusCode int               `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body       string            `json:"body,omitempty" yaml:"body,omitempty"`
	DelayMs    int               `json:"delayMs,omitempty" yaml:"delayMs,omitempty"`
}

// ProxySettings forwards the request to an upstream target. TargetURL
// may contain {name} tokens resolved from path parameters.
type ProxySettings struct {
	TargetURL string `json:"targetUrl" yaml:"targetUrl"`
	DelayMs   int    `json:"delayMs,omitempty" yaml:"delayMs,omitempty"`
}

// ConditionalSettings picks a response by evaluating branch conditions
// in order after an optional prepare script has run.
type ConditionalSettings struct {
	PrepareScript string          `json:"prepareScript,omitempty" yaml:"prepareScript,omitempty"`
	Branches      []Branch        `json:"branches,omitempty" yaml:"branches,omitempty"`
	Default       DefaultResponse `json:"default" yaml:"default"`
}

// Branch is one conditional rule. Type selects static or proxy
// behavior; Headers apply to static branches only.
type Branch struct {
	Condition  string            `json:"condition" yaml:"condition"`
	Type       string            `json:"type" yaml:"type"`
	Body       string            `json:"body,omitempty" yaml:"body,omitempty"`
	ProxyURL   string            `json:"proxyUrl,omitempty" yaml:"proxyUrl,omitempty"`
	StatusCode int               `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	DelayMs    int               `json:"delayMs,omitempty" yaml:"delayMs,omitempty"`
}

// DefaultResponse applies when no branch matches or the sandbox fails.
type DefaultResponse struct {
	StatusCode int               `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	Body       string            `json:"body,omitempty" yaml:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	DelayMs    int               `json:"delayMs,omitempty" yaml:"delayMs,omitempty"`
}

// IsActive reports whether the endpoint participates in matching.
// A nil Active means active.
func (e *Endpoint) IsActive() bool {
	return e.Active == nil || *e.Active
}

// SetActive records an explicit active state.
func (e *Endpoint) SetActive(v bool) {
	e.Active = &v
}

// HasMethod reports whether the endpoint serves the given verb.
// Comparison is case-insensitive; stored methods are uppercase after
// Normalize.
func (e *Endpoint) HasMethod(method string) bool {
	return slices.Contains(e.Methods, strings.ToUpper(method))
}

// Normalize fills defaults and canonicalizes fields in place: protocol
// defaults to http, methods are uppercased and deduplicated. Callers
// normalize before Validate.
func (e *Endpoint) Normalize() {
	if e.Protocol == "" {
		e.Protocol = ProtocolHTTP
	}
	seen := make(map[string]bool, len(e.Methods))
	methods := e.Methods[:0]
	for _, m := range e.Methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		methods = append(methods, m)
	}
	e.Methods = methods
}

// Clone returns a deep copy. The registry hands out snapshots of
// published endpoints and never exposes its own mutable copies.
func (e *Endpoint) Clone() *Endpoint {
	if e == nil {
		return nil
	}
	out := *e
	out.Methods = slices.Clone(e.Methods)
	if e.Active != nil {
		v := *e.Active
		out.Active = &v
	}
	if e.Static != nil {
		s := *e.Static
		s.Headers = cloneMap(e.Static.Headers)
		out.Static = &s
	}
	if e.Proxy != nil {
		p := *e.Proxy
		out.Proxy = &p
	}
	if e.Conditional != nil {
		c := *e.Conditional
		c.Branches = make([]Branch, len(e.Conditional.Branches))
		for i, b := range e.Conditional.Branches {
			b.Headers = cloneMap(b.Headers)
			c.Branches[i] = b
		}
		c.Default.Headers = cloneMap(e.Conditional.Default.Headers)
		out.Conditional = &c
	}
	return &out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
