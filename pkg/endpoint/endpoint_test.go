package endpoint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validStatic() *Endpoint {
	return &Endpoint{
		Name:         "users",
		PathTemplate: "/api/users/{id}",
		Methods:      []string{"GET"},
		Strategy:     StrategyStatic,
		Static:       &StaticResponse{StatusCode: 200, Body: `{"ok":true}`},
	}
}

func validConditional() *Endpoint {
	return &Endpoint{
		Name:         "orders",
		PathTemplate: "/api/orders",
		Methods:      []string{"POST"},
		Strategy:     StrategyConditional,
		Conditional: &ConditionalSettings{
			PrepareScript: "amount = json != nil ? json.amount : 0",
			Branches: []Branch{
				{Condition: "amount > 10000", Type: BranchStatic, StatusCode: 402, Body: "too big"},
				{Condition: "amount > 0", Type: BranchProxy, ProxyURL: "http://upstream:9000/orders"},
			},
			Default: DefaultResponse{StatusCode: 400, Body: "bad order"},
		},
	}
}

func TestNormalize(t *testing.T) {
	e := &Endpoint{
		PathTemplate: "/api/things",
		Methods:      []string{"get", " Post ", "GET", "", "delete"},
	}
	e.Normalize()

	assert.Equal(t, ProtocolHTTP, e.Protocol)
	assert.Equal(t, []string{"GET", "POST", "DELETE"}, e.Methods)

	soap := &Endpoint{Protocol: ProtocolSOAP}
	soap.Normalize()
	assert.Equal(t, ProtocolSOAP, soap.Protocol)
}

func TestActiveState(t *testing.T) {
	e := &Endpoint{}
	assert.True(t, e.IsActive(), "omitted active means active")

	e.SetActive(false)
	assert.False(t, e.IsActive())

	e.SetActive(true)
	assert.True(t, e.IsActive())
}

func TestHasMethod(t *testing.T) {
	e := &Endpoint{Methods: []string{"get", "POST"}}
	e.Normalize()

	assert.True(t, e.HasMethod("GET"))
	assert.True(t, e.HasMethod("get"))
	assert.True(t, e.HasMethod("Post"))
	assert.False(t, e.HasMethod("DELETE"))
}

func TestClone(t *testing.T) {
	orig := validConditional()
	orig.SetActive(true)
	orig.Conditional.Branches[0].Headers = map[string]string{"Content-Type": "text/plain"}
	orig.Conditional.Default.Headers = map[string]string{"X-Mock": "1"}

	c := orig.Clone()
	require.NotSame(t, orig, c)
	assert.Equal(t, orig, c)

	c.Methods[0] = "DELETE"
	c.SetActive(false)
	c.Conditional.Branches[0].Headers["Content-Type"] = "mutated"
	c.Conditional.Branches[0].Condition = "mutated"
	c.Conditional.Default.Headers["X-Mock"] = "mutated"

	assert.Equal(t, []string{"POST"}, orig.Methods)
	assert.True(t, orig.IsActive())
	assert.Equal(t, "text/plain", orig.Conditional.Branches[0].Headers["Content-Type"])
	assert.Equal(t, "amount > 10000", orig.Conditional.Branches[0].Condition)
	assert.Equal(t, "1", orig.Conditional.Default.Headers["X-Mock"])

	var nilEp *Endpoint
	assert.Nil(t, nilEp.Clone())

	static := validStatic()
	static.Static.Headers = map[string]string{"A": "b"}
	sc := static.Clone()
	sc.Static.Headers["A"] = "mutated"
	sc.Static.Body = "mutated"
	assert.Equal(t, "b", static.Static.Headers["A"])
	assert.Equal(t, `{"ok":true}`, static.Static.Body)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Endpoint)
		base    func() *Endpoint
		wantErr string
	}{
		{
			name:   "valid static",
			base:   validStatic,
			mutate: func(e *Endpoint) {},
		},
		{
			name: "valid proxy",
			base: validStatic,
			mutate: func(e *Endpoint) {
				e.Strategy = StrategyProxy
				e.Static = nil
				e.Proxy = &ProxySettings{TargetURL: "http://upstream:9000/users/{id}"}
			},
		},
		{
			name:   "valid conditional",
			base:   validConditional,
			mutate: func(e *Endpoint) {},
		},
		{
			name:    "template must start with slash",
			base:    validStatic,
			mutate:  func(e *Endpoint) { e.PathTemplate = "api/users" },
			wantErr: "pathTemplate",
		},
		{
			name:    "template wildcard must be last",
			base:    validStatic,
			mutate:  func(e *Endpoint) { e.PathTemplate = "/files/{*}/meta" },
			wantErr: "pathTemplate",
		},
		{
			name:    "methods required",
			base:    validStatic,
			mutate:  func(e *Endpoint) { e.Methods = nil },
			wantErr: "methods",
		},
		{
			name:    "unsupported method",
			base:    validStatic,
			mutate:  func(e *Endpoint) { e.Methods = []string{"FETCH"} },
			wantErr: "methods",
		},
		{
			name:    "unknown protocol",
			base:    validStatic,
			mutate:  func(e *Endpoint) { e.Protocol = "grpc" },
			wantErr: "protocol",
		},
		{
			name:    "strategy required",
			base:    validStatic,
			mutate:  func(e *Endpoint) { e.Strategy = "" },
			wantErr: "strategy",
		},
		{
			name:    "unknown strategy",
			base:    validStatic,
			mutate:  func(e *Endpoint) { e.Strategy = "random" },
			wantErr: "strategy",
		},
		{
			name:    "static strategy requires payload",
			base:    validStatic,
			mutate:  func(e *Endpoint) { e.Static = nil },
			wantErr: "static",
		},
		{
			name: "static strategy rejects extra payloads",
			base: validStatic,
			mutate: func(e *Endpoint) {
				e.Proxy = &ProxySettings{TargetURL: "http://x"}
			},
			wantErr: "strategy",
		},
		{
			name: "proxy strategy requires target url",
			base: validStatic,
			mutate: func(e *Endpoint) {
				e.Strategy = StrategyProxy
				e.Static = nil
				e.Proxy = &ProxySettings{}
			},
			wantErr: "proxy.targetUrl",
		},
		{
			name:    "static status out of range",
			base:    validStatic,
			mutate:  func(e *Endpoint) { e.Static.StatusCode = 799 },
			wantErr: "static.statusCode",
		},
		{
			name:    "static status zero means engine default",
			base:    validStatic,
			mutate:  func(e *Endpoint) { e.Static.StatusCode = 0 },
		},
		{
			name:    "negative delay",
			base:    validStatic,
			mutate:  func(e *Endpoint) { e.Static.DelayMs = -5 },
			wantErr: "static.delayMs",
		},
		{
			name:    "branch condition required",
			base:    validConditional,
			mutate:  func(e *Endpoint) { e.Conditional.Branches[0].Condition = "" },
			wantErr: "conditional.branches[0].condition",
		},
		{
			name:    "branch type required",
			base:    validConditional,
			mutate:  func(e *Endpoint) { e.Conditional.Branches[1].Type = "redirect" },
			wantErr: "conditional.branches[1].type",
		},
		{
			name:    "proxy branch requires url",
			base:    validConditional,
			mutate:  func(e *Endpoint) { e.Conditional.Branches[1].ProxyURL = "" },
			wantErr: "conditional.branches[1].proxyUrl",
		},
		{
			name:    "default status out of range",
			base:    validConditional,
			mutate:  func(e *Endpoint) { e.Conditional.Default.StatusCode = 99 },
			wantErr: "conditional.default.statusCode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.base()
			tt.mutate(e)
			e.Normalize()
			err := e.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			var cerr *ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.wantErr, cerr.Field)
			assert.Contains(t, cerr.Error(), "invalid endpoint configuration")
		})
	}
}

func TestEndpointJSONShape(t *testing.T) {
	e := validStatic()
	e.ID = 7
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "pathTemplate")
	assert.Contains(t, m, "methods")
	assert.Contains(t, m, "strategy")
	assert.Contains(t, m, "static")
	assert.NotContains(t, m, "proxy", "unset payloads are omitted")
	assert.NotContains(t, m, "active", "implicit active is omitted")
}
