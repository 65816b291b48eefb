package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	params := map[string]string{"id": "42", "name": "alice"}
	vars := map[string]string{"id": "override-loses", "tier": "gold"}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no tokens", "/api/users", "/api/users"},
		{"single token", `{"id":"{id}"}`, `{"id":"42"}`},
		{"multiple tokens", "/users/{id}/{name}", "/users/42/alice"},
		{"first source wins", "{id}", "42"},
		{"second source fills gap", "{tier}", "gold"},
		{"unresolved stays verbatim", "/users/{missing}", "/users/{missing}"},
		{"invalid token untouched", "/users/{9bad}/{}", "/users/{9bad}/{}"},
		{"repeated token", "{id}-{id}", "42-42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.in, params, vars))
		})
	}
}

func TestRenderWithNoSources(t *testing.T) {
	assert.Equal(t, "/users/{id}", Render("/users/{id}"))
}

func TestRenderURLReportsUnresolved(t *testing.T) {
	out, missing := RenderURL("https://api.example.com/users/{id}/orders/{oid}",
		map[string]string{"id": "7"})

	assert.Equal(t, "https://api.example.com/users/7/orders/{oid}", out)
	assert.Equal(t, []string{"oid"}, missing)
}

func TestRenderURLFullyResolved(t *testing.T) {
	out, missing := RenderURL("https://api.example.com/users/{id}",
		map[string]string{"id": "7"})

	assert.Equal(t, "https://api.example.com/users/7", out)
	assert.Empty(t, missing)
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "a"}, Tokens("/{a}/{b}/{a}"))
	assert.Nil(t, Tokens("/plain/path"))
	assert.Nil(t, Tokens("/{*}"))
}
