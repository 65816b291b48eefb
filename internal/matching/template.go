// Package matching compiles path templates and resolves incoming
// requests to registered routes.
//
// Template syntax: literal segments match exactly and case-sensitively;
// {name} matches exactly one non-empty path segment and binds it; a
// trailing {*} matches the remainder of the path, including nothing,
// and binds no parameter. The wildcard attaches to whatever precedes
// it, so /docs{*} matches /docs, /docs/api, and /docs/a/b, while
// /files/{*} requires the slash and therefore does not match /files.
package matching

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoRoute is returned when no active route matches a request.
var ErrNoRoute = errors.New("no route matches request")

const wildcardToken = "{*}"

var (
	tokenRe      = regexp.MustCompile(`\{([^{}]*)\}`)
	identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// Template is a compiled path template. Compiled templates are
// immutable and safe for concurrent use.
type Template struct {
	raw      string
	re       *regexp.Regexp
	params   []string
	wildcard bool
}

// Compile parses and validates a path template.
func Compile(raw string) (*Template, error) {
	if raw == "" {
		return nil, errors.New("path template must not be empty")
	}
	if !strings.HasPrefix(raw, "/") {
		return nil, errors.New("path template must start with /")
	}

	wildcard := strings.HasSuffix(raw, wildcardToken)
	var params []string
	seen := make(map[string]bool)
	for _, m := range tokenRe.FindAllStringSubmatchIndex(raw, -1) {
		name := raw[m[2]:m[3]]
		if name == "*" {
			if m[1] != len(raw) {
				return nil, errors.New("wildcard {*} is only allowed as the final template segment")
			}
			continue
		}
		if !identifierRe.MatchString(name) {
			return nil, fmt.Errorf("invalid parameter name %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate parameter name %q", name)
		}
		seen[name] = true
		params = append(params, name)
	}

	re, err := buildRegexp(raw, wildcard)
	if err != nil {
		return nil, fmt.Errorf("compile path template %q: %w", raw, err)
	}

	return &Template{raw: raw, re: re, params: params, wildcard: wildcard}, nil
}

// MustCompile is Compile for templates known to be valid, such as test
// fixtures and registry snapshots of already-validated endpoints.
func MustCompile(raw string) *Template {
	t, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// buildRegexp turns the template into an anchored regexp: {name} tokens
// become named single-segment groups and a trailing {*} becomes an
// unanchored tail. Literal spans are quoted; Compile has already
// rejected malformed token names.
func buildRegexp(raw string, wildcard bool) (*regexp.Regexp, error) {
	body := raw
	if wildcard {
		body = strings.TrimSuffix(body, wildcardToken)
	}

	var sb strings.Builder
	sb.WriteString(`^`)
	last := 0
	for _, m := range tokenRe.FindAllStringSubmatchIndex(body, -1) {
		sb.WriteString(regexp.QuoteMeta(body[last:m[0]]))
		sb.WriteString(`(?P<` + body[m[2]:m[3]] + `>[^/]+)`)
		last = m[1]
	}
	sb.WriteString(regexp.QuoteMeta(body[last:]))
	if wildcard {
		sb.WriteString(`(.*)`)
	}
	sb.WriteString(`$`)
	return regexp.Compile(sb.String())
}

// String returns the original template text.
func (t *Template) String() string { return t.raw }

// ParamCount counts parameter slots for specificity ranking; {name}
// and {*} each count one.
func (t *Template) ParamCount() int {
	n := len(t.params)
	if t.wildcard {
		n++
	}
	return n
}

// HasWildcard reports whether the template ends in {*}.
func (t *Template) HasWildcard() bool { return t.wildcard }

// ParamNames returns the named parameters in template order.
func (t *Template) ParamNames() []string { return t.params }

// Match tests a request path against the template. On success it
// returns the bound named parameters; the wildcard capture is not
// exposed.
func (t *Template) Match(path string) (map[string]string, bool) {
	sub := t.re.FindStringSubmatch(path)
	if sub == nil {
		return nil, false
	}
	params := make(map[string]string, len(t.params))
	for i, name := range t.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		params[name] = sub[i]
	}
	return params, true
}

// Remainder returns the request-path tail consumed by a trailing
// wildcard, so /docs{*} against /docs/a/b yields /a/b. It is empty
// when the template has no wildcard, the path does not match, or the
// wildcard consumed nothing.
func (t *Template) Remainder(path string) string {
	if !t.wildcard {
		return ""
	}
	sub := t.re.FindStringSubmatch(path)
	if sub == nil {
		return ""
	}
	// The wildcard group is the single unnamed capture, always last.
	return sub[len(sub)-1]
}
