// Package sandbox evaluates operator-authored conditional scripts
// against a read-only view of a single request. Scripts use the expr
// language; each evaluation sees a fresh namespace and runs under a
// wall-clock budget, so a broken script only ever fails its own
// request.
package sandbox

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// DefaultBudget bounds one full evaluation, prepare script and branch
// conditions together.
const DefaultBudget = 200 * time.Millisecond

// Request is the read-only view a script evaluates against. Header
// keys must be lowercased by the caller. Query holds the last value
// for repeated keys.
type Request struct {
	Method     string
	Path       string
	Headers    map[string]string
	Query      map[string]string
	PathParams map[string]string
	Body       string
}

// Outcome reports one finished evaluation: the index of the first
// truthy branch condition, or -1 when none matched, plus every
// variable the prepare script bound.
type Outcome struct {
	BranchIndex int
	Vars        map[string]any
}

// StringVars renders the bound variables for response templating:
// scalars via fmt, composite values as JSON.
func (o *Outcome) StringVars() map[string]string {
	if o == nil || len(o.Vars) == 0 {
		return nil
	}
	out := make(map[string]string, len(o.Vars))
	for k, v := range o.Vars {
		switch t := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = t
		case bool, int, int32, int64, uint64, float32, float64:
			out[k] = fmt.Sprintf("%v", t)
		default:
			out[k] = oj.JSON(t)
		}
	}
	return out
}

// Evaluator compiles and runs scripts, caching compiled programs
// across requests. Safe for concurrent use.
type Evaluator struct {
	budget time.Duration

	programMu sync.RWMutex
	programs  map[string]*vm.Program
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithBudget overrides the evaluation wall-clock budget.
func WithBudget(d time.Duration) Option {
	return func(ev *Evaluator) {
		if d > 0 {
			ev.budget = d
		}
	}
}

// New returns an Evaluator with an empty program cache.
func New(opts ...Option) *Evaluator {
	ev := &Evaluator{
		budget:   DefaultBudget,
		programs: map[string]*vm.Program{},
	}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

// Evaluate runs the prepare script line by line, then the branch
// conditions in order, and reports the first truthy branch. The whole
// evaluation shares one wall-clock budget; on any failure the returned
// error is a *Error and the outcome is nil.
func (ev *Evaluator) Evaluate(ctx context.Context, req *Request, prepare string, conditions []string) (*Outcome, error) {
	type result struct {
		out *Outcome
		err error
	}
	// Buffered so a worker finishing after a timeout can still exit.
	done := make(chan result, 1)
	go func() {
		out, err := ev.run(req, prepare, conditions)
		done <- result{out, err}
	}()

	timer := time.NewTimer(ev.budget)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.out, r.err
	case <-timer.C:
		return nil, &Error{Timeout: true, Err: fmt.Errorf("evaluation exceeded %s", ev.budget)}
	case <-ctx.Done():
		return nil, &Error{Err: ctx.Err()}
	}
}

func (ev *Evaluator) run(req *Request, prepare string, conditions []string) (out *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &Error{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	env := buildEnv(req)
	vars := map[string]any{}

	for i, line := range strings.Split(prepare, "\n") {
		stmt := strings.TrimSpace(line)
		if stmt == "" || strings.HasPrefix(stmt, "#") {
			continue
		}
		name, src, perr := splitAssignment(stmt)
		if perr != nil {
			return nil, &Error{Stage: fmt.Sprintf("prepare line %d", i+1), Err: perr}
		}
		if _, taken := builtins[name]; taken {
			return nil, &Error{Stage: fmt.Sprintf("prepare line %d", i+1), Err: fmt.Errorf("cannot rebind %q", name)}
		}
		val, eerr := ev.eval(src, env)
		if eerr != nil {
			return nil, &Error{Stage: fmt.Sprintf("prepare line %d", i+1), Err: eerr}
		}
		env[name] = val
		vars[name] = val
	}

	for i, cond := range conditions {
		val, eerr := ev.eval(cond, env)
		if eerr != nil {
			return nil, &Error{Stage: fmt.Sprintf("branch %d", i+1), Err: eerr}
		}
		if Truthy(val) {
			return &Outcome{BranchIndex: i, Vars: vars}, nil
		}
	}
	return &Outcome{BranchIndex: -1, Vars: vars}, nil
}

func (ev *Evaluator) eval(src string, env map[string]any) (any, error) {
	program, err := ev.compile(src, env)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("eval %q: %w", src, err)
	}
	return out, nil
}

func (ev *Evaluator) compile(src string, env map[string]any) (*vm.Program, error) {
	key := src + "\x00" + envSignature(env)
	ev.programMu.RLock()
	if p, ok := ev.programs[key]; ok {
		ev.programMu.RUnlock()
		return p, nil
	}
	ev.programMu.RUnlock()

	program, err := expr.Compile(src, expr.Env(env))
	if err != nil {
		return nil, err
	}

	ev.programMu.Lock()
	if p, ok := ev.programs[key]; ok {
		program = p
	} else {
		ev.programs[key] = program
	}
	ev.programMu.Unlock()
	return program, nil
}

func envSignature(env map[string]any) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s:%T", k, env[k])
	}
	return sb.String()
}

// builtins are the identifiers bound before the prepare script runs.
// Scripts may shadow nothing here.
var builtins = map[string]struct{}{
	"method":      {},
	"path":        {},
	"body":        {},
	"headers":     {},
	"query":       {},
	"path_params": {},
	"json":        {},
	"header":      {},
	"jsonpath":    {},
}

func buildEnv(req *Request) map[string]any {
	headers := req.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	query := req.Query
	if query == nil {
		query = map[string]string{}
	}
	params := req.PathParams
	if params == nil {
		params = map[string]string{}
	}
	doc := parseBody(req.Body)

	return map[string]any{
		"method":      req.Method,
		"path":        req.Path,
		"body":        req.Body,
		"headers":     headers,
		"query":       query,
		"path_params": params,
		"json":        doc,
		"header": func(name string) string {
			return headers[strings.ToLower(name)]
		},
		"jsonpath": func(sel string) any {
			return jsonPath(doc, sel)
		},
	}
}

// parseBody returns the decoded JSON document, or nil when the body is
// empty or not JSON. Scripts test "json != nil" to branch on it.
func parseBody(body string) any {
	s := strings.TrimSpace(body)
	if s == "" {
		return nil
	}
	doc, err := oj.ParseString(s)
	if err != nil {
		return nil
	}
	return doc
}

func jsonPath(doc any, sel string) any {
	if doc == nil {
		return nil
	}
	x, err := jp.ParseString(sel)
	if err != nil {
		return nil
	}
	got := x.Get(doc)
	switch len(got) {
	case 0:
		return nil
	case 1:
		return got[0]
	default:
		return got
	}
}

var assignRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*)$`)

func splitAssignment(stmt string) (name, src string, err error) {
	m := assignRe.FindStringSubmatch(stmt)
	if m == nil || m[2] == "" || strings.HasPrefix(m[2], "=") {
		return "", "", fmt.Errorf("expected %q", "name = expression")
	}
	return m[1], m[2], nil
}

// Truthy reports whether a script value selects its branch: nil,
// false, numeric zero, empty strings, and empty collections do not.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case float64:
		return t != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
