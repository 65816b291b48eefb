package endpoint

import (
	"fmt"

	"github.com/stubd/stubd/internal/matching"
)

// ConfigurationError reports an invalid endpoint definition. It is
// raised at registration time; a definition that validates never fails
// template parsing during dispatch.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid endpoint configuration: %s: %s", e.Field, e.Message)
}

// validMethods are the HTTP verbs an endpoint may register.
var validMethods = map[string]bool{
	"GET":     true,
	"POST":    true,
	"PUT":     true,
	"DELETE":  true,
	"PATCH":   true,
	"HEAD":    true,
	"OPTIONS": true,
}

// Validate checks the endpoint definition. Call Normalize first so
// methods and protocol are canonical.
func (e *Endpoint) Validate() error {
	if _, err := matching.Compile(e.PathTemplate); err != nil {
		return &ConfigurationError{Field: "pathTemplate", Message: err.Error()}
	}

	if len(e.Methods) == 0 {
		return &ConfigurationError{Field: "methods", Message: "at least one HTTP method is required"}
	}
	for _, m := range e.Methods {
		if !validMethods[m] {
			return &ConfigurationError{Field: "methods", Message: fmt.Sprintf("unsupported method %q", m)}
		}
	}

	switch e.Protocol {
	case ProtocolHTTP, ProtocolSOAP:
	default:
		return &ConfigurationError{Field: "protocol", Message: fmt.Sprintf("unknown protocol %q", e.Protocol)}
	}

	switch e.Strategy {
	case StrategyStatic:
		if e.Static == nil {
			return &ConfigurationError{Field: "static", Message: "static strategy requires a static payload"}
		}
		if e.Proxy != nil || e.Conditional != nil {
			return &ConfigurationError{Field: "strategy", Message: "static strategy allows only the static payload"}
		}
		return e.validateStatic()
	case StrategyProxy:
		if e.Proxy == nil {
			return &ConfigurationError{Field: "proxy", Message: "proxy strategy requires a proxy payload"}
		}
		if e.Static != nil || e.Conditional != nil {
			return &ConfigurationError{Field: "strategy", Message: "proxy strategy allows only the proxy payload"}
		}
		return e.validateProxy()
	case StrategyConditional:
		if e.Conditional == nil {
			return &ConfigurationError{Field: "conditional", Message: "conditional strategy requires a conditional payload"}
		}
		if e.Static != nil || e.Proxy != nil {
			return &ConfigurationError{Field: "strategy", Message: "conditional strategy allows only the conditional payload"}
		}
		return e.validateConditional()
	case "":
		return &ConfigurationError{Field: "strategy", Message: "strategy is required"}
	default:
		return &ConfigurationError{Field: "strategy", Message: fmt.Sprintf("unknown strategy %q", e.Strategy)}
	}
}

func (e *Endpoint) validateStatic() error {
	s := e.Static
	if err := checkStatus("static.statusCode", s.StatusCode); err != nil {
		return err
	}
	if s.DelayMs < 0 {
		return &ConfigurationError{Field: "static.delayMs", Message: "delay must not be negative"}
	}
	return nil
}

func (e *Endpoint) validateProxy() error {
	p := e.Proxy
	if p.TargetURL == "" {
		return &ConfigurationError{Field: "proxy.targetUrl", Message: "target URL is required"}
	}
	if p.DelayMs < 0 {
		return &ConfigurationError{Field: "proxy.delayMs", Message: "delay must not be negative"}
	}
	return nil
}

func (e *Endpoint) validateConditional() error {
	c := e.Conditional
	for i, b := range c.Branches {
		field := fmt.Sprintf("conditional.branches[%d]", i)
		if b.Condition == "" {
			return &ConfigurationError{Field: field + ".condition", Message: "condition expression is required"}
		}
		switch b.Type {
		case BranchStatic:
			if err := checkStatus(field+".statusCode", b.StatusCode); err != nil {
				return err
			}
		case BranchProxy:
			if b.ProxyURL == "" {
				return &ConfigurationError{Field: field + ".proxyUrl", Message: "proxy branches require a proxy URL"}
			}
			// Branch headers are legal but ignored in proxy mode; the
			// original request's headers are forwarded unmodified.
		default:
			return &ConfigurationError{Field: field + ".type", Message: fmt.Sprintf("unknown branch type %q", b.Type)}
		}
		if b.DelayMs < 0 {
			return &ConfigurationError{Field: field + ".delayMs", Message: "delay must not be negative"}
		}
	}
	if err := checkStatus("conditional.default.statusCode", c.Default.StatusCode); err != nil {
		return err
	}
	if c.Default.DelayMs < 0 {
		return &ConfigurationError{Field: "conditional.default.delayMs", Message: "delay must not be negative"}
	}
	return nil
}

// checkStatus accepts 0 (meaning "use the engine default") or a code in
// the 100..599 range.
func checkStatus(field string, code int) error {
	if code == 0 {
		return nil
	}
	if code < 100 || code > 599 {
		return &ConfigurationError{Field: field, Message: fmt.Sprintf("status code %d out of range", code)}
	}
	return nil
}
