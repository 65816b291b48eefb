// Package validation checks endpoint definition documents against an
// embedded JSON Schema. It catches structural problems (wrong types,
// unknown fields, missing required keys) before the semantic checks in
// pkg/endpoint run.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// endpointSchema is the JSON Schema (draft 2020-12) for one endpoint
// definition, mirroring the endpoint.Endpoint wire shape.
const endpointSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://github.com/stubd/stubd/schemas/endpoint.json",
  "title": "stubd endpoint definition",
  "type": "object",
  "required": ["pathTemplate", "methods", "strategy"],
  "properties": {
    "id": {"type": "integer", "minimum": 0},
    "name": {"type": "string"},
    "protocol": {"enum": ["http", "soap"]},
    "pathTemplate": {"type": "string", "pattern": "^/"},
    "methods": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    },
    "strategy": {"enum": ["static", "proxy", "conditional"]},
    "active": {"type": "boolean"},
    "createdAt": {"type": "string"},
    "updatedAt": {"type": "string"},
    "static": {"$ref": "#/$defs/static"},
    "proxy": {"$ref": "#/$defs/proxy"},
    "conditional": {"$ref": "#/$defs/conditional"}
  },
  "additionalProperties": false,
  "$defs": {
    "headers": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "static": {
      "type": "object",
      "properties": {
        "statusCode": {"type": "integer"},
        "headers": {"$ref": "#/$defs/headers"},
        "body": {"type": "string"},
        "delayMs": {"type": "integer", "minimum": 0}
      },
      "additionalProperties": false
    },
    "proxy": {
      "type": "object",
      "required": ["targetUrl"],
      "properties": {
        "targetUrl": {"type": "string", "minLength": 1},
        "delayMs": {"type": "integer", "minimum": 0}
      },
      "additionalProperties": false
    },
    "branch": {
      "type": "object",
      "required": ["condition", "type"],
      "properties": {
        "condition": {"type": "string", "minLength": 1},
        "type": {"enum": ["static", "proxy"]},
        "body": {"type": "string"},
        "proxyUrl": {"type": "string"},
        "statusCode": {"type": "integer"},
        "headers": {"$ref": "#/$defs/headers"},
        "delayMs": {"type": "integer", "minimum": 0}
      },
      "additionalProperties": false
    },
    "default": {
      "type": "object",
      "properties": {
        "statusCode": {"type": "integer"},
        "body": {"type": "string"},
        "headers": {"$ref": "#/$defs/headers"},
        "delayMs": {"type": "integer", "minimum": 0}
      },
      "additionalProperties": false
    },
    "conditional": {
      "type": "object",
      "properties": {
        "prepareScript": {"type": "string"},
        "branches": {"type": "array", "items": {"$ref": "#/$defs/branch"}},
        "default": {"$ref": "#/$defs/default"}
      },
      "additionalProperties": false
    }
  }
}`

var (
	compiledSchema *jsonschema.Schema
	compileErr     error
	compileOnce    sync.Once
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("endpoint.json", strings.NewReader(endpointSchema)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("endpoint.json")
	})
	return compiledSchema, compileErr
}

// Error is one structural problem in a definition document. Path is
// the dot-notation location inside the document, empty at the root.
type Error struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Errors is every problem found in one document.
type Errors []*Error

func (e Errors) Error() string {
	if len(e) == 0 {
		return "invalid definition"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", e[0].Error(), len(e)-1)
}

// ValidateEndpoint checks one decoded endpoint definition against the
// schema. The value may come from encoding/json or yaml.v3; it is
// normalized through a JSON round-trip so both decoders validate
// identically. Returns Errors on failure.
func ValidateEndpoint(v any) error {
	s, err := schema()
	if err != nil {
		return err
	}

	norm, err := normalize(v)
	if err != nil {
		return fmt.Errorf("definition is not JSON-representable: %w", err)
	}

	if err := s.Validate(norm); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			var out Errors
			collectCauses(verr, &out)
			return out
		}
		return err
	}
	return nil
}

// ValidateEndpointJSON checks raw JSON bytes for one endpoint
// definition.
func ValidateEndpointJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return ValidateEndpoint(v)
}

// collectCauses flattens the validation error tree into leaf problems.
func collectCauses(err *jsonschema.ValidationError, out *Errors) {
	if len(err.Causes) == 0 {
		*out = append(*out, &Error{
			Path:    pointerToPath(err.InstanceLocation),
			Message: err.Message,
		})
		return
	}
	for _, cause := range err.Causes {
		collectCauses(cause, out)
	}
}

// pointerToPath converts a JSON Pointer to dot notation, so error
// messages read branches.0.condition rather than /branches/0/condition.
func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	return strings.ReplaceAll(ptr, "/", ".")
}

// normalize round-trips a value through JSON so schema validation sees
// the types encoding/json produces regardless of the source decoder.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
