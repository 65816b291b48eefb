package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/stubd/stubd/pkg/endpoint"
	"github.com/stubd/stubd/pkg/validation"
)

// EndpointDocument is the collection shape for endpoint definition
// files. Loaders also accept a bare list of endpoints or a single
// endpoint object.
type EndpointDocument struct {
	Version   string               `json:"version,omitempty" yaml:"version,omitempty"`
	Name      string               `json:"name,omitempty" yaml:"name,omitempty"`
	Endpoints []*endpoint.Endpoint `json:"endpoints" yaml:"endpoints"`
}

// ParseEndpoints decodes one definition document. Every endpoint is
// schema-checked, normalized, and semantically validated; the first
// failing endpoint aborts the parse with its position in the error.
func ParseEndpoints(data []byte, yamlFormat bool) ([]*endpoint.Endpoint, error) {
	var doc any
	if yamlFormat {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
	} else {
		if !json.Valid(data) {
			return nil, ErrInvalidJSON
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	}

	raws, err := splitDocument(doc)
	if err != nil {
		return nil, err
	}

	eps := make([]*endpoint.Endpoint, 0, len(raws))
	for i, raw := range raws {
		if err := validation.ValidateEndpointJSON(raw); err != nil {
			return nil, fmt.Errorf("endpoint %d: %w", i+1, err)
		}
		var ep endpoint.Endpoint
		if err := json.Unmarshal(raw, &ep); err != nil {
			return nil, fmt.Errorf("endpoint %d: %w", i+1, err)
		}
		ep.Normalize()
		if err := ep.Validate(); err != nil {
			return nil, fmt.Errorf("endpoint %d: %w", i+1, err)
		}
		eps = append(eps, &ep)
	}
	return eps, nil
}

// splitDocument reduces the accepted document shapes to one raw JSON
// value per endpoint. YAML input has already been decoded to plain
// values, so re-marshaling through JSON is lossless here.
func splitDocument(doc any) ([]json.RawMessage, error) {
	switch t := doc.(type) {
	case []any:
		return marshalEach(t)
	case map[string]any:
		inner, ok := t["endpoints"]
		if !ok {
			return marshalEach([]any{t})
		}
		list, ok := inner.([]any)
		if !ok {
			return nil, errors.New("endpoints must be a list")
		}
		return marshalEach(list)
	case nil:
		return nil, ErrEmptyFile
	default:
		return nil, errors.New("definition must be an object or a list")
	}
}

func marshalEach(items []any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for i, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("endpoint %d: %w", i+1, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// LoadEndpointsFile reads and parses one definition file, format
// detected by extension.
func LoadEndpointsFile(path string) ([]*endpoint.Endpoint, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	eps, err := ParseEndpoints(data, isYAMLPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return eps, nil
}

// LoadEndpointsGlob loads every file matching the pattern, in sorted
// path order so ids assigned at registration are deterministic.
// Patterns containing ** recurse into subdirectories. A pattern that
// matches nothing returns an empty slice, not an error.
func LoadEndpointsGlob(pattern string) ([]*endpoint.Endpoint, error) {
	matches, err := expandGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("expanding glob pattern: %w", err)
	}
	sort.Strings(matches)

	var eps []*endpoint.Endpoint
	for _, match := range matches {
		fileEps, err := LoadEndpointsFile(match)
		if err != nil {
			return nil, err
		}
		eps = append(eps, fileEps...)
	}
	return eps, nil
}

func expandGlob(pattern string) ([]string, error) {
	if strings.Contains(pattern, "**") {
		return doublestar.FilepathGlob(pattern)
	}
	return filepath.Glob(pattern)
}

// SaveEndpointsFile writes a collection document, YAML or JSON by
// extension, using a temp file and rename so readers never observe a
// partial write.
func SaveEndpointsFile(path string, doc *EndpointDocument) error {
	if doc == nil {
		return errors.New("document cannot be nil")
	}
	if doc.Version == "" {
		doc.Version = "1"
	}

	var data []byte
	var err error
	if isYAMLPath(path) {
		data, err = yaml.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if !isYAMLPath(path) {
		data = append(data, '\n')
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temporary file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temporary file: %w", err)
	}
	return nil
}
