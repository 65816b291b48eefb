package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/stubd/stubd/pkg/endpoint"
)

// preferredStatuses is the probe order for picking the response an
// operation is mocked with.
var preferredStatuses = []string{"200", "201", "202", "204"}

// FromOpenAPI converts an OpenAPI 3 document (JSON or YAML) into static
// endpoint definitions, one per operation. OpenAPI {param} path syntax
// is the same syntax the path matcher uses, so paths carry over
// unchanged. The response body comes from the chosen response's example
// when it has one, otherwise the endpoint answers with an empty body
// and the documented status.
func FromOpenAPI(data []byte) ([]*endpoint.Endpoint, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, &Error{Format: FormatOpenAPI, Message: "failed to parse document", Cause: err}
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, &Error{Format: FormatOpenAPI, Message: "not a valid OpenAPI 3 document", Cause: err}
	}
	if doc.Paths == nil {
		return nil, nil
	}

	pathItems := doc.Paths.Map()
	paths := make([]string, 0, len(pathItems))
	for p := range pathItems {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var endpoints []*endpoint.Endpoint
	for _, path := range paths {
		item := pathItems[path]
		if item == nil {
			continue
		}
		operations := []struct {
			method string
			op     *openapi3.Operation
		}{
			{http.MethodGet, item.Get},
			{http.MethodPost, item.Post},
			{http.MethodPut, item.Put},
			{http.MethodDelete, item.Delete},
			{http.MethodPatch, item.Patch},
			{http.MethodHead, item.Head},
			{http.MethodOptions, item.Options},
		}
		for _, entry := range operations {
			if entry.op == nil {
				continue
			}
			ep := operationEndpoint(entry.method, path, entry.op)
			ep.Normalize()
			if err := ep.Validate(); err != nil {
				return nil, &Error{
					Format:  FormatOpenAPI,
					Message: fmt.Sprintf("operation %s %s produced an invalid endpoint", entry.method, path),
					Cause:   err,
				}
			}
			endpoints = append(endpoints, ep)
		}
	}
	return endpoints, nil
}

func operationEndpoint(method, path string, op *openapi3.Operation) *endpoint.Endpoint {
	status, body, mediaType := bestResponse(op)
	static := &endpoint.StaticResponse{StatusCode: status, Body: body}
	if body != "" && mediaType != "" {
		static.Headers = map[string]string{"Content-Type": mediaType}
	}
	return &endpoint.Endpoint{
		Name:         operationName(method, path, op),
		PathTemplate: path,
		Methods:      []string{method},
		Strategy:     endpoint.StrategyStatic,
		Static:       static,
	}
}

// operationName prefers the summary, then the operation id, then a
// method-and-path label.
func operationName(method, path string, op *openapi3.Operation) string {
	if s := strings.TrimSpace(op.Summary); s != "" {
		return s
	}
	if op.OperationID != "" {
		return op.OperationID
	}
	return method + " " + path
}

// bestResponse picks the response an operation is mocked with: the
// first preferred success code, then any other 2xx, then the lowest
// remaining key. It returns the numeric status plus the example body
// and media type when the chosen response carries an example.
func bestResponse(op *openapi3.Operation) (int, string, string) {
	if op.Responses == nil || op.Responses.Len() == 0 {
		return http.StatusOK, "", ""
	}
	responses := op.Responses.Map()

	code := ""
	for _, preferred := range preferredStatuses {
		if responses[preferred] != nil {
			code = preferred
			break
		}
	}
	if code == "" {
		codes := make([]string, 0, len(responses))
		for c := range responses {
			codes = append(codes, c)
		}
		sort.Strings(codes)
		for _, c := range codes {
			if strings.HasPrefix(c, "2") {
				code = c
				break
			}
		}
		if code == "" {
			code = codes[0]
		}
	}

	body, mediaType := exampleBody(responses[code])
	return parseStatusCode(code), body, mediaType
}

// parseStatusCode converts a responses map key to an HTTP status,
// defaulting to 200 for "default" and range keys like "2XX".
func parseStatusCode(code string) int {
	n, err := strconv.Atoi(code)
	if err != nil || n < 100 || n > 599 {
		return http.StatusOK
	}
	return n
}

// exampleBody extracts an example payload from a response. The media
// example wins over named examples, which win over the schema example,
// and application/json is probed before other media types.
func exampleBody(ref *openapi3.ResponseRef) (string, string) {
	if ref == nil || ref.Value == nil || len(ref.Value.Content) == 0 {
		return "", ""
	}
	content := ref.Value.Content

	mediaTypes := make([]string, 0, len(content))
	for mt := range content {
		if mt != "application/json" {
			mediaTypes = append(mediaTypes, mt)
		}
	}
	sort.Strings(mediaTypes)
	if content["application/json"] != nil {
		mediaTypes = append([]string{"application/json"}, mediaTypes...)
	}

	for _, mt := range mediaTypes {
		media := content[mt]
		if media == nil {
			continue
		}
		if value, ok := exampleValue(media); ok {
			return renderExample(value, mt), mt
		}
	}
	return "", ""
}

func exampleValue(media *openapi3.MediaType) (any, bool) {
	if media.Example != nil {
		return media.Example, true
	}
	if len(media.Examples) > 0 {
		names := make([]string, 0, len(media.Examples))
		for name := range media.Examples {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if ex := media.Examples[name]; ex != nil && ex.Value != nil && ex.Value.Value != nil {
				return ex.Value.Value, true
			}
		}
	}
	if media.Schema != nil && media.Schema.Value != nil && media.Schema.Value.Example != nil {
		return media.Schema.Value.Example, true
	}
	return nil, false
}

// renderExample serializes an example value for the response body.
// Plain strings under non-JSON media types pass through as-is;
// everything else marshals to JSON.
func renderExample(value any, mediaType string) string {
	if s, ok := value.(string); ok && !isJSONMediaType(mediaType) {
		return s
	}
	b, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(b)
}

func isJSONMediaType(mt string) bool {
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
