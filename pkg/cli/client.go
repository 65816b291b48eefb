package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stubd/stubd/pkg/api/types"
)

// APIError is an error response from the admin API.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// LogFilter narrows a request log query. Zero values mean no filter.
type LogFilter struct {
	EndpointID int64
	Method     string
	Path       string
	Status     int
	Limit      int
	Offset     int
}

// AdminClient is the admin API surface the CLI talks to.
type AdminClient interface {
	// GetLogs returns request log entries, newest first.
	GetLogs(filter *LogFilter) (*types.LogListResponse, error)

	// ClearLogs drops all retained entries and reports how many.
	ClearLogs() (int, error)
}

// adminClient is the HTTP implementation of AdminClient.
type adminClient struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures an adminClient.
type ClientOption func(*adminClient)

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *adminClient) {
		c.httpClient.Timeout = d
	}
}

// NewAdminClient creates a client for the admin API at baseURL.
func NewAdminClient(baseURL string, opts ...ClientOption) AdminClient {
	c := &adminClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetLogs returns request log entries with optional filtering.
func (c *adminClient) GetLogs(filter *LogFilter) (*types.LogListResponse, error) {
	path := "/logs"
	params := url.Values{}

	if filter != nil {
		if filter.EndpointID > 0 {
			params.Set("endpointId", fmt.Sprintf("%d", filter.EndpointID))
		}
		if filter.Method != "" {
			params.Set("method", filter.Method)
		}
		if filter.Path != "" {
			params.Set("path", filter.Path)
		}
		if filter.Status > 0 {
			params.Set("status", fmt.Sprintf("%d", filter.Status))
		}
		if filter.Limit > 0 {
			params.Set("limit", fmt.Sprintf("%d", filter.Limit))
		}
		if filter.Offset > 0 {
			params.Set("offset", fmt.Sprintf("%d", filter.Offset))
		}
	}

	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	resp, err := c.get(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result types.LogListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// ClearLogs deletes all request log entries.
func (c *adminClient) ClearLogs() (int, error) {
	resp, err := c.delete("/logs")
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, c.parseError(resp)
	}

	var result types.ClearLogsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}
	return result.Cleared, nil
}

// get performs an HTTP GET request.
func (c *adminClient) get(path string) (*http.Response, error) {
	return c.doRequest(http.MethodGet, path, nil)
}

// delete performs an HTTP DELETE request.
func (c *adminClient) delete(path string) (*http.Response, error) {
	return c.doRequest(http.MethodDelete, path, nil)
}

// doRequest performs an HTTP request.
func (c *adminClient) doRequest(method, path string, body []byte) (*http.Response, error) {
	fullURL := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{
			StatusCode: 0,
			ErrorCode:  "connection_error",
			Message:    fmt.Sprintf("cannot connect to admin API at %s: %v", c.baseURL, err),
		}
	}
	return resp, nil
}

// parseError parses an error response from the API.
func (c *adminClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp types.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorCode:  errResp.Error,
			Message:    errResp.Message,
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		ErrorCode:  "unknown_error",
		Message:    fmt.Sprintf("server returned status %d: %s", resp.StatusCode, string(body)),
	}
}

// FormatConnectionError returns a user-friendly message for connection
// failures and passes every other error through unchanged.
func FormatConnectionError(err error) string {
	if apiErr, ok := err.(*APIError); ok && apiErr.ErrorCode == "connection_error" {
		return fmt.Sprintf(`Error: %s

Suggestions:
  • Start the server: stubd serve
  • Check that the admin API is listening on the expected port
  • Point --admin at the right URL`, apiErr.Message)
	}
	return err.Error()
}
