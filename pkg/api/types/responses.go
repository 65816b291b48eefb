// Package types defines the wire types shared by the admin API and
// its clients, so the server handlers and the CLI decode the same
// shapes.
package types

import (
	"time"

	"github.com/stubd/stubd/pkg/endpoint"
	"github.com/stubd/stubd/pkg/requestlog"
)

// ErrorResponse is the error envelope every admin route uses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// HealthResponse answers the liveness probe.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime int    `json:"uptime,omitempty"`
}

// ServerStatus is the detailed status report. Uptime and MockPort
// describe the mock server when one is attached, otherwise the admin
// server itself.
type ServerStatus struct {
	Status          string    `json:"status"`
	MockPort        int       `json:"mockPort"`
	AdminPort       int       `json:"adminPort"`
	Uptime          int       `json:"uptime"`
	EndpointCount   int       `json:"endpointCount"`
	ActiveEndpoints int       `json:"activeEndpoints"`
	LogCount        int       `json:"logCount"`
	Version         string    `json:"version,omitempty"`
	StartedAt       time.Time `json:"startedAt,omitempty"`
}

// EndpointListResponse lists endpoints in registry order, id ascending.
type EndpointListResponse struct {
	Endpoints []*endpoint.Endpoint `json:"endpoints"`
	Count     int                  `json:"count"`
}

// LogListResponse lists request log entries, newest first. Total is
// the retained entry count before filtering.
type LogListResponse struct {
	Requests []*requestlog.Entry `json:"requests"`
	Count    int                 `json:"count"`
	Total    int                 `json:"total"`
}

// ClearLogsResponse reports how many entries a clear removed.
type ClearLogsResponse struct {
	Cleared int `json:"cleared"`
}

// ImportResponse reports the outcome of one document import. The
// endpoints carry the ids the registry assigned.
type ImportResponse struct {
	Format    string               `json:"format"`
	Imported  int                  `json:"imported"`
	Endpoints []*endpoint.Endpoint `json:"endpoints"`
}
