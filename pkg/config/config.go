// Package config defines the server configuration and the loaders for
// configuration files and endpoint definition files.
package config

import (
	"errors"
	"fmt"
)

// Default ports for the two listening surfaces.
const (
	DefaultMockPort  = 7400
	DefaultAdminPort = 7410
)

// ServerConfiguration holds the runtime settings for both servers.
type ServerConfiguration struct {
	// MockPort is the mock traffic port. Zero picks an ephemeral port.
	MockPort int `json:"mockPort,omitempty" yaml:"mockPort,omitempty"`

	// AdminPort is the admin API port. Zero picks an ephemeral port.
	AdminPort int `json:"adminPort,omitempty" yaml:"adminPort,omitempty"`

	// Host is the bind address for both servers. Empty binds all
	// interfaces.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// ReadTimeout and WriteTimeout are HTTP timeouts in seconds.
	ReadTimeout  int `json:"readTimeout,omitempty" yaml:"readTimeout,omitempty"`
	WriteTimeout int `json:"writeTimeout,omitempty" yaml:"writeTimeout,omitempty"`

	// MaxBodySize caps inbound request bodies and recorded upstream
	// response bodies, in bytes.
	MaxBodySize int64 `json:"maxBodySize,omitempty" yaml:"maxBodySize,omitempty"`

	// MaxLogEntries is the request log retention cap.
	MaxLogEntries int `json:"maxLogEntries,omitempty" yaml:"maxLogEntries,omitempty"`

	// SandboxTimeoutMs is the wall-clock budget for one conditional
	// evaluation.
	SandboxTimeoutMs int `json:"sandboxTimeoutMs,omitempty" yaml:"sandboxTimeoutMs,omitempty"`

	// ProxyTimeoutSec is the outbound call timeout for proxy
	// endpoints.
	ProxyTimeoutSec int `json:"proxyTimeoutSec,omitempty" yaml:"proxyTimeoutSec,omitempty"`

	// LogFile is the request log sink path (JSON lines). Empty
	// disables the durable sink.
	LogFile string `json:"logFile,omitempty" yaml:"logFile,omitempty"`

	// Logging configures the operational logger.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// LoggingConfig selects the operational log level and format.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// DefaultServerConfiguration returns a configuration with the stock
// defaults.
func DefaultServerConfiguration() *ServerConfiguration {
	return &ServerConfiguration{
		MockPort:         DefaultMockPort,
		AdminPort:        DefaultAdminPort,
		ReadTimeout:      30,
		WriteTimeout:     30,
		MaxBodySize:      10 * 1024 * 1024, // 10MB
		MaxLogEntries:    1000,
		SandboxTimeoutMs: 200,
		ProxyTimeoutSec:  30,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports the first problem with the configuration.
func (c *ServerConfiguration) Validate() error {
	if c.MockPort < 0 || c.MockPort > 65535 {
		return fmt.Errorf("mockPort out of range: %d", c.MockPort)
	}
	if c.AdminPort < 0 || c.AdminPort > 65535 {
		return fmt.Errorf("adminPort out of range: %d", c.AdminPort)
	}
	if c.MockPort != 0 && c.MockPort == c.AdminPort {
		return errors.New("mockPort and adminPort must differ")
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("readTimeout cannot be negative: %d", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("writeTimeout cannot be negative: %d", c.WriteTimeout)
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("maxBodySize cannot be negative: %d", c.MaxBodySize)
	}
	if c.MaxLogEntries < 0 {
		return fmt.Errorf("maxLogEntries cannot be negative: %d", c.MaxLogEntries)
	}
	if c.SandboxTimeoutMs < 0 {
		return fmt.Errorf("sandboxTimeoutMs cannot be negative: %d", c.SandboxTimeoutMs)
	}
	if c.ProxyTimeoutSec < 0 {
		return fmt.Errorf("proxyTimeoutSec cannot be negative: %d", c.ProxyTimeoutSec)
	}
	return nil
}
