package cli

import (
	"os"
	"strconv"

	"github.com/stubd/stubd/pkg/config"
)

// Environment variables recognized by the CLI. Flags win over
// environment values, which win over the configuration file.
const (
	EnvAdminURL      = "STUBD_ADMIN_URL"
	EnvConfig        = "STUBD_CONFIG"
	EnvPort          = "STUBD_PORT"
	EnvAdminPort     = "STUBD_ADMIN_PORT"
	EnvMaxLogEntries = "STUBD_MAX_LOG_ENTRIES"
	EnvLogLevel      = "STUBD_LOG_LEVEL"
	EnvLogFormat     = "STUBD_LOG_FORMAT"
)

// envAdminURL returns the admin URL from the environment, or the
// built-in default when unset.
func envAdminURL() string {
	if v := os.Getenv(EnvAdminURL); v != "" {
		return v
	}
	return DefaultAdminURL
}

// applyEnvConfig overlays STUBD_* values onto cfg. Values that do not
// parse are ignored, the same as unset ones.
func applyEnvConfig(cfg *config.ServerConfiguration) {
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MockPort = port
		}
	}
	if v := os.Getenv(EnvAdminPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.AdminPort = port
		}
	}
	if v := os.Getenv(EnvMaxLogEntries); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxLogEntries = n
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
}
