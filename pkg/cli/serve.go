package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stubd/stubd/pkg/admin"
	"github.com/stubd/stubd/pkg/config"
	"github.com/stubd/stubd/pkg/engine"
	"github.com/stubd/stubd/pkg/logging"
	"github.com/stubd/stubd/pkg/requestlog"
)

// serveFlags holds all flag values for the serve command.
type serveFlags struct {
	configFile    string
	endpoints     string
	port          int
	adminPort     int
	host          string
	maxLogEntries int
	logLevel      string
	logFormat     string
	logFile       string
}

var serveOpts serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mock and admin servers",
	Long: `Start the mock server and the admin API, load endpoint definition
files, and run until interrupted.

Flags override STUBD_* environment variables, which override the
configuration file. Endpoint files are YAML or JSON; a glob pattern
with ** recurses into subdirectories.`,
	Example: `  # Start with defaults (mock on :7400, admin on :7410)
  stubd serve

  # Load endpoint definitions
  stubd serve --endpoints 'mocks/**/*.yaml'

  # Custom ports and a configuration file
  stubd serve --config stubd.yaml --port 3000 --admin-port 3010

  # Persist the request log as JSON lines
  stubd serve --log-file requests.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, &serveOpts)
	},
}

func init() {
	registerServeFlags(serveCmd, &serveOpts)
	rootCmd.AddCommand(serveCmd)
}

func registerServeFlags(cmd *cobra.Command, f *serveFlags) {
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Server configuration file (YAML or JSON)")
	cmd.Flags().StringVarP(&f.endpoints, "endpoints", "e", "", "Endpoint definition files (path or glob)")
	cmd.Flags().IntVarP(&f.port, "port", "p", config.DefaultMockPort, "Mock server port")
	cmd.Flags().IntVarP(&f.adminPort, "admin-port", "a", config.DefaultAdminPort, "Admin API port")
	cmd.Flags().StringVar(&f.host, "host", "", "Bind address for both servers (default all interfaces)")
	cmd.Flags().IntVar(&f.maxLogEntries, "max-log-entries", 0, "Request log retention cap")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, or error")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "Log format: text or json")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "Request log sink path (JSON lines)")
}

func runServe(cmd *cobra.Command, f *serveFlags) error {
	if err := validateServeFlags(f); err != nil {
		return err
	}

	cfg, err := buildServeConfig(cmd, f)
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: logging.ParseFormat(cfg.Logging.Format),
	})

	engineOpts := []engine.ServerOption{engine.WithLogger(log)}
	var sink *requestlog.FileSink
	if cfg.LogFile != "" {
		sink, err = requestlog.NewFileSink(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("opening request log file: %w", err)
		}
		engineOpts = append(engineOpts, engine.WithSink(sink))
	}

	eng := engine.NewServer(cfg, engineOpts...)
	if err := eng.Start(); err != nil {
		if isAddrInUseError(err) {
			return fmt.Errorf("port %d is already in use. Try a different port with --port or check what's using it: lsof -i :%d", cfg.MockPort, cfg.MockPort)
		}
		return fmt.Errorf("starting mock server: %w", err)
	}

	adm := admin.NewServer(cfg,
		admin.WithEngine(eng),
		admin.WithVersion(Version),
		admin.WithLogger(log),
	)
	if err := adm.Start(); err != nil {
		_ = eng.Stop()
		if isAddrInUseError(err) {
			return fmt.Errorf("admin port %d is already in use. Try a different port with --admin-port or check what's using it: lsof -i :%d", cfg.AdminPort, cfg.AdminPort)
		}
		return fmt.Errorf("starting admin API: %w", err)
	}

	loaded := 0
	if f.endpoints != "" {
		eps, err := config.LoadEndpointsGlob(f.endpoints)
		if err != nil {
			_ = adm.Stop()
			_ = eng.Stop()
			return err
		}
		for _, ep := range eps {
			if _, err := eng.Registry().Add(ep); err != nil {
				_ = adm.Stop()
				_ = eng.Stop()
				return fmt.Errorf("registering %s: %w", ep.PathTemplate, err)
			}
		}
		loaded = len(eps)
	}

	printStartupMessage(eng.Port(), adm.Port(), loaded)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	fmt.Println("\nShutting down...")

	// Admin first so log feeds close before the engine stops logging.
	if err := adm.Stop(); err != nil {
		warnf("admin API shutdown error: %v", err)
	}
	if err := eng.Stop(); err != nil {
		warnf("mock server shutdown error: %v", err)
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			warnf("request log close error: %v", err)
		}
	}

	fmt.Println("Server stopped")
	return nil
}

// validateServeFlags checks flag values before any server starts.
func validateServeFlags(f *serveFlags) error {
	if f.port < 0 || f.port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 0 and 65535", f.port)
	}
	if f.adminPort < 0 || f.adminPort > 65535 {
		return fmt.Errorf("invalid admin port %d: must be between 0 and 65535", f.adminPort)
	}
	if f.maxLogEntries < 0 {
		return fmt.Errorf("invalid max log entries %d: cannot be negative", f.maxLogEntries)
	}
	switch f.logLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", f.logLevel)
	}
	switch f.logFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", f.logFormat)
	}
	return nil
}

// buildServeConfig loads the configuration file, if any, then layers
// STUBD_* environment values and explicit flags on top, in that
// order. Flags left at their defaults do not override file values.
func buildServeConfig(cmd *cobra.Command, f *serveFlags) (*config.ServerConfiguration, error) {
	configFile := f.configFile
	if configFile == "" {
		configFile = os.Getenv(EnvConfig)
	}

	cfg := config.DefaultServerConfiguration()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvConfig(cfg)

	if cmd.Flags().Changed("port") {
		cfg.MockPort = f.port
	}
	if cmd.Flags().Changed("admin-port") {
		cfg.AdminPort = f.adminPort
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = f.host
	}
	if cmd.Flags().Changed("max-log-entries") {
		cfg.MaxLogEntries = f.maxLogEntries
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}
	if f.logFile != "" {
		cfg.LogFile = f.logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printStartupMessage(mockPort, adminPort, loaded int) {
	if loaded == 0 {
		printWelcomeMessage(mockPort, adminPort)
		return
	}

	fmt.Printf("stubd server started (%d endpoints)\n", loaded)
	fmt.Println()
	fmt.Printf("  Mock server: http://localhost:%d\n", mockPort)
	fmt.Printf("  Admin API:   http://localhost:%d\n", adminPort)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
}

// printWelcomeMessage prints quick-start hints when no endpoints are
// loaded.
func printWelcomeMessage(mockPort, adminPort int) {
	fmt.Println("stubd server started")
	fmt.Println()
	fmt.Printf("  Mock server: http://localhost:%d\n", mockPort)
	fmt.Printf("  Admin API:   http://localhost:%d\n", adminPort)
	fmt.Println()
	fmt.Println("No endpoints configured. Quick start options:")
	fmt.Println()
	fmt.Println("  # Scaffold an endpoint definition file")
	fmt.Println("  stubd create -o mocks/hello.yaml")
	fmt.Println()
	fmt.Println("  # Start with endpoint files")
	fmt.Println("  stubd serve --endpoints 'mocks/**/*.yaml'")
	fmt.Println()
	fmt.Printf("  # Or register one directly\n")
	fmt.Printf("  curl -X POST http://localhost:%d/endpoints -d '{\"pathTemplate\": \"/hello\", \"methods\": [\"GET\"], \"strategy\": \"static\", \"static\": {\"statusCode\": 200, \"body\": \"{\\\"message\\\": \\\"Hello!\\\"}\"}}'\n", adminPort)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
}

// isAddrInUseError reports whether err is a failed bind on a port
// something else holds.
func isAddrInUseError(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}
