// Package cli implements the stubd command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Persistent flags available to all subcommands
	adminURL   string
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// DefaultAdminURL is where commands look for the admin API unless
// --admin points elsewhere.
const DefaultAdminURL = "http://localhost:7410"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stubd",
	Short: "stubd is a mock endpoint server for API development",
	Long: `stubd serves configurable mock endpoints over HTTP: static responses,
reverse-proxy forwards, and scripted conditional responses, matched by
path templates like /api/users/{id}.

A separate admin API manages endpoints and exposes the request log
while the server runs. Endpoint definitions load from YAML or JSON
files at startup and can be created, replaced, or removed at runtime.`,
	// No Run function here means 'stubd' with no args prints help text.
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Execute()
}

// Execute runs the command tree. This is called by main.main() and
// only needs to happen once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&adminURL, "admin", envAdminURL(), "Admin API base URL (env STUBD_ADMIN_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
}
