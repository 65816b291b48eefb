package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/stubd/stubd/pkg/config"
)

var validateVerbose bool

var validateCmd = &cobra.Command{
	Use:   "validate <file|glob>...",
	Short: "Validate endpoint definition files without starting a server",
	Long: `Validate endpoint definition files without starting a server.

Each file is schema-checked and semantically validated: path templates
must parse, methods must be known, and the declared strategy must carry
its settings. All files are checked even when an early one fails.`,
	Example: `  # Validate one file
  stubd validate mocks/users.yaml

  # Validate everything under mocks/
  stubd validate 'mocks/**/*.yaml'

  # Show the endpoints each file defines
  stubd validate --verbose mocks/users.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(args, validateVerbose)
	},
}

func init() {
	validateCmd.Flags().BoolVarP(&validateVerbose, "verbose", "v", false, "List the endpoints each file defines")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(patterns []string, verbose bool) error {
	files, err := expandPatterns(patterns)
	if err != nil {
		return err
	}

	var failures []string
	total := 0
	for _, file := range files {
		eps, err := config.LoadEndpointsFile(file)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		total += len(eps)
		if verbose {
			fmt.Printf("%s:\n", file)
			for _, ep := range eps {
				fmt.Printf("  %s %s (%s)\n", strings.Join(ep.Methods, ","), ep.PathTemplate, ep.Strategy)
			}
		} else {
			fmt.Printf("%s: %d endpoint(s)\n", file, len(eps))
		}
	}

	if len(failures) > 0 {
		fmt.Println("Validation failed:")
		for _, f := range failures {
			fmt.Printf("  - %s\n", f)
		}
		return fmt.Errorf("validation failed with %d error(s)", len(failures))
	}

	fmt.Printf("All definitions are valid (%d endpoints in %d files).\n", total, len(files))
	return nil
}

// expandPatterns resolves file arguments and glob patterns to a sorted
// file list. A pattern that matches nothing is an error; a plain path
// passes through and lets the loader report whether it exists.
func expandPatterns(patterns []string) ([]string, error) {
	var files []string
	for _, p := range patterns {
		if !strings.ContainsAny(p, "*?[") {
			files = append(files, p)
			continue
		}
		var matches []string
		var err error
		if strings.Contains(p, "**") {
			matches, err = doublestar.FilepathGlob(p)
		} else {
			matches, err = filepath.Glob(p)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", p)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}
