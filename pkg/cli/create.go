package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stubd/stubd/pkg/config"
	"github.com/stubd/stubd/pkg/endpoint"
)

// createFlags holds all flag values for the create command.
type createFlags struct {
	path   string
	method string
	status int
	body   string
	target string
	name   string
	output string
}

var createOpts createFlags

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an endpoint definition file",
	Long: `Create an endpoint definition and write it as YAML.

With no flags the command walks through an interactive form. Passing
--path skips the form and builds the endpoint from flags alone, which
suits scripts. The result goes to the file named by -o, or to stdout.`,
	Example: `  # Interactive form
  stubd create

  # Non-interactive static endpoint
  stubd create --path '/api/users/{id}' --status 200 --body '{"id": 1}' -o mocks/users.yaml

  # Non-interactive proxy endpoint
  stubd create --path '/api/search' --target https://upstream.example.com -o mocks/search.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Flags intentionally omitted means the user wants the form.
		if !cmd.Flags().Changed("path") {
			if err := promptEndpointForm(&createOpts); err != nil {
				return err
			}
		}
		return runCreate(&createOpts)
	},
}

func init() {
	f := &createOpts
	createCmd.Flags().StringVar(&f.path, "path", "", "Path template to match (e.g. /api/users/{id})")
	createCmd.Flags().StringVar(&f.method, "method", "GET", "HTTP method to match")
	createCmd.Flags().IntVar(&f.status, "status", 200, "Response status code")
	createCmd.Flags().StringVar(&f.body, "body", "", "Response body")
	createCmd.Flags().StringVar(&f.target, "target", "", "Proxy target URL (switches the strategy to proxy)")
	createCmd.Flags().StringVar(&f.name, "name", "", "Endpoint display name")
	createCmd.Flags().StringVarP(&f.output, "output", "o", "", "Output file (YAML or JSON by extension, default stdout)")
	rootCmd.AddCommand(createCmd)
}

// promptEndpointForm fills f from interactive prompts. The strategy
// question decides which follow-up form runs.
func promptEndpointForm(f *createFlags) error {
	strategy := endpoint.StrategyStatic
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("What path template should it match?").
				Placeholder("/api/users/{id}").
				Value(&f.path).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("path template is required")
					}
					if !strings.HasPrefix(s, "/") {
						return errors.New("path template must start with /")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("What HTTP method should it respond to?").
				Options(
					huh.NewOption("GET", "GET"),
					huh.NewOption("POST", "POST"),
					huh.NewOption("PUT", "PUT"),
					huh.NewOption("DELETE", "DELETE"),
					huh.NewOption("PATCH", "PATCH"),
				).
				Value(&f.method),
			huh.NewSelect[string]().
				Title("How should it respond?").
				Options(
					huh.NewOption("Static response", endpoint.StrategyStatic),
					huh.NewOption("Proxy to an upstream", endpoint.StrategyProxy),
				).
				Value(&strategy),
			huh.NewInput().
				Title("Endpoint name (optional)").
				Placeholder("get user").
				Value(&f.name),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if strategy == endpoint.StrategyProxy {
		return huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Where should requests be forwarded?").
					Placeholder("https://upstream.example.com/api/users/{id}").
					Value(&f.target).
					Validate(func(s string) error {
						if s == "" {
							return errors.New("target URL is required")
						}
						return nil
					}),
			),
		).Run()
	}

	statusStr := strconv.Itoa(f.status)
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("What status code should it return?").
				Value(&statusStr).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 100 || n > 599 {
						return errors.New("enter a status code between 100 and 599")
					}
					return nil
				}),
			huh.NewText().
				Title("Response body (JSON)").
				Placeholder(`{"status": "ok"}`).
				Value(&f.body),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	f.status, _ = strconv.Atoi(statusStr)
	return nil
}

func runCreate(f *createFlags) error {
	ep := buildEndpoint(f)
	ep.Normalize()
	if err := ep.Validate(); err != nil {
		return err
	}

	doc := &config.EndpointDocument{
		Version:   "1",
		Endpoints: []*endpoint.Endpoint{ep},
	}

	if f.output == "" {
		data, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		fmt.Print(string(data))
		return nil
	}

	if err := config.SaveEndpointsFile(f.output, doc); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", f.output)
	fmt.Println()
	fmt.Printf("Serve it with: stubd serve --endpoints %s\n", f.output)
	return nil
}

// buildEndpoint turns flag values into an endpoint definition. A
// target URL selects the proxy strategy, anything else is static.
func buildEndpoint(f *createFlags) *endpoint.Endpoint {
	ep := &endpoint.Endpoint{
		Name:         f.name,
		PathTemplate: f.path,
		Methods:      []string{f.method},
	}
	if f.target != "" {
		ep.Strategy = endpoint.StrategyProxy
		ep.Proxy = &endpoint.ProxySettings{TargetURL: f.target}
		return ep
	}
	ep.Strategy = endpoint.StrategyStatic
	ep.Static = &endpoint.StaticResponse{
		StatusCode: f.status,
		Body:       f.body,
	}
	return ep
}
