package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stubd/stubd/pkg/config"
	"github.com/stubd/stubd/pkg/endpoint"
	"github.com/stubd/stubd/pkg/importer"
)

var importOutput string

var importCmd = &cobra.Command{
	Use:   "import <openapi|wsdl> <file>",
	Short: "Convert an API description into endpoint definitions",
	Long: `Convert an API description into endpoint definitions.

OpenAPI 3 documents produce one static endpoint per operation, with the
documented example as the response body when one exists. WSDL documents
produce one SOAP endpoint per operation.

The result is an endpoint definition file the server can load with
--endpoints, written to the file named by -o or to stdout.`,
	Example: `  # Convert an OpenAPI spec
  stubd import openapi petstore.yaml -o mocks/petstore.yaml

  # Convert a WSDL document
  stubd import wsdl calculator.wsdl -o mocks/calculator.yaml

  # Inspect the result first
  stubd import openapi petstore.yaml`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(args[0], args[1], importOutput)
	},
}

func init() {
	importCmd.Flags().StringVarP(&importOutput, "output", "o", "", "Output file (YAML or JSON by extension, default stdout)")
	rootCmd.AddCommand(importCmd)
}

func runImport(format, file, output string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading %s: %w", file, err)
	}

	var eps []*endpoint.Endpoint
	switch format {
	case importer.FormatOpenAPI:
		eps, err = importer.FromOpenAPI(data)
	case importer.FormatWSDL:
		eps, err = importer.FromWSDL(data)
	default:
		return fmt.Errorf("unknown import format %q: must be openapi or wsdl", format)
	}
	if err != nil {
		return err
	}
	if len(eps) == 0 {
		return fmt.Errorf("%s defines no operations to import", file)
	}

	doc := &config.EndpointDocument{
		Version:   "1",
		Endpoints: eps,
	}

	if output == "" {
		out, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	if err := config.SaveEndpointsFile(output, doc); err != nil {
		return err
	}
	fmt.Printf("Imported %d endpoint(s) from %s\n", len(eps), file)
	fmt.Printf("Wrote %s\n", output)
	return nil
}
