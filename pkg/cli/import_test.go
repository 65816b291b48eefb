package cli

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stubd/stubd/pkg/config"
	"github.com/stubd/stubd/pkg/endpoint"
	"github.com/stubd/stubd/pkg/importer"
)

const petstoreOpenAPI = `openapi: 3.0.3
info:
  title: Petstore
  version: 1.0.0
paths:
  /pets:
    get:
      summary: List pets
      responses:
        '200':
          description: OK
          content:
            application/json:
              example:
                - id: 1
                  name: Rex
  /pets/{petId}:
    parameters:
      - name: petId
        in: path
        required: true
        schema:
          type: string
    get:
      responses:
        '200':
          description: OK
`

const weatherWSDL = `<?xml version="1.0" encoding="UTF-8"?>
<definitions name="Weather"
    xmlns="http://schemas.xmlsoap.org/wsdl/"
    xmlns:tns="http://example.com/weather"
    xmlns:soap="http://schemas.xmlsoap.org/wsdl/soap/">
  <message name="GetForecastIn"/>
  <message name="GetForecastOut"/>
  <portType name="WeatherPort">
    <operation name="GetForecast">
      <input message="tns:GetForecastIn"/>
      <output message="tns:GetForecastOut"/>
    </operation>
  </portType>
  <binding name="WeatherBinding" type="tns:WeatherPort">
    <soap:binding style="document" transport="http://schemas.xmlsoap.org/soap/http"/>
  </binding>
  <service name="WeatherService">
    <port name="WeatherSoapPort" binding="tns:WeatherBinding">
      <soap:address location="http://localhost:9090/soap/weather"/>
    </port>
  </service>
</definitions>`

func TestImportOpenAPIFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeDefinition(t, dir, "petstore.yaml", petstoreOpenAPI)
	out := filepath.Join(dir, "mocks.yaml")

	require.NoError(t, runImport("openapi", in, out))

	eps, err := config.LoadEndpointsFile(out)
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, "/pets", eps[0].PathTemplate)
	assert.Equal(t, "List pets", eps[0].Name)
	assert.Equal(t, endpoint.StrategyStatic, eps[0].Strategy)
	assert.Equal(t, "/pets/{petId}", eps[1].PathTemplate)
}

func TestImportWSDLFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeDefinition(t, dir, "weather.wsdl", weatherWSDL)
	out := filepath.Join(dir, "weather.yaml")

	require.NoError(t, runImport("wsdl", in, out))

	eps, err := config.LoadEndpointsFile(out)
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "GetForecast", eps[0].Name)
	assert.Equal(t, "/soap/weather", eps[0].PathTemplate)
	assert.Equal(t, endpoint.ProtocolSOAP, eps[0].Protocol)
	assert.Equal(t, []string{"POST"}, eps[0].Methods)
}

func TestImportUnknownFormat(t *testing.T) {
	t.Parallel()

	in := writeDefinition(t, t.TempDir(), "spec.yaml", petstoreOpenAPI)
	err := runImport("grpc", in, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown import format "grpc"`)
}

func TestImportMissingFile(t *testing.T) {
	t.Parallel()

	err := runImport("openapi", filepath.Join(t.TempDir(), "absent.yaml"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading")
}

func TestImportInvalidDocument(t *testing.T) {
	t.Parallel()

	in := writeDefinition(t, t.TempDir(), "junk.json", `{"random": "data"}`)
	err := runImport("openapi", in, "")
	require.Error(t, err)

	var impErr *importer.Error
	require.True(t, errors.As(err, &impErr))
	assert.Equal(t, importer.FormatOpenAPI, impErr.Format)
}

func TestImportEmptyDocument(t *testing.T) {
	t.Parallel()

	in := writeDefinition(t, t.TempDir(), "empty.yaml", `openapi: 3.0.3
info:
  title: Empty
  version: 1.0.0
paths: {}
`)
	err := runImport("openapi", in, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defines no operations")
}

func TestImportPrintsToStdout(t *testing.T) {
	in := writeDefinition(t, t.TempDir(), "petstore.yaml", petstoreOpenAPI)
	out, err := captureStdout(t, func() error {
		return runImport("openapi", in, "")
	})
	require.NoError(t, err)
	assert.Contains(t, out, "pathTemplate: /pets")
	assert.Contains(t, out, "strategy: static")
}
