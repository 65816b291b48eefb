package admin

import (
	"net/http"

	"github.com/stubd/stubd/pkg/api/types"
	"github.com/stubd/stubd/pkg/endpoint"
	"github.com/stubd/stubd/pkg/httputil"
	"github.com/stubd/stubd/pkg/importer"
)

// handleImportOpenAPI handles POST /import/openapi. The body is the
// OpenAPI document itself, JSON or YAML.
func (s *Server) handleImportOpenAPI(w http.ResponseWriter, r *http.Request) {
	s.handleImport(w, r, importer.FormatOpenAPI, importer.FromOpenAPI)
}

// handleImportWSDL handles POST /import/wsdl. The body is the WSDL
// document itself.
func (s *Server) handleImportWSDL(w http.ResponseWriter, r *http.Request) {
	s.handleImport(w, r, importer.FormatWSDL, importer.FromWSDL)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, format string, convert func([]byte) ([]*endpoint.Endpoint, error)) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	if len(body) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "empty_body", "request body is empty")
		return
	}

	eps, err := convert(body)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "import_failed", err.Error())
		return
	}

	stored := make([]*endpoint.Endpoint, 0, len(eps))
	for _, ep := range eps {
		st, err := s.registry.Add(ep)
		if err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "registry_error", err.Error())
			return
		}
		stored = append(stored, st)
	}

	s.refreshEndpointGauges()
	s.log.Info("imported endpoints", "format", format, "count", len(stored))
	httputil.WriteJSON(w, http.StatusCreated, types.ImportResponse{
		Format:    format,
		Imported:  len(stored),
		Endpoints: stored,
	})
}
