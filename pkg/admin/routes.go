package admin

import "net/http"

// registerRoutes wires all admin routes onto the mux using method
// patterns. Literal segments outrank wildcards, so /logs/stream wins
// over /logs/{id} regardless of registration order.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /endpoints", s.handleListEndpoints)
	mux.HandleFunc("POST /endpoints", s.handleCreateEndpoint)
	mux.HandleFunc("PUT /endpoints", s.handleReplaceEndpoints)
	mux.HandleFunc("GET /endpoints/{id}", s.handleGetEndpoint)
	mux.HandleFunc("PUT /endpoints/{id}", s.handleUpdateEndpoint)
	mux.HandleFunc("DELETE /endpoints/{id}", s.handleDeleteEndpoint)
	mux.HandleFunc("POST /endpoints/{id}/toggle", s.handleToggleEndpoint)

	mux.HandleFunc("POST /import/openapi", s.handleImportOpenAPI)
	mux.HandleFunc("POST /import/wsdl", s.handleImportWSDL)

	mux.HandleFunc("GET /logs", s.handleListLogs)
	mux.HandleFunc("DELETE /logs", s.handleClearLogs)
	mux.HandleFunc("GET /logs/{id}", s.handleGetLog)
	mux.HandleFunc("GET /logs/stream", s.handleStreamLogs)

	mux.HandleFunc("GET /ws/logs", s.handleWatchLogs)
	mux.HandleFunc("GET /ws/logs/{id}", s.handleWatchEndpointLogs)
}
