package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stubd/stubd/internal/registry"
	"github.com/stubd/stubd/pkg/api/types"
	"github.com/stubd/stubd/pkg/config"
	"github.com/stubd/stubd/pkg/endpoint"
	"github.com/stubd/stubd/pkg/httputil"
	"github.com/stubd/stubd/pkg/validation"
)

// decodeEndpoint turns a request body into one validated endpoint:
// schema check first, then decode, normalize, and semantic checks.
// Imports and file loads run the same gate, so an endpoint that made
// it into the registry is well formed no matter how it arrived.
func decodeEndpoint(body []byte) (*endpoint.Endpoint, error) {
	if err := validation.ValidateEndpointJSON(body); err != nil {
		return nil, err
	}
	var ep endpoint.Endpoint
	if err := json.Unmarshal(body, &ep); err != nil {
		return nil, err
	}
	ep.Normalize()
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	return &ep, nil
}

// writeEndpointError maps a decode failure onto the wire. Schema
// problems carry their per-field detail.
func writeEndpointError(w http.ResponseWriter, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		httputil.WriteErrorWithDetails(w, http.StatusBadRequest, "invalid_endpoint", verrs.Error(), verrs)
		return
	}
	httputil.WriteError(w, http.StatusBadRequest, "invalid_endpoint", err.Error())
}

// handleListEndpoints handles GET /endpoints.
func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	eps := s.registry.Snapshot().All()
	httputil.WriteJSON(w, http.StatusOK, types.EndpointListResponse{
		Endpoints: eps,
		Count:     len(eps),
	})
}

// handleCreateEndpoint handles POST /endpoints.
func (s *Server) handleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	ep, err := decodeEndpoint(body)
	if err != nil {
		writeEndpointError(w, err)
		return
	}

	stored, err := s.registry.Add(ep)
	if err != nil {
		if errors.Is(err, registry.ErrDuplicateID) {
			httputil.WriteError(w, http.StatusConflict, "duplicate_id", err.Error())
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "registry_error", err.Error())
		return
	}

	s.refreshEndpointGauges()
	s.log.Info("endpoint created", "id", stored.ID, "path", stored.PathTemplate)
	httputil.WriteJSON(w, http.StatusCreated, stored)
}

// handleReplaceEndpoints handles PUT /endpoints: the whole set is
// swapped for the endpoints in the body, which may be a collection
// document or a bare list.
func (s *Server) handleReplaceEndpoints(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	eps, err := config.ParseEndpoints(body, false)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_endpoint", err.Error())
		return
	}

	if err := s.registry.Replace(eps); err != nil {
		if errors.Is(err, registry.ErrDuplicateID) {
			httputil.WriteError(w, http.StatusConflict, "duplicate_id", err.Error())
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "registry_error", err.Error())
		return
	}

	stored := s.registry.Snapshot().All()
	s.refreshEndpointGauges()
	s.log.Info("endpoints replaced", "count", len(stored))
	httputil.WriteJSON(w, http.StatusOK, types.EndpointListResponse{
		Endpoints: stored,
		Count:     len(stored),
	})
}

// handleGetEndpoint handles GET /endpoints/{id}.
func (s *Server) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	ep, ok := s.registry.Get(id)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "not_found", "endpoint not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ep)
}

// handleUpdateEndpoint handles PUT /endpoints/{id}.
func (s *Server) handleUpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	body, err := s.readBody(w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	ep, err := decodeEndpoint(body)
	if err != nil {
		writeEndpointError(w, err)
		return
	}

	stored, err := s.registry.Update(id, ep)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "not_found", "endpoint not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "registry_error", err.Error())
		return
	}

	s.refreshEndpointGauges()
	s.log.Info("endpoint updated", "id", id)
	httputil.WriteJSON(w, http.StatusOK, stored)
}

// handleDeleteEndpoint handles DELETE /endpoints/{id}.
func (s *Server) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	if err := s.registry.Remove(id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "not_found", "endpoint not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "registry_error", err.Error())
		return
	}

	s.refreshEndpointGauges()
	s.log.Info("endpoint deleted", "id", id)
	httputil.WriteNoContent(w)
}

// handleToggleEndpoint handles POST /endpoints/{id}/toggle, flipping
// the endpoint's active state.
func (s *Server) handleToggleEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	ep, ok := s.registry.Get(id)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "not_found", "endpoint not found")
		return
	}

	stored, err := s.registry.SetActive(id, !ep.IsActive())
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "not_found", "endpoint not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "registry_error", err.Error())
		return
	}

	s.refreshEndpointGauges()
	s.log.Info("endpoint toggled", "id", id, "active", stored.IsActive())
	httputil.WriteJSON(w, http.StatusOK, stored)
}
