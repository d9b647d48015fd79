// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dynamo-works/claude-engine/apikeys"
	"github.com/dynamo-works/claude-engine/catalog"
	"github.com/dynamo-works/claude-engine/storage"
)

// requireAdmin gates the key-management surface
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) *RequestContext {
	rc := GetRequestContext(r.Context())
	if rc.Role != catalog.RoleAdmin {
		writeError(w, rc.RequestID, NewAppError(CodeForbidden,
			"Admin role required", http.StatusForbidden))
		return nil
	}
	return rc
}

type createKeyRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// handleCreateAPIKey serves POST /v1/admin/api-keys. The response is the
// only place the raw key ever appears.
func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	rc := s.requireAdmin(w, r)
	if rc == nil {
		return
	}

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, rc.RequestID, NewAppError(CodeInvalidRequest, "Request body is not valid JSON", http.StatusBadRequest))
		return
	}
	if req.Email == "" {
		writeError(w, rc.RequestID, NewAppError(CodeInvalidRequest, "email is required", http.StatusBadRequest))
		return
	}
	if req.Role == "" {
		req.Role = catalog.DefaultRole
	}
	if !catalog.IsKnownRole(req.Role) {
		writeError(w, rc.RequestID, NewAppError(CodeInvalidRequest, "unknown role "+req.Role, http.StatusBadRequest))
		return
	}

	key, raw, err := s.apiKeys.Create(r.Context(), req.Email, req.Role)
	if err != nil {
		s.writeKeyError(w, rc.RequestID, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"apiKey": raw,
		"key":    key,
	})
}

// handleListAPIKeys serves GET /v1/admin/api-keys; only prefix hints leave
// the store
func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	rc := s.requireAdmin(w, r)
	if rc == nil {
		return
	}

	keys, err := s.apiKeys.List(r.Context())
	if err != nil {
		s.writeKeyError(w, rc.RequestID, err)
		return
	}
	if keys == nil {
		keys = []apikeys.APIKey{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"keys": keys})
}

// handleRevokeAPIKey serves DELETE /v1/admin/api-keys/{id}
func (s *Server) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	rc := s.requireAdmin(w, r)
	if rc == nil {
		return
	}

	changed, err := s.apiKeys.Revoke(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeKeyError(w, rc.RequestID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"revoked": changed})
}

// handleRotateAPIKey serves POST /v1/admin/api-keys/{id}/rotate
func (s *Server) handleRotateAPIKey(w http.ResponseWriter, r *http.Request) {
	rc := s.requireAdmin(w, r)
	if rc == nil {
		return
	}

	key, raw, err := s.apiKeys.Rotate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeKeyError(w, rc.RequestID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"apiKey": raw,
		"key":    key,
	})
}

// writeKeyError maps api-key service errors to the taxonomy
func (s *Server) writeKeyError(w http.ResponseWriter, requestID string, err error) {
	switch {
	case errors.Is(err, apikeys.ErrKeyNotFound):
		writeError(w, requestID, NewAppError(CodeNotFound, "API key not found", http.StatusNotFound))
	case errors.Is(err, apikeys.ErrInvalidEmail):
		writeError(w, requestID, NewAppError(CodeInvalidRequest, "invalid email address", http.StatusBadRequest))
	case errors.Is(err, storage.ErrNoDatabase):
		writeError(w, requestID, NewAppError(CodeInternalError,
			"API key management requires a configured database", http.StatusServiceUnavailable))
	default:
		writeError(w, requestID, err)
	}
}
