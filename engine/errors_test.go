// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynamo-works/claude-engine/engine/upstream"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["error"]
}

func TestWriteError_AppError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, "req-1", NewAppError(CodeBudgetExceeded, "over budget", http.StatusTooManyRequests))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "budget_exceeded", body["code"])
	assert.Equal(t, "over budget", body["message"])
	assert.Equal(t, "rate_limit_error", body["type"])
	assert.Equal(t, "req-1", body["requestId"])
}

func TestWriteError_UpstreamClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        *upstream.APIError
		wantCode   string
		wantStatus int
	}{
		{"auth", &upstream.APIError{StatusCode: 401, Type: "authentication_error"}, CodeUpstreamAuthError, http.StatusBadGateway},
		{"rate limit", &upstream.APIError{StatusCode: 429, Type: "rate_limit_error"}, CodeRateLimited, http.StatusBadGateway},
		{"overloaded", &upstream.APIError{StatusCode: 503, Type: "overloaded_error"}, CodeAPIOverloaded, http.StatusBadGateway},
		{"other 4xx keeps upstream status", &upstream.APIError{StatusCode: 400, Type: "invalid_request_error"}, CodeUpstreamError, http.StatusBadRequest},
		{"other 5xx maps to 502", &upstream.APIError{StatusCode: 500, Type: "api_error"}, CodeUpstreamError, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, "req-1", tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w)["code"])
		})
	}
}

func TestWriteError_UnhandledIsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, "req-1", errors.New("something broke"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "internal_error", body["code"])
	assert.Equal(t, "api_error", body["type"])
	// internal details never leak to the client
	assert.NotContains(t, body["message"], "something broke")
}

func TestErrorType_Families(t *testing.T) {
	assert.Equal(t, "authentication_error", errorType(CodeInvalidAPIKey, 401))
	assert.Equal(t, "authentication_error", errorType(CodeAuthRequired, 401))
	assert.Equal(t, "permission_error", errorType(CodeForbidden, 403))
	assert.Equal(t, "invalid_request_error", errorType(CodeSensitiveDataBlocked, 400))
	assert.Equal(t, "rate_limit_error", errorType(CodeBudgetExceeded, 429))
	assert.Equal(t, "api_error", errorType(CodeUpstreamError, 502))
}
