// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dynamo-works/claude-engine/engine/upstream"
	"github.com/dynamo-works/claude-engine/shared/logger"
)

// Error codes in the engine's taxonomy
const (
	CodeInvalidRequest       = "invalid_request"
	CodeForbidden            = "forbidden"
	CodeNotFound             = "not_found"
	CodeInvalidAPIKey        = "invalid_api_key"
	CodeInvalidToken         = "invalid_token"
	CodeAuthRequired         = "auth_required"
	CodeSensitiveDataBlocked = "sensitive_data_blocked"
	CodeBudgetExceeded       = "budget_exceeded"
	CodeRateLimited          = "rate_limited"
	CodeUpstreamAuthError    = "upstream_auth_error"
	CodeAPIOverloaded        = "api_overloaded"
	CodeUpstreamError        = "upstream_error"
	CodeInternalError        = "internal_error"
)

// AppError is an error raised by a pipeline stage. It short-circuits the
// pipeline and maps directly to the canonical client error body.
type AppError struct {
	Code    string
	Message string
	Status  int
}

func (e *AppError) Error() string {
	return e.Code + ": " + e.Message
}

// NewAppError creates a stage error
func NewAppError(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

// errorBody is the canonical client error shape
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code"`
	RequestID string `json:"requestId"`
}

// errorType maps a code to the Anthropic-style error family carried in the
// body's type field, so clients need a single decoder for engine and
// upstream failures
func errorType(code string, status int) string {
	switch code {
	case CodeInvalidAPIKey, CodeInvalidToken, CodeAuthRequired:
		return "authentication_error"
	case CodeForbidden:
		return "permission_error"
	case CodeNotFound:
		return "not_found_error"
	case CodeBudgetExceeded, CodeRateLimited:
		return "rate_limit_error"
	case CodeAPIOverloaded:
		return "overloaded_error"
	}
	if status >= 500 {
		return "api_error"
	}
	return "invalid_request_error"
}

var errLog = logger.New("engine")

// writeError renders any error as the canonical body. Upstream API errors
// are classified into the taxonomy; anything unrecognized is an internal
// error.
func writeError(w http.ResponseWriter, requestID string, err error) {
	code := CodeInternalError
	message := "An internal error occurred"
	status := http.StatusInternalServerError

	var appErr *AppError
	var apiErr *upstream.APIError

	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		message = appErr.Message
		status = appErr.Status

	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
		message = apiErr.Message
		switch {
		case apiErr.IsAuthError():
			code = CodeUpstreamAuthError
			message = "Upstream provider rejected the engine's credentials"
		case apiErr.IsRateLimitError():
			code = CodeRateLimited
		case apiErr.IsOverloadedError():
			code = CodeAPIOverloaded
		default:
			code = CodeUpstreamError
			if apiErr.StatusCode < 500 {
				status = apiErr.StatusCode
			}
		}

	default:
		errLog.Error(requestID, "unhandled error", map[string]interface{}{"error": err.Error()})
	}

	if status >= 500 && code != CodeInternalError {
		errLog.Warn(requestID, "request failed", map[string]interface{}{
			"code": code, "error": err.Error(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{
		Message:   message,
		Type:      errorType(code, status),
		Code:      code,
		RequestID: requestID,
	}})
}

// writeJSON renders a success payload
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
