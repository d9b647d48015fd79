// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dynamo-works/claude-engine/audit"
	"github.com/dynamo-works/claude-engine/scanner"
)

// AuthMethod identifies how a request authenticated
type AuthMethod string

const (
	AuthMethodAPIKey AuthMethod = "api_key"
	AuthMethodToken  AuthMethod = "token"
	AuthMethodMock   AuthMethod = "mock"
	AuthMethodNone   AuthMethod = "none"
)

// RequestContext is the per-request state threaded through the pipeline.
// It is created at ingress, mutated by each stage, and discarded when the
// response closes. Never shared across requests.
type RequestContext struct {
	RequestID   string
	UserID      string
	UserEmail   string
	DisplayName string
	Role        string
	APIKeyID    string
	AuthMethod  AuthMethod
	StartTime   time.Time

	Audit audit.Context
	Scan  *scanner.Result
	Proxy *ProxyRequest
}

type contextKey struct{}

// WithRequestContext attaches rc to ctx
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// GetRequestContext retrieves the per-request state. Handlers behind the
// pipeline can rely on it being present.
func GetRequestContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rc
}

// requestIDMiddleware assigns the correlation id at ingress: the caller's
// X-Request-Id when present, a fresh UUID otherwise. The id is echoed on
// every response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		rc := &RequestContext{
			RequestID: requestID,
			StartTime: time.Now().UTC(),
		}

		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(WithRequestContext(r.Context(), rc)))
	})
}
