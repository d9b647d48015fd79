// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/dynamo-works/claude-engine/alerts"
	"github.com/dynamo-works/claude-engine/audit"
	"github.com/dynamo-works/claude-engine/scanner"
)

// sensitiveDataMiddleware scans the prompt before it can leave the engine.
// High-severity findings block the request; medium-severity findings warn
// and proceed. Either way an alert goes out without blocking the caller.
func (s *Server) sensitiveDataMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := GetRequestContext(r.Context())

		result := scanner.ScanText(rc.Audit.PromptText)
		rc.Scan = &result

		if !result.HasHighSeverity && !result.HasMediumSeverity {
			next.ServeHTTP(w, r)
			return
		}

		s.publishAlertAsync(alerts.NewSensitiveDataAlert(alerts.AlertContext{
			RequestID: rc.RequestID,
			UserID:    rc.UserID,
			UserEmail: rc.UserEmail,
			Route:     r.URL.Path,
		}, result.Findings))

		if result.HasHighSeverity {
			promBlockedRequests.Inc()
			writeError(w, rc.RequestID, NewAppError(CodeSensitiveDataBlocked,
				scanner.BlockMessage(result), http.StatusBadRequest))
			s.finishRequest(rc, rc.Proxy.Upstream.Model, 0, 0, "", audit.StatusBlocked)
			return
		}

		w.Header().Set("X-Sensitive-Data-Warning",
			"Potentially sensitive data detected in prompt; request allowed")
		next.ServeHTTP(w, r)
	})
}

// publishAlertAsync fires the alert without awaiting delivery
func (s *Server) publishAlertAsync(alert alerts.Alert) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.alerts.Publish(ctx, alert); err != nil {
			s.log.Warn(alert.Context.RequestID, "failed to publish security alert", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
}
