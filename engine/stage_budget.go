// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"net/http"

	"github.com/dynamo-works/claude-engine/catalog"
	"github.com/dynamo-works/claude-engine/config"
)

// budgetEnforcerMiddleware checks the caller's monthly budget. Warnings
// attach a header; an exceeded budget blocks only in hard mode. A store
// fault never blocks a request.
func (s *Server) budgetEnforcerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := GetRequestContext(r.Context())

		if rc.UserID == "" ||
			rc.Role == catalog.RoleAdmin ||
			s.cfg.BudgetEnforcement == config.EnforcementNone ||
			s.db == nil {
			next.ServeHTTP(w, r)
			return
		}

		status, err := s.budget.GetUserBudget(r.Context(), rc.UserID, rc.Role)
		if err != nil {
			s.log.Warn(rc.RequestID, "budget read failed; allowing request", map[string]interface{}{
				"user_id": rc.UserID, "error": err.Error(),
			})
			next.ServeHTTP(w, r)
			return
		}

		switch {
		case status.Exceeded:
			limit := int64(0)
			if status.MonthlyLimit != nil {
				limit = *status.MonthlyLimit
			}
			detail := fmt.Sprintf(
				"Monthly token budget exceeded: %d of %d tokens used. Budget resets %s.",
				status.CurrentUsage, limit, status.ResetDate)
			w.Header().Set("X-Budget-Warning", detail)

			if s.cfg.BudgetEnforcement == config.EnforcementHard {
				promBlockedRequests.Inc()
				writeError(w, rc.RequestID, NewAppError(CodeBudgetExceeded, detail, http.StatusTooManyRequests))
				return
			}

		case status.WarningThreshold:
			w.Header().Set("X-Budget-Warning",
				fmt.Sprintf("Usage at %d%% of monthly limit", status.PercentUsed))
		}

		next.ServeHTTP(w, r)
	})
}
