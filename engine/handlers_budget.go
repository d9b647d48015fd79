// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dynamo-works/claude-engine/budget"
	"github.com/dynamo-works/claude-engine/catalog"
)

// handleGetBudget serves GET /v1/budget/{userId}. Users may read their own
// budget; admins may read anyone's.
func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	rc := GetRequestContext(r.Context())
	userID := mux.Vars(r)["userId"]

	if rc.Role != catalog.RoleAdmin && rc.UserID != userID {
		writeError(w, rc.RequestID, NewAppError(CodeForbidden,
			"You can only view your own budget", http.StatusForbidden))
		return
	}

	// Reading someone else's budget uses their stored role for limit math
	role := rc.Role
	if rc.UserID != userID {
		role = ""
	}

	status, err := s.budget.GetUserBudget(r.Context(), userID, role)
	if err != nil {
		writeError(w, rc.RequestID, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleBudgetSummary serves GET /v1/budget/admin/summary
func (s *Server) handleBudgetSummary(w http.ResponseWriter, r *http.Request) {
	rc := GetRequestContext(r.Context())

	if rc.Role != catalog.RoleAdmin {
		writeError(w, rc.RequestID, NewAppError(CodeForbidden,
			"Admin role required", http.StatusForbidden))
		return
	}

	rows, err := s.budget.AdminSummary(r.Context())
	if err != nil {
		writeError(w, rc.RequestID, err)
		return
	}
	if rows == nil {
		rows = []budget.SummaryRow{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"periodStart": budget.FormatDate(budget.CurrentPeriodStart()),
		"users":       rows,
	})
}
