// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"time"
)

// profileUpsert carries the identity facts refreshed on each successful
// token authentication
type profileUpsert struct {
	UserID      string
	Email       string
	DisplayName string
	Role        string
	Department  string
	Groups      []string
}

// upsertProfileAsync refreshes the user profile off the request path.
// first_login is preserved; everything else tracks the latest token.
func (s *Server) upsertProfileAsync(p profileUpsert) {
	if s.db == nil || p.Email == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		groups := p.Groups
		if groups == nil {
			groups = []string{}
		}
		groupsJSON, err := json.Marshal(groups)
		if err != nil {
			return
		}

		_, err = s.db.Pool().ExecContext(ctx, `
			INSERT INTO user_profiles (user_id, email, display_name, role, department, identity_groups, first_login, last_login)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
			ON CONFLICT (user_id) DO UPDATE SET
				email = EXCLUDED.email,
				display_name = EXCLUDED.display_name,
				role = EXCLUDED.role,
				department = EXCLUDED.department,
				identity_groups = EXCLUDED.identity_groups,
				last_login = NOW()
		`, p.UserID, p.Email, nullIfEmpty(p.DisplayName), p.Role, nullIfEmpty(p.Department), groupsJSON)
		if err != nil {
			s.log.Warn("", "failed to upsert user profile", map[string]interface{}{
				"user_id": p.UserID, "error": err.Error(),
			})
		}
	}()
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
