// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dynamo-works/claude-engine/shared/logger"
	"github.com/dynamo-works/claude-engine/storage"
)

// Service reads and records budget state. db may be nil: reads then return
// zero usage and writes are no-ops, keeping the proxy functional without
// persistence.
type Service struct {
	db    *storage.DB
	cache *Cache
	log   *logger.Logger
}

// NewService creates a budget service. cache may be nil to disable the
// Redis hot-path cache.
func NewService(db *storage.DB, cache *Cache) *Service {
	return &Service{db: db, cache: cache, log: logger.New("budget")}
}

// GetUserBudget returns the user's current-period budget status. An absent
// counter row means zero usage.
func (s *Service) GetUserBudget(ctx context.Context, userID, role string) (*Status, error) {
	now := time.Now().UTC()

	if s.db == nil {
		return statusFor(userID, role, 0, now), nil
	}

	periodStart := PeriodStartFor(now)

	if s.cache != nil {
		if st, ok := s.cache.Get(ctx, userID, periodStart); ok {
			return st, nil
		}
	}

	var used int64
	var storedRole string
	row := s.db.Pool().QueryRowContext(ctx, `
		SELECT role, current_usage
		FROM user_budgets
		WHERE user_id = $1 AND period_start = $2
	`, userID, periodStart)
	switch err := row.Scan(&storedRole, &used); err {
	case nil:
		// Prefer the caller's live role for limit math; the stored role is
		// whatever the user last authenticated as
		if role == "" {
			role = storedRole
		}
	case sql.ErrNoRows:
		used = 0
	default:
		return nil, fmt.Errorf("failed to read user budget: %w", err)
	}

	st := statusFor(userID, role, used, now)

	if s.cache != nil {
		s.cache.Set(ctx, userID, periodStart, st)
	}

	return st, nil
}

// RecordUsage appends one ledger row and bumps the materialized counter in
// a single transaction. Callers treat this as fire-and-forget; a partial
// failure rolls the whole write back.
func (s *Service) RecordUsage(ctx context.Context, event UsageEvent) error {
	if s.db == nil {
		return nil
	}

	now := time.Now().UTC()
	periodStart := PeriodStartFor(now)
	total := int64(event.InputTokens + event.OutputTokens)
	cost := EstimateCost(event.Model, event.InputTokens, event.OutputTokens)
	limit := MonthlyBudget(event.Role)

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO token_usage (id, user_id, user_email, model, input_tokens, output_tokens, cost_estimate, request_category, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, uuid.NewString(), event.UserID, event.UserEmail, event.Model,
			event.InputTokens, event.OutputTokens, cost, nullIfEmpty(event.Category), now); err != nil {
			return fmt.Errorf("failed to insert token usage: %w", err)
		}

		// The ON CONFLICT row lock serializes concurrent bumps for the same
		// (user, period)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_budgets (user_id, period_start, role, monthly_limit, current_usage, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, period_start) DO UPDATE SET
				current_usage = user_budgets.current_usage + EXCLUDED.current_usage,
				role = EXCLUDED.role,
				monthly_limit = EXCLUDED.monthly_limit,
				updated_at = EXCLUDED.updated_at
		`, event.UserID, periodStart, event.Role, limit, total, now); err != nil {
			return fmt.Errorf("failed to upsert budget counter: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, event.UserID, periodStart)
	}

	return nil
}

// AdminSummary returns every user's counter for the current period, highest
// usage first
func (s *Service) AdminSummary(ctx context.Context) ([]SummaryRow, error) {
	if s.db == nil {
		return []SummaryRow{}, nil
	}

	periodStart := CurrentPeriodStart()

	rows, err := s.db.Pool().QueryContext(ctx, `
		SELECT user_id, role, monthly_limit, current_usage, updated_at
		FROM user_budgets
		WHERE period_start = $1
		ORDER BY current_usage DESC
	`, periodStart)
	if err != nil {
		return nil, fmt.Errorf("failed to read budget summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SummaryRow
	for rows.Next() {
		var r SummaryRow
		if err := rows.Scan(&r.UserID, &r.Role, &r.MonthlyLimit, &r.CurrentUsage, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.PercentUsed = Evaluate(r.CurrentUsage, r.MonthlyLimit).PercentUsed
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
