// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

// Package budget implements per-user monthly token budgets: pure period and
// threshold math, the append-only usage ledger with its materialized
// counter, and cost estimation from the model catalog.
package budget

import (
	"math"
	"time"

	"github.com/dynamo-works/claude-engine/catalog"
)

// warningFraction is the share of the monthly limit at which a warning is
// attached to responses
const warningFraction = 0.8

// PeriodStartFor returns the first day of now's month
func PeriodStartFor(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CurrentPeriodStart returns the first day of the current month
func CurrentPeriodStart() time.Time {
	return PeriodStartFor(time.Now().UTC())
}

// NextResetDateFor returns the first day of the month after now
func NextResetDateFor(now time.Time) time.Time {
	return PeriodStartFor(now).AddDate(0, 1, 0)
}

// NextResetDate returns the first day of next month
func NextResetDate() time.Time {
	return NextResetDateFor(time.Now().UTC())
}

// FormatDate renders a period boundary as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// MonthlyBudget returns the monthly token budget for a role. Unknown roles
// get the default role's budget; nil means unlimited.
func MonthlyBudget(role string) *int64 {
	return catalog.RoleByName(role).MonthlyTokenBudget
}

// Evaluate compares usage against a limit. A nil or non-positive limit is
// unlimited: never warning, never exceeded, percent zero.
func Evaluate(used int64, limit *int64) Evaluation {
	if limit == nil || *limit <= 0 {
		return Evaluation{}
	}

	l := *limit
	percent := int(math.Round(float64(used) / float64(l) * 100))

	return Evaluation{
		PercentUsed: percent,
		Warning:     float64(used) >= warningFraction*float64(l),
		Exceeded:    used >= l,
	}
}

// EstimateCost computes the USD cost of a request from the model catalog,
// rounded to six decimal places. Unknown models cost zero.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	def, ok := catalog.ModelByID(model)
	if !ok {
		return 0
	}

	cost := (float64(inputTokens)*def.InputCostPerMillion +
		float64(outputTokens)*def.OutputCostPerMillion) / 1e6

	return math.Round(cost*1e6) / 1e6
}

// statusFor assembles a Status from a counter value
func statusFor(userID, role string, used int64, now time.Time) *Status {
	limit := MonthlyBudget(role)
	eval := Evaluate(used, limit)

	var remaining *int64
	if limit != nil && *limit > 0 {
		r := *limit - used
		if r < 0 {
			r = 0
		}
		remaining = &r
	}

	return &Status{
		UserID:           userID,
		Role:             role,
		MonthlyLimit:     limit,
		CurrentUsage:     used,
		PercentUsed:      eval.PercentUsed,
		Remaining:        remaining,
		ResetDate:        FormatDate(NextResetDateFor(now)),
		Exceeded:         eval.Exceeded,
		WarningThreshold: eval.Warning,
	}
}
