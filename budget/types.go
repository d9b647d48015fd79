// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package budget

import "time"

// Status is the full budget picture for one user in the current period.
// Field names are part of the client contract: the chat frontend's budget
// plugin renders them directly.
type Status struct {
	UserID           string `json:"userId"`
	Role             string `json:"role"`
	MonthlyLimit     *int64 `json:"monthlyLimit"`
	CurrentUsage     int64  `json:"currentUsage"`
	PercentUsed      int    `json:"percentUsed"`
	Remaining        *int64 `json:"remaining"`
	ResetDate        string `json:"resetDate"`
	Exceeded         bool   `json:"exceeded"`
	WarningThreshold bool   `json:"warningThreshold"`
}

// Evaluation is the pure outcome of comparing usage against a limit
type Evaluation struct {
	Exceeded    bool
	Warning     bool
	PercentUsed int
}

// UsageEvent is one request's token consumption to be recorded
type UsageEvent struct {
	UserID       string
	UserEmail    string
	Role         string
	Model        string
	InputTokens  int
	OutputTokens int
	Category     string
}

// SummaryRow is one user's line in the admin usage summary
type SummaryRow struct {
	UserID       string    `json:"userId"`
	Role         string    `json:"role"`
	MonthlyLimit *int64    `json:"monthlyLimit"`
	CurrentUsage int64     `json:"currentUsage"`
	PercentUsed  int       `json:"percentUsed"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
