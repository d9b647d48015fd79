// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dynamo-works/claude-engine/budget"
	"github.com/dynamo-works/claude-engine/shared/logger"
	"github.com/dynamo-works/claude-engine/storage"
)

// Entry is one audit-log record
type Entry struct {
	ID              string    `json:"id"`
	RequestID       string    `json:"requestId"`
	UserID          *string   `json:"userId,omitempty"`
	UserEmail       *string   `json:"userEmail,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Model           string    `json:"model"`
	InputTokens     int       `json:"inputTokens"`
	OutputTokens    int       `json:"outputTokens"`
	CostEstimate    float64   `json:"costEstimate"`
	RequestCategory *string   `json:"requestCategory,omitempty"`
	Source          Source    `json:"source"`
	PromptHash      string    `json:"promptHash"`
	PromptPreview   string    `json:"promptPreview"`
	ResponsePreview string    `json:"responsePreview"`
	LatencyMs       int64     `json:"latencyMs"`
	Status          string    `json:"status"`
}

// BuildOptions carries the post-response facts for an entry
type BuildOptions struct {
	UserID       string
	UserEmail    string
	Model        string
	InputTokens  int
	OutputTokens int
	ResponseText string
	Status       string
}

// BuildEntry assembles a complete audit record from the per-request audit
// context and the response outcome
func BuildEntry(requestID string, actx Context, opts BuildOptions) *Entry {
	now := time.Now().UTC()

	entry := &Entry{
		ID:              uuid.NewString(),
		RequestID:       requestID,
		Timestamp:       now,
		Model:           opts.Model,
		InputTokens:     opts.InputTokens,
		OutputTokens:    opts.OutputTokens,
		CostEstimate:    budget.EstimateCost(opts.Model, opts.InputTokens, opts.OutputTokens),
		Source:          actx.Source,
		PromptHash:      actx.PromptHash,
		PromptPreview:   actx.PromptPreview,
		ResponsePreview: ExtractPreview(opts.ResponseText, PreviewMaxLen),
		Status:          opts.Status,
	}

	if !actx.StartTime.IsZero() {
		entry.LatencyMs = now.Sub(actx.StartTime).Milliseconds()
	}
	if opts.UserID != "" {
		entry.UserID = &opts.UserID
	}
	if opts.UserEmail != "" {
		entry.UserEmail = &opts.UserEmail
	}
	if actx.Category != "" {
		entry.RequestCategory = &actx.Category
	}

	return entry
}

// Service commits audit entries. db may be nil: entries then only reach the
// structured log.
type Service struct {
	db  *storage.DB
	log *logger.Logger
}

// NewService creates an audit service
func NewService(db *storage.DB) *Service {
	return &Service{db: db, log: logger.New("audit")}
}

// Commit writes the entry to the structured log and the audit_logs table.
// The client has already been served when this runs, so store failures are
// logged and swallowed.
func (s *Service) Commit(ctx context.Context, entry *Entry) {
	fields := map[string]interface{}{
		"model":         entry.Model,
		"input_tokens":  entry.InputTokens,
		"output_tokens": entry.OutputTokens,
		"cost_estimate": entry.CostEstimate,
		"source":        entry.Source,
		"latency_ms":    entry.LatencyMs,
		"status":        entry.Status,
		"prompt_hash":   entry.PromptHash,
	}
	if entry.UserEmail != nil {
		fields["user_email"] = *entry.UserEmail
	}
	if entry.RequestCategory != nil {
		fields["category"] = *entry.RequestCategory
	}
	s.log.Info(entry.RequestID, "audit", fields)

	if s.db == nil {
		return
	}

	_, err := s.db.Pool().ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, request_id, user_id, user_email, timestamp, model,
			input_tokens, output_tokens, cost_estimate, request_category,
			source, prompt_hash, prompt_preview, response_preview,
			latency_ms, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, entry.ID, entry.RequestID, entry.UserID, entry.UserEmail, entry.Timestamp,
		entry.Model, entry.InputTokens, entry.OutputTokens, entry.CostEstimate,
		entry.RequestCategory, entry.Source, entry.PromptHash, entry.PromptPreview,
		entry.ResponsePreview, entry.LatencyMs, entry.Status)
	if err != nil {
		s.log.Error(entry.RequestID, "failed to persist audit entry", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
