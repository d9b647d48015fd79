// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

// Package audit builds and persists the engine's audit trail: prompt
// hashing, redaction-safe previews, client-source detection, and the
// dual write to structured logs and the audit_logs table.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/dynamo-works/claude-engine/engine/upstream"
)

// Source is the derived client class
type Source string

const (
	SourceWeb Source = "web"
	SourceCLI Source = "cli"
)

// Status values for audit entries
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusBlocked = "blocked"
)

// PreviewMaxLen caps prompt and response previews
const PreviewMaxLen = 200

// Context is the per-request audit state populated before the upstream
// call and consumed when the entry is committed
type Context struct {
	PromptText    string
	PromptHash    string
	PromptPreview string
	Source        Source
	Category      string
	StartTime     time.Time
}

// ExtractPromptText flattens a request into the canonical prompt text: the
// optional system string first, then each message's text, joined by
// newlines. Content blocks contribute only their type=text members.
func ExtractPromptText(system string, messages []upstream.Message) string {
	var parts []string
	if system != "" {
		parts = append(parts, system)
	}

	for _, msg := range messages {
		switch content := msg.Content.(type) {
		case string:
			parts = append(parts, content)
		case []interface{}:
			for _, raw := range content {
				block, ok := raw.(map[string]interface{})
				if !ok {
					continue
				}
				if block["type"] != "text" {
					continue
				}
				if text, ok := block["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
	}

	return strings.Join(parts, "\n")
}

// HashPrompt returns the SHA-256 hex digest of the canonicalized prompt
func HashPrompt(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// cliAgents are user-agent substrings that identify terminal clients
var cliAgents = []string{"curl", "cli", "node", "python-requests", "httpie"}

// DetectSource classifies the caller from its user-agent
func DetectSource(userAgent string) Source {
	ua := strings.ToLower(userAgent)
	for _, marker := range cliAgents {
		if strings.Contains(ua, marker) {
			return SourceCLI
		}
	}
	return SourceWeb
}

// previewRedactionTriggers force a preview to [REDACTED] wholesale: once
// one of these appears, truncation alone cannot make the preview safe
var previewRedactionTriggers = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{17,}`),
	regexp.MustCompile(`\bAKIA[A-Z0-9]{16}\b`),
	regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
}

// ExtractPreview returns a truncated, redaction-safe rendering of text
func ExtractPreview(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = PreviewMaxLen
	}

	for _, trigger := range previewRedactionTriggers {
		if trigger.MatchString(text) {
			return "[REDACTED]"
		}
	}

	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "…"
}
