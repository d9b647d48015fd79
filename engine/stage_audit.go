// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"net/http"

	"github.com/dynamo-works/claude-engine/audit"
	"github.com/dynamo-works/claude-engine/classifier"
)

// auditSetupMiddleware populates the per-request audit context before the
// upstream call: prompt text, hash, preview, client source, and business
// category. It writes nothing; the entry is committed after the response.
func (s *Server) auditSetupMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := GetRequestContext(r.Context())
		up := rc.Proxy.Upstream

		promptText := audit.ExtractPromptText(up.System, up.Messages)
		source := audit.DetectSource(r.Header.Get("User-Agent"))
		classification := classifier.Classify(promptText, string(source))

		rc.Audit = audit.Context{
			PromptText:    promptText,
			PromptHash:    audit.HashPrompt(promptText),
			PromptPreview: audit.ExtractPreview(promptText, audit.PreviewMaxLen),
			Source:        source,
			Category:      string(classification.Category),
			StartTime:     rc.StartTime,
		}

		next.ServeHTTP(w, r)
	})
}
