// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/dynamo-works/claude-engine/engine/upstream"
)

// Surface identifies which client surface a proxy request arrived on
type Surface string

const (
	// SurfaceChat is the OpenAI-compatible chat-completion surface
	SurfaceChat Surface = "chat_completions"

	// SurfaceNative is the Messages API passthrough surface
	SurfaceNative Surface = "messages"
)

// ProxyRequest is the normalized request consumed by the proxy pipeline.
// Both surfaces translate into one upstream request; the surface decides
// how the response is shaped on the way back.
type ProxyRequest struct {
	Surface        Surface
	Stream         bool
	RequestedModel string
	Upstream       *upstream.MessagesRequest
}

// chatCompletionRequest is the wire shape of the chat surface
type chatCompletionRequest struct {
	Model       string                 `json:"model"`
	Messages    []chatMessage          `json:"messages"`
	Stream      bool                   `json:"stream"`
	MaxTokens   int                    `json:"max_tokens"`
	Temperature *float64               `json:"temperature"`
	TopP        *float64               `json:"top_p"`
	Stop        json.RawMessage        `json:"stop"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// maxBodyBytes bounds request bodies read into memory
const maxBodyBytes = 10 * 1024 * 1024

// parseBodyMiddleware reads the request body exactly once, translates it to
// the upstream shape for its surface, and stores the result on the request
// context for every later stage.
func (s *Server) parseBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := GetRequestContext(r.Context())

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, rc.RequestID, NewAppError(CodeInvalidRequest, "Failed to read request body", http.StatusBadRequest))
			return
		}

		var proxy *ProxyRequest
		if strings.HasSuffix(r.URL.Path, "/chat/completions") {
			proxy, err = s.parseChatRequest(body)
		} else {
			proxy, err = s.parseNativeRequest(body)
		}
		if err != nil {
			writeError(w, rc.RequestID, err)
			return
		}

		rc.Proxy = proxy
		next.ServeHTTP(w, r)
	})
}

// parseChatRequest translates the chat-completion surface to the upstream
// shape: system messages become the system prompt, stop becomes
// stop_sequences, and missing max_tokens falls back to the configured
// default.
func (s *Server) parseChatRequest(body []byte) (*ProxyRequest, error) {
	var req chatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, NewAppError(CodeInvalidRequest, "Request body is not valid JSON", http.StatusBadRequest)
	}

	if len(req.Messages) == 0 {
		return nil, NewAppError(CodeInvalidRequest, "messages must be a non-empty array", http.StatusBadRequest)
	}

	var systemParts []string
	var messages []upstream.Message
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			systemParts = append(systemParts, m.Content)
		case "user", "assistant":
			messages = append(messages, upstream.Message{Role: m.Role, Content: m.Content})
		default:
			return nil, NewAppError(CodeInvalidRequest, "message role must be system, user, or assistant", http.StatusBadRequest)
		}
	}
	if len(messages) == 0 {
		return nil, NewAppError(CodeInvalidRequest, "messages must include at least one user or assistant message", http.StatusBadRequest)
	}

	model := req.Model
	if model == "" {
		model = s.cfg.UpstreamDefaultModel
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.cfg.UpstreamMaxTokens
	}

	up := &upstream.MessagesRequest{
		Model:         model,
		Messages:      messages,
		MaxTokens:     maxTokens,
		System:        strings.Join(systemParts, "\n"),
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: parseStop(req.Stop),
		Metadata:      req.Metadata,
	}

	return &ProxyRequest{
		Surface:        SurfaceChat,
		Stream:         req.Stream,
		RequestedModel: model,
		Upstream:       up,
	}, nil
}

// parseNativeRequest validates the Messages API surface, which passes
// through with no renames. max_tokens is mandatory here.
func (s *Server) parseNativeRequest(body []byte) (*ProxyRequest, error) {
	var req upstream.MessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, NewAppError(CodeInvalidRequest, "Request body is not valid JSON", http.StatusBadRequest)
	}

	if len(req.Messages) == 0 {
		return nil, NewAppError(CodeInvalidRequest, "messages must be a non-empty array", http.StatusBadRequest)
	}
	if req.MaxTokens <= 0 {
		return nil, NewAppError(CodeInvalidRequest, "max_tokens is required", http.StatusBadRequest)
	}

	if req.Model == "" {
		req.Model = s.cfg.UpstreamDefaultModel
	}

	stream := req.Stream
	req.Stream = false

	return &ProxyRequest{
		Surface:        SurfaceNative,
		Stream:         stream,
		RequestedModel: req.Model,
		Upstream:       &req,
	}, nil
}

// parseStop accepts the chat surface's stop as either a string or a list
func parseStop(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	return nil
}
