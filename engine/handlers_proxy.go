// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dynamo-works/claude-engine/audit"
	"github.com/dynamo-works/claude-engine/budget"
)

// chatCompletionResponse is the chat surface's synchronous response shape
type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int              `json:"index"`
	Message      *chatChoiceDelta `json:"message,omitempty"`
	Delta        *chatChoiceDelta `json:"delta,omitempty"`
	FinishReason *string          `json:"finish_reason"`
}

type chatChoiceDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// mapFinishReason translates upstream stop reasons to the chat surface's
// finish_reason vocabulary. Unknown reasons map to null.
func mapFinishReason(stopReason string) *string {
	var mapped string
	switch stopReason {
	case "end_turn", "stop_sequence":
		mapped = "stop"
	case "max_tokens":
		mapped = "length"
	default:
		return nil
	}
	return &mapped
}

// handleChatCompletions serves POST /v1/chat/completions
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	rc := GetRequestContext(r.Context())

	if rc.Proxy.Stream {
		s.streamProxy(w, r)
		return
	}

	resp, err := s.upstream.CreateMessage(r.Context(), rc.Proxy.Upstream)
	if err != nil {
		s.finishRequest(rc, rc.Proxy.Upstream.Model, 0, 0, "", audit.StatusError)
		writeError(w, rc.RequestID, err)
		return
	}

	text := resp.Text()
	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:      "chatcmpl-" + resp.ID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   resp.Model,
		Choices: []chatChoice{{
			Index:        0,
			Message:      &chatChoiceDelta{Role: "assistant", Content: text},
			FinishReason: mapFinishReason(resp.StopReason),
		}},
		Usage: chatUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	})

	s.finishRequest(rc, resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens, text, audit.StatusSuccess)
}

// handleMessages serves POST /v1/messages: native passthrough
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	rc := GetRequestContext(r.Context())

	if rc.Proxy.Stream {
		s.streamProxy(w, r)
		return
	}

	resp, err := s.upstream.CreateMessage(r.Context(), rc.Proxy.Upstream)
	if err != nil {
		s.finishRequest(rc, rc.Proxy.Upstream.Model, 0, 0, "", audit.StatusError)
		writeError(w, rc.RequestID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Raw)

	s.finishRequest(rc, resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Text(), audit.StatusSuccess)
}

// streamProxy serves the streaming mode of both surfaces. Usage and audit
// are committed with the token counts accumulated from stream events, after
// the client stream closes.
func (s *Server) streamProxy(w http.ResponseWriter, r *http.Request) {
	rc := GetRequestContext(r.Context())
	surface := rc.Proxy.Surface

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, rc.RequestID, NewAppError(CodeInternalError, "Streaming unsupported by connection", http.StatusInternalServerError))
		return
	}

	// The upstream subscription inherits the request context, so a client
	// disconnect aborts it promptly
	stream, err := s.upstream.StreamMessage(r.Context(), rc.Proxy.Upstream)
	if err != nil {
		s.finishRequest(rc, rc.Proxy.Upstream.Model, 0, 0, "", audit.StatusError)
		writeError(w, rc.RequestID, err)
		return
	}
	defer func() { _ = stream.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var (
		responseText strings.Builder
		inputTokens  int
		outputTokens int
		model        = rc.Proxy.Upstream.Model
		chunkID      = "chatcmpl-" + rc.RequestID
		created      = time.Now().Unix()
	)

	emitChunk := func(choice chatChoice) {
		chunk := chatCompletionResponse{
			ID:      chunkID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []chatChoice{choice},
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return
		}
		_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	for {
		event, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				break
			}
			if r.Context().Err() != nil || errors.Is(err, context.Canceled) {
				// Client went away; stop emitting and settle the ledgers
				s.log.Debug(rc.RequestID, "client disconnected mid-stream", nil)
				break
			}
			s.log.Warn(rc.RequestID, "upstream stream error", map[string]interface{}{"error": err.Error()})
			break
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				if event.Message.Model != "" {
					model = event.Message.Model
				}
				if event.Message.Usage != nil {
					inputTokens = event.Message.Usage.InputTokens
				}
				if event.Message.ID != "" {
					chunkID = "chatcmpl-" + event.Message.ID
				}
			}
			if surface == SurfaceChat {
				emitChunk(chatChoice{Index: 0, Delta: &chatChoiceDelta{Role: "assistant"}})
			}

		case "content_block_delta":
			if event.Delta != nil && event.Delta.Type == "text_delta" {
				responseText.WriteString(event.Delta.Text)
				if surface == SurfaceChat {
					emitChunk(chatChoice{Index: 0, Delta: &chatChoiceDelta{Content: event.Delta.Text}})
				}
			}

		case "message_delta":
			if event.Usage != nil {
				outputTokens = event.Usage.OutputTokens
			}
			if surface == SurfaceChat && event.Delta != nil && event.Delta.StopReason != "" {
				emitChunk(chatChoice{Index: 0, Delta: &chatChoiceDelta{}, FinishReason: mapFinishReason(event.Delta.StopReason)})
			}
		}

		if surface == SurfaceNative {
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Raw)
			flusher.Flush()
		}
	}

	if surface == SurfaceChat && r.Context().Err() == nil {
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}

	s.finishRequest(rc, model, inputTokens, outputTokens, responseText.String(), audit.StatusSuccess)
}

// finishRequest settles the ledgers after the client has been served:
// usage recording and audit commit run off the request path and can never
// fail the response.
func (s *Server) finishRequest(rc *RequestContext, model string, inputTokens, outputTokens int, responseText, status string) {
	if status != audit.StatusBlocked {
		promUpstreamCalls.WithLabelValues(model).Inc()
		promTokensProxied.WithLabelValues(model, "input").Add(float64(inputTokens))
		promTokensProxied.WithLabelValues(model, "output").Add(float64(outputTokens))
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if status == audit.StatusSuccess && rc.UserID != "" {
			err := s.budget.RecordUsage(ctx, budget.UsageEvent{
				UserID:       rc.UserID,
				UserEmail:    rc.UserEmail,
				Role:         rc.Role,
				Model:        model,
				InputTokens:  inputTokens,
				OutputTokens: outputTokens,
				Category:     rc.Audit.Category,
			})
			if err != nil {
				s.log.Error(rc.RequestID, "failed to record usage", map[string]interface{}{
					"user_id": rc.UserID, "error": err.Error(),
				})
			}
		}

		entry := audit.BuildEntry(rc.RequestID, rc.Audit, audit.BuildOptions{
			UserID:       rc.UserID,
			UserEmail:    rc.UserEmail,
			Model:        model,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			ResponseText: responseText,
			Status:       status,
		})
		s.audit.Commit(ctx, entry)
	}()
}
