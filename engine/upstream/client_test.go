// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)

	c, err := NewClient(Config{APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultAPIVersion, c.apiVersion)
}

func TestCreateMessage_Success(t *testing.T) {
	var gotBody map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, DefaultAPIVersion, r.Header.Get("anthropic-version"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"stop_reason": "end_turn",
			"content": [{"type": "text", "text": "Hello"}, {"type": "text", "text": " there"}],
			"usage": {"input_tokens": 12, "output_tokens": 6}
		}`)
	}))
	defer ts.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: ts.URL})
	require.NoError(t, err)

	resp, err := client.CreateMessage(context.Background(), &MessagesRequest{
		Model:     "claude-sonnet-4-20250514",
		Messages:  []Message{{Role: "user", Content: "Hi"}},
		MaxTokens: 256,
	})
	require.NoError(t, err)

	assert.Equal(t, "msg_01", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "Hello there", resp.Text())
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 6, resp.Usage.OutputTokens)
	assert.NotEmpty(t, resp.Raw)

	// stream is forced off for synchronous calls
	_, streamSet := gotBody["stream"]
	assert.False(t, streamSet)
	assert.Equal(t, "claude-sonnet-4-20250514", gotBody["model"])
}

func TestCreateMessage_APIErrorClassification(t *testing.T) {
	tests := []struct {
		status     int
		errType    string
		rateLimit  bool
		auth       bool
		overloaded bool
	}{
		{http.StatusTooManyRequests, "rate_limit_error", true, false, false},
		{http.StatusUnauthorized, "authentication_error", false, true, false},
		{http.StatusServiceUnavailable, "overloaded_error", false, false, true},
		{http.StatusBadRequest, "invalid_request_error", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.errType, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"type":"error","error":{"type":%q,"message":"nope"}}`, tt.errType)
			}))
			defer ts.Close()

			client, err := NewClient(Config{APIKey: "test-key", BaseURL: ts.URL})
			require.NoError(t, err)

			_, err = client.CreateMessage(context.Background(), &MessagesRequest{
				Model:     "claude-sonnet-4-20250514",
				Messages:  []Message{{Role: "user", Content: "Hi"}},
				MaxTokens: 256,
			})
			require.Error(t, err)

			apiErr, ok := err.(*APIError)
			require.True(t, ok)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.rateLimit, apiErr.IsRateLimitError())
			assert.Equal(t, tt.auth, apiErr.IsAuthError())
			assert.Equal(t, tt.overloaded, apiErr.IsOverloadedError())
		})
	}
}

const streamFixture = `event: message_start
data: {"type":"message_start","message":{"id":"msg_01","model":"claude-sonnet-4-20250514","usage":{"input_tokens":25}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":9}}

event: message_stop
data: {"type":"message_stop"}

`

func TestStreamMessage_EventSequence(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req MessagesRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, streamFixture)
	}))
	defer ts.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: ts.URL})
	require.NoError(t, err)

	stream, err := client.StreamMessage(context.Background(), &MessagesRequest{
		Model:     "claude-sonnet-4-20250514",
		Messages:  []Message{{Role: "user", Content: "Hi"}},
		MaxTokens: 256,
	})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	var types []string
	var text string
	var inputTokens, outputTokens int

	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		types = append(types, event.Type)
		switch event.Type {
		case "message_start":
			require.NotNil(t, event.Message)
			inputTokens = event.Message.Usage.InputTokens
		case "content_block_delta":
			if event.Delta != nil && event.Delta.Type == "text_delta" {
				text += event.Delta.Text
			}
		case "message_delta":
			require.NotNil(t, event.Usage)
			outputTokens = event.Usage.OutputTokens
		}
	}

	assert.Equal(t, []string{
		"message_start", "content_block_start", "content_block_delta",
		"content_block_delta", "content_block_stop", "message_delta", "message_stop",
	}, types)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, 25, inputTokens)
	assert.Equal(t, 9, outputTokens)
}

func TestStreamMessage_ErrorBeforeStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`)
	}))
	defer ts.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: ts.URL})
	require.NoError(t, err)

	_, err = client.StreamMessage(context.Background(), &MessagesRequest{
		Model:     "claude-sonnet-4-20250514",
		Messages:  []Message{{Role: "user", Content: "Hi"}},
		MaxTokens: 256,
	})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.True(t, apiErr.IsOverloadedError())
}
