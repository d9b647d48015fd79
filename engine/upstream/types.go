// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package upstream

import "encoding/json"

// Message is one conversation turn. Content is either a string or a list
// of content blocks ([]interface{} of {type, text, ...} maps), exactly as
// the Messages API accepts it.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// MessagesRequest is the native Messages API request body
type MessagesRequest struct {
	Model         string                 `json:"model"`
	Messages      []Message              `json:"messages"`
	MaxTokens     int                    `json:"max_tokens"`
	System        string                 `json:"system,omitempty"`
	Stream        bool                   `json:"stream,omitempty"`
	Temperature   *float64               `json:"temperature,omitempty"`
	TopP          *float64               `json:"top_p,omitempty"`
	TopK          *int                   `json:"top_k,omitempty"`
	StopSequences []string               `json:"stop_sequences,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// ContentBlock is one block of a response message
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Usage carries reported token counts
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// MessagesResponse is the parsed synchronous response. Raw holds the exact
// upstream body for passthrough surfaces.
type MessagesResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Content      []ContentBlock `json:"content"`
	Usage        Usage          `json:"usage"`

	Raw json.RawMessage `json:"-"`
}

// Text joins the text content blocks of a response
func (r *MessagesResponse) Text() string {
	var out string
	for _, block := range r.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out
}

// StreamEvent is one server-sent event from the upstream stream. Raw is
// the undecoded data payload for verbatim passthrough.
type StreamEvent struct {
	Type string
	Raw  json.RawMessage

	Message *StreamMessageStart
	Delta   *StreamDelta
	Usage   *StreamUsage
}

// StreamMessageStart is the message object inside a message_start event
type StreamMessageStart struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Usage *struct {
		InputTokens int `json:"input_tokens"`
	} `json:"usage,omitempty"`
}

// StreamDelta is the delta object of content_block_delta and message_delta
// events
type StreamDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// StreamUsage is the usage object attached to message_delta events
type StreamUsage struct {
	OutputTokens int `json:"output_tokens"`
}

// streamEventEnvelope is the wire shape of a stream event payload
type streamEventEnvelope struct {
	Type    string              `json:"type"`
	Message *StreamMessageStart `json:"message,omitempty"`
	Delta   *StreamDelta        `json:"delta,omitempty"`
	Usage   *StreamUsage        `json:"usage,omitempty"`
}
