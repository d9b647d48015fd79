// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EventStream iterates server-sent events from an open streaming response.
// It is exclusively owned by one handler; Recv and Close must not be called
// concurrently.
type EventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// streamBufferSize accommodates large single-event payloads
const streamBufferSize = 1024 * 1024

func newEventStream(body io.ReadCloser) *EventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), streamBufferSize)
	return &EventStream{body: body, scanner: scanner}
}

// Recv returns the next event. io.EOF signals a cleanly finished stream.
func (s *EventStream) Recv() (*StreamEvent, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()

		// SSE frames arrive as "event: <type>" / "data: <json>" line pairs;
		// the data line alone carries everything we need
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var envelope streamEventEnvelope
		if err := json.Unmarshal([]byte(data), &envelope); err != nil {
			continue // skip malformed events
		}

		return &StreamEvent{
			Type:    envelope.Type,
			Raw:     json.RawMessage(data),
			Message: envelope.Message,
			Delta:   envelope.Delta,
			Usage:   envelope.Usage,
		}, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read error: %w", err)
	}
	return nil, io.EOF
}

// Close releases the underlying response body, aborting the subscription
// if it is still open
func (s *EventStream) Close() error {
	return s.body.Close()
}
