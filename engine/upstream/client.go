// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

// Package upstream is the HTTP client for the Anthropic Messages API, the
// engine's single upstream provider. It supports synchronous message
// creation and server-sent-event streaming, and classifies API errors for
// the engine's error taxonomy.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultBaseURL is the default Anthropic API endpoint
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAPIVersion is the Anthropic API version
	DefaultAPIVersion = "2023-06-01"

	// DefaultTimeout is the default HTTP timeout for synchronous calls
	DefaultTimeout = 120 * time.Second
)

// HTTPClient is an interface for HTTP client operations (enables testing)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the Anthropic Messages API. Safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	client     HTTPClient
}

// Config contains configuration for the upstream client
type Config struct {
	APIKey     string        // Required
	BaseURL    string        // Optional (default: https://api.anthropic.com)
	APIVersion string        // Optional (default: 2023-06-01)
	Timeout    time.Duration // Optional (default: 120s)
}

// NewClient creates an upstream client
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("upstream API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		apiVersion: cfg.APIVersion,
		client:     &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// NewClientWithHTTP creates a client with a custom HTTP transport. Used by
// tests and by the streaming path, which must not carry a global timeout.
func NewClientWithHTTP(cfg Config, httpClient HTTPClient) (*Client, error) {
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	c.client = httpClient
	return c, nil
}

// CreateMessage performs a synchronous message create. The returned
// response carries both the parsed shape and the raw upstream body so the
// native surface can pass it through unchanged.
func (c *Client) CreateMessage(ctx context.Context, req *MessagesRequest) (*MessagesResponse, error) {
	req.Stream = false

	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	var parsed MessagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode upstream response: %w", err)
	}
	parsed.Raw = body

	return &parsed, nil
}

// StreamMessage opens a streaming message create. The caller owns the
// returned stream and must Close it. Cancelling ctx aborts the upstream
// subscription.
func (c *Client) StreamMessage(ctx context.Context, req *MessagesRequest) (*EventStream, error) {
	req.Stream = true

	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, parseAPIError(resp.StatusCode, body)
	}

	return newEventStream(resp.Body), nil
}

func (c *Client) post(ctx context.Context, req *MessagesRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", c.apiVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	return resp, nil
}
