// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the Claude Engine, the authenticating
// and policy-enforcing reverse proxy between Dynamo Works client surfaces
// and the Anthropic Messages API.
//
// Usage:
//
//	./engine
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 3001)
//	UPSTREAM_API_KEY - Anthropic API key (required)
//	DATABASE_URL - PostgreSQL connection string (optional)
//	AUTH_MODE - mock or token (default depends on NODE_ENV)
//	TOKEN_BUDGET_ENFORCEMENT - soft, hard, or none (default: soft)
//
// See config.Load for the full list.
package main

import (
	"github.com/dynamo-works/claude-engine/engine"
)

func main() {
	engine.Run()
}
