// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates engine configuration from the
// environment. Secrets may be supplied directly or indirected through AWS
// Secrets Manager ARNs.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// Environment selects configuration defaults
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
	EnvTest        Environment = "test"
)

// AuthMode selects the active authentication path
type AuthMode string

const (
	AuthModeMock  AuthMode = "mock"
	AuthModeToken AuthMode = "token"
)

// EnforcementMode controls block-vs-warn behavior when a budget is exceeded
type EnforcementMode string

const (
	EnforcementSoft EnforcementMode = "soft"
	EnforcementHard EnforcementMode = "hard"
	EnforcementNone EnforcementMode = "none"
)

// Config holds all engine configuration, loaded once at startup
type Config struct {
	Env  Environment
	Port int

	UpstreamAPIKey       string
	UpstreamBaseURL      string
	UpstreamDefaultModel string
	UpstreamMaxTokens    int

	CORSOrigin string
	LogLevel   string

	DatabaseURL string
	RedisURL    string

	BudgetEnforcement EnforcementMode

	AlertTopicARN string
	AWSRegion     string

	AuthMode  AuthMode
	JWTSecret string

	CatalogFile string
}

// SecretFetcher resolves a Secrets Manager ARN to the secret string value.
// Implemented by secrets.AWSFetcher; nil disables indirection.
type SecretFetcher interface {
	FetchString(ctx context.Context, secretARN string) (string, error)
}

// Load reads configuration from the environment. When fetcher is non-nil,
// *_SECRET_ARN variables are resolved through it and take precedence over
// the direct values.
func Load(ctx context.Context, fetcher SecretFetcher) (*Config, error) {
	env := Environment(getEnv("NODE_ENV", string(EnvDevelopment)))
	switch env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return nil, fmt.Errorf("invalid NODE_ENV %q: must be development, production, or test", env)
	}

	defaultAuthMode := AuthModeMock
	if env == EnvProduction {
		defaultAuthMode = AuthModeToken
	}

	cfg := &Config{
		Env:                  env,
		Port:                 getEnvInt("PORT", 3001),
		UpstreamAPIKey:       os.Getenv("UPSTREAM_API_KEY"),
		UpstreamBaseURL:      getEnv("UPSTREAM_BASE_URL", "https://api.anthropic.com"),
		UpstreamDefaultModel: getEnv("UPSTREAM_DEFAULT_MODEL", "claude-sonnet-4-20250514"),
		UpstreamMaxTokens:    getEnvInt("UPSTREAM_MAX_TOKENS", 4096),
		CORSOrigin:           getEnv("CORS_ORIGIN", "*"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		BudgetEnforcement:    EnforcementMode(getEnv("TOKEN_BUDGET_ENFORCEMENT", string(EnforcementSoft))),
		AlertTopicARN:        os.Getenv("ALERT_TOPIC_ARN"),
		AWSRegion:            os.Getenv("AWS_REGION"),
		AuthMode:             AuthMode(getEnv("AUTH_MODE", string(defaultAuthMode))),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		CatalogFile:          os.Getenv("CATALOG_FILE"),
	}

	if fetcher != nil {
		if arn := os.Getenv("UPSTREAM_API_KEY_SECRET_ARN"); arn != "" {
			v, err := fetcher.FetchString(ctx, arn)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve UPSTREAM_API_KEY_SECRET_ARN: %w", err)
			}
			cfg.UpstreamAPIKey = v
		}
		if arn := os.Getenv("JWT_SECRET_SECRET_ARN"); arn != "" {
			v, err := fetcher.FetchString(ctx, arn)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve JWT_SECRET_SECRET_ARN: %w", err)
			}
			cfg.JWTSecret = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable. Startup aborts on error.
func (c *Config) Validate() error {
	if c.UpstreamAPIKey == "" {
		return fmt.Errorf("UPSTREAM_API_KEY is required")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}

	switch c.BudgetEnforcement {
	case EnforcementSoft, EnforcementHard, EnforcementNone:
	default:
		return fmt.Errorf("invalid TOKEN_BUDGET_ENFORCEMENT %q: must be soft, hard, or none", c.BudgetEnforcement)
	}

	switch c.AuthMode {
	case AuthModeMock, AuthModeToken:
	default:
		return fmt.Errorf("invalid AUTH_MODE %q: must be mock or token", c.AuthMode)
	}

	if c.AuthMode == AuthModeToken && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=token")
	}

	if c.AuthMode == AuthModeMock && c.Env == EnvProduction {
		return fmt.Errorf("AUTH_MODE=mock is not allowed in production")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
