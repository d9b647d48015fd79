// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package storage

import "errors"

// ErrNoDatabase is returned when a transactional operation is attempted
// with persistence disabled
var ErrNoDatabase = errors.New("database not configured")

// InitSchema creates the engine tables and indexes if they don't exist
func (d *DB) InitSchema() error {
	if d == nil || d.pool == nil {
		return nil
	}

	query := `
	CREATE TABLE IF NOT EXISTS token_usage (
		id UUID PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		user_email VARCHAR(255) NOT NULL,
		model VARCHAR(100) NOT NULL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cost_estimate DECIMAL(12, 6) NOT NULL DEFAULT 0,
		request_category VARCHAR(50),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_token_usage_user_id ON token_usage(user_id);
	CREATE INDEX IF NOT EXISTS idx_token_usage_created_at ON token_usage(created_at);

	CREATE TABLE IF NOT EXISTS user_budgets (
		user_id VARCHAR(255) NOT NULL,
		period_start DATE NOT NULL,
		role VARCHAR(50) NOT NULL,
		monthly_limit BIGINT,
		current_usage BIGINT NOT NULL DEFAULT 0 CHECK (current_usage >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, period_start)
	);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		request_id VARCHAR(255) NOT NULL,
		user_id VARCHAR(255),
		user_email VARCHAR(255),
		timestamp TIMESTAMPTZ NOT NULL,
		model VARCHAR(100) NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cost_estimate DECIMAL(12, 6) NOT NULL DEFAULT 0,
		request_category VARCHAR(50),
		source VARCHAR(10) NOT NULL,
		prompt_hash VARCHAR(64) NOT NULL,
		prompt_preview TEXT,
		response_preview TEXT,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_request_id ON audit_logs(request_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_user_email ON audit_logs(user_email);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);

	CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		user_email VARCHAR(255) NOT NULL,
		key_hash VARCHAR(64) NOT NULL,
		key_prefix VARCHAR(12) NOT NULL,
		role VARCHAR(50) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_used_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_api_keys_hash_active
		ON api_keys(key_hash) WHERE is_active;
	CREATE INDEX IF NOT EXISTS idx_api_keys_user_id ON api_keys(user_id);

	CREATE TABLE IF NOT EXISTS user_profiles (
		user_id VARCHAR(255) PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		display_name VARCHAR(255),
		role VARCHAR(50) NOT NULL,
		department VARCHAR(255),
		identity_groups JSONB NOT NULL DEFAULT '[]',
		first_login TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_login TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`

	_, err := d.pool.Exec(query)
	return err
}
