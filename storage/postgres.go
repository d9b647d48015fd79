// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the PostgreSQL connection pool and schema
// bootstrap for the engine. A nil *DB is a valid value meaning persistence
// is disabled; all consumers degrade to no-op writes and zero reads.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the shared connection pool
type DB struct {
	pool *sql.DB
}

// Open connects to PostgreSQL and verifies the connection. An empty
// databaseURL returns (nil, nil): persistence disabled.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	if databaseURL == "" {
		return nil, nil
	}

	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pool.SetMaxOpenConns(10)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// NewFromPool wraps an existing pool. Used by tests with sqlmock.
func NewFromPool(pool *sql.DB) *DB {
	return &DB{pool: pool}
}

// Pool returns the underlying *sql.DB, or nil when persistence is disabled
func (d *DB) Pool() *sql.DB {
	if d == nil {
		return nil
	}
	return d.pool
}

// Close shuts down the pool
func (d *DB) Close() error {
	if d == nil || d.pool == nil {
		return nil
	}
	return d.pool.Close()
}

// IsHealthy reports whether the database answers a ping
func (d *DB) IsHealthy(ctx context.Context) bool {
	if d == nil || d.pool == nil {
		return true // no-op store is always healthy
	}
	pingCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	return d.pool.PingContext(pingCtx) == nil
}

// WithTx runs fn inside a transaction. The transaction is rolled back when
// fn returns an error or panics, committed otherwise.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if d == nil || d.pool == nil {
		return ErrNoDatabase
	}

	tx, err := d.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// WithConn acquires a dedicated connection for fn and guarantees release
func (d *DB) WithConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	if d == nil || d.pool == nil {
		return ErrNoDatabase
	}

	conn, err := d.pool.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	return fn(conn)
}
