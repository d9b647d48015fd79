// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_EmptyURLDisablesPersistence(t *testing.T) {
	db, err := Open(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, db)

	// a nil *DB is a first-class value
	assert.Nil(t, db.Pool())
	assert.NoError(t, db.Close())
	assert.True(t, db.IsHealthy(context.Background()))
	assert.ErrorIs(t, db.WithTx(context.Background(), func(*sql.Tx) error { return nil }), ErrNoDatabase)
	assert.NoError(t, db.InitSchema())
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = pool.Close() }()
	db := NewFromPool(pool)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE widgets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = db.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec("UPDATE widgets SET n = n + 1")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = pool.Close() }()
	db := NewFromPool(pool)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = db.WithTx(context.Background(), func(*sql.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithConn_GuaranteedRelease(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = pool.Close() }()
	db := NewFromPool(pool)

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

	err = db.WithConn(context.Background(), func(conn *sql.Conn) error {
		var one int
		return conn.QueryRowContext(context.Background(), "SELECT 1").Scan(&one)
	})
	require.NoError(t, err)
}
