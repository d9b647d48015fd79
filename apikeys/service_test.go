// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package apikeys

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynamo-works/claude-engine/storage"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewService(storage.NewFromPool(db)), mock, db
}

func TestGenerateRawKey_Format(t *testing.T) {
	raw, err := GenerateRawKey()
	require.NoError(t, err)

	assert.Len(t, raw, 58)
	assert.True(t, IsValidKeyFormat(raw))
}

func TestGenerateRawKey_Distinct(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		raw, err := GenerateRawKey()
		require.NoError(t, err)
		_, dup := seen[raw]
		require.False(t, dup)
		seen[raw] = struct{}{}
	}
}

func TestIsValidKeyFormat(t *testing.T) {
	valid, _ := GenerateRawKey()
	assert.True(t, IsValidKeyFormat(valid))

	invalid := []string{
		"",
		"dynamo-sk-",
		"dynamo-sk-tooshort",
		"sk-" + valid,
		valid + "0",                     // too long
		"dynamo-sk-" + string(make([]byte, 48)), // non-hex
		"DYNAMO-SK-0123456789abcdef0123456789abcdef0123456789abcdef",
	}
	for _, k := range invalid {
		assert.False(t, IsValidKeyFormat(k), k)
	}
}

func TestHashKey_DeterministicHex(t *testing.T) {
	raw := "dynamo-sk-0123456789abcdef0123456789abcdef0123456789abcdef"

	h1 := HashKey(raw)
	h2 := HashKey(raw)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, HashKey(raw+"x"))
}

func TestDisplayPrefix(t *testing.T) {
	raw := "dynamo-sk-0123456789abcdef0123456789abcdef0123456789abcdef"
	assert.Equal(t, "dynamo-sk-01", DisplayPrefix(raw))
}

func TestCreate_InsertsActiveRow(t *testing.T) {
	svc, mock, db := newMockService(t)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO api_keys").
		WillReturnResult(sqlmock.NewResult(0, 1))

	key, raw, err := svc.Create(context.Background(), "kchen@dynamo.works", "engineer")
	require.NoError(t, err)

	assert.True(t, IsValidKeyFormat(raw))
	assert.Equal(t, "kchen", key.UserID)
	assert.Equal(t, "kchen@dynamo.works", key.UserEmail)
	assert.Equal(t, "engineer", key.Role)
	assert.Equal(t, HashKey(raw), key.KeyHash)
	assert.Equal(t, raw[:12], key.KeyPrefix)
	assert.True(t, key.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_RejectsBadEmail(t *testing.T) {
	svc, _, db := newMockService(t)
	defer func() { _ = db.Close() }()

	_, _, err := svc.Create(context.Background(), "not-an-email", "engineer")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestCreate_NoDatabase(t *testing.T) {
	svc := NewService(nil)

	_, _, err := svc.Create(context.Background(), "kchen@dynamo.works", "engineer")
	assert.ErrorIs(t, err, storage.ErrNoDatabase)
}

func TestRevoke_Idempotent(t *testing.T) {
	svc, mock, db := newMockService(t)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("UPDATE api_keys").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE api_keys").
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := svc.Revoke(context.Background(), "key-id")
	require.NoError(t, err)
	assert.True(t, changed)

	// second revoke changes nothing
	changed, err = svc.Revoke(context.Background(), "key-id")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRotate_SingleTransaction(t *testing.T) {
	svc, mock, db := newMockService(t)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, user_email, role").
		WithArgs("old-id").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "user_email", "role"}).
			AddRow("kchen", "kchen@dynamo.works", "engineer"))
	mock.ExpectExec("UPDATE api_keys SET is_active = FALSE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO api_keys").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	key, raw, err := svc.Rotate(context.Background(), "old-id")
	require.NoError(t, err)

	assert.True(t, IsValidKeyFormat(raw))
	assert.Equal(t, "kchen", key.UserID)
	assert.Equal(t, "engineer", key.Role)
	assert.NotEqual(t, "old-id", key.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRotate_UnknownKeyRollsBack(t *testing.T) {
	svc, mock, db := newMockService(t)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT user_id, user_email, role").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "user_email", "role"}))
	mock.ExpectRollback()

	_, _, err := svc.Rotate(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupByHash_ActiveOnly(t *testing.T) {
	svc, mock, db := newMockService(t)
	defer func() { _ = db.Close() }()
	mock.MatchExpectationsInOrder(false)

	created := time.Now().UTC()
	mock.ExpectQuery("SELECT id, user_id, user_email, key_hash").
		WithArgs("somehash").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "user_email", "key_hash", "key_prefix", "role",
			"created_at", "last_used_at", "revoked_at", "is_active",
		}).AddRow("key-id", "kchen", "kchen@dynamo.works", "somehash", "dynamo-sk-01",
			"engineer", created, nil, nil, true))

	// the fire-and-forget last_used_at touch may or may not land before the
	// test ends
	mock.ExpectExec("UPDATE api_keys SET last_used_at").
		WillReturnResult(sqlmock.NewResult(0, 1))

	key, err := svc.LookupByHash(context.Background(), "somehash")
	require.NoError(t, err)
	assert.Equal(t, "key-id", key.ID)
	assert.Equal(t, "engineer", key.Role)

	time.Sleep(50 * time.Millisecond)
}

func TestLookupByHash_NotFound(t *testing.T) {
	svc, mock, db := newMockService(t)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT id, user_id, user_email, key_hash").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "user_email", "key_hash", "key_prefix", "role",
			"created_at", "last_used_at", "revoked_at", "is_active",
		}))

	_, err := svc.LookupByHash(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRevokedKeyFailsLookup(t *testing.T) {
	// The lookup query filters on is_active, so a revoked key behaves like
	// a missing one
	svc, mock, db := newMockService(t)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT id, user_id, user_email, key_hash").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "user_email", "key_hash", "key_prefix", "role",
			"created_at", "last_used_at", "revoked_at", "is_active",
		}))

	_, err := svc.LookupByHash(context.Background(), HashKey("dynamo-sk-0123456789abcdef0123456789abcdef0123456789abcdef"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
