// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

// Package apikeys manages the engine's programmatic credentials: generation,
// hashing, lookup, revocation, and atomic rotation. Raw keys are returned
// exactly once at create/rotate time and are never stored.
package apikeys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dynamo-works/claude-engine/shared/logger"
	"github.com/dynamo-works/claude-engine/storage"
)

const (
	// KeyPrefix is the fixed prefix of every raw key
	KeyPrefix = "dynamo-sk-"

	// rawKeyBytes is the number of random bytes behind each key (48 hex chars)
	rawKeyBytes = 24

	// displayPrefixLen is how many characters of the raw key are stored for
	// display and audit
	displayPrefixLen = 12
)

// keyFormat matches exactly one well-formed raw key: dynamo-sk- plus 48
// lowercase hex characters, 58 characters total
var keyFormat = regexp.MustCompile(`^dynamo-sk-[0-9a-f]{48}$`)

// APIKey is one persisted key row. The raw key itself is never stored.
type APIKey struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	UserEmail  string     `json:"userEmail"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"keyPrefix"`
	Role       string     `json:"role"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
	IsActive   bool       `json:"isActive"`
}

// Service provides key operations against the shared store
type Service struct {
	db  *storage.DB
	log *logger.Logger
}

// NewService creates an API-key service. db may be nil (persistence
// disabled); all operations then fail with storage.ErrNoDatabase.
func NewService(db *storage.DB) *Service {
	return &Service{db: db, log: logger.New("apikeys")}
}

// GenerateRawKey creates a new random raw key
func GenerateRawKey() (string, error) {
	buf := make([]byte, rawKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key material: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(buf), nil
}

// IsValidKeyFormat reports whether raw is a well-formed dynamo-sk key
func IsValidKeyFormat(raw string) bool {
	return keyFormat.MatchString(raw)
}

// HashKey returns the SHA-256 hex digest of a raw key
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the stored display prefix of a raw key
func DisplayPrefix(raw string) string {
	if len(raw) < displayPrefixLen {
		return raw
	}
	return raw[:displayPrefixLen]
}

// userIDFromEmail derives the stable user id from an email local part
func userIDFromEmail(email string) (string, error) {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "", ErrInvalidEmail
	}
	return email[:at], nil
}

// Create mints a new active key for the given email and role. The returned
// raw key is shown to the caller exactly once.
func (s *Service) Create(ctx context.Context, email, role string) (*APIKey, string, error) {
	if s.db == nil {
		return nil, "", storage.ErrNoDatabase
	}

	userID, err := userIDFromEmail(email)
	if err != nil {
		return nil, "", err
	}

	raw, err := GenerateRawKey()
	if err != nil {
		return nil, "", err
	}

	key := &APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		UserEmail: email,
		KeyHash:   HashKey(raw),
		KeyPrefix: DisplayPrefix(raw),
		Role:      role,
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}

	_, err = s.db.Pool().ExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, user_email, key_hash, key_prefix, role, created_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
	`, key.ID, key.UserID, key.UserEmail, key.KeyHash, key.KeyPrefix, key.Role, key.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to insert api key: %w", err)
	}

	return key, raw, nil
}

// Revoke deactivates a key. The boolean reports whether anything changed,
// so a second revoke is a safe no-op returning false.
func (s *Service) Revoke(ctx context.Context, id string) (bool, error) {
	if s.db == nil {
		return false, storage.ErrNoDatabase
	}

	res, err := s.db.Pool().ExecContext(ctx, `
		UPDATE api_keys
		SET is_active = FALSE, revoked_at = NOW()
		WHERE id = $1 AND is_active
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to revoke api key: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Rotate atomically replaces an active key: the old row is locked and
// deactivated, a new active row is inserted carrying the same identity.
// Either both happen or neither.
func (s *Service) Rotate(ctx context.Context, id string) (*APIKey, string, error) {
	if s.db == nil {
		return nil, "", storage.ErrNoDatabase
	}

	raw, err := GenerateRawKey()
	if err != nil {
		return nil, "", err
	}

	newKey := &APIKey{
		ID:        uuid.NewString(),
		KeyHash:   HashKey(raw),
		KeyPrefix: DisplayPrefix(raw),
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		// Lock the original row so two rotations cannot race
		row := tx.QueryRowContext(ctx, `
			SELECT user_id, user_email, role
			FROM api_keys
			WHERE id = $1 AND is_active
			FOR UPDATE
		`, id)
		if err := row.Scan(&newKey.UserID, &newKey.UserEmail, &newKey.Role); err != nil {
			if err == sql.ErrNoRows {
				return ErrKeyNotFound
			}
			return fmt.Errorf("failed to lock api key: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE api_keys SET is_active = FALSE, revoked_at = NOW() WHERE id = $1
		`, id); err != nil {
			return fmt.Errorf("failed to deactivate api key: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO api_keys (id, user_id, user_email, key_hash, key_prefix, role, created_at, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		`, newKey.ID, newKey.UserID, newKey.UserEmail, newKey.KeyHash, newKey.KeyPrefix, newKey.Role, newKey.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert rotated api key: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, "", err
	}

	return newKey, raw, nil
}

// LookupByHash finds the active key with the given hash. On success the
// last-used timestamp is updated without blocking the caller.
func (s *Service) LookupByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	if s.db == nil {
		return nil, storage.ErrNoDatabase
	}

	key := &APIKey{}
	row := s.db.Pool().QueryRowContext(ctx, `
		SELECT id, user_id, user_email, key_hash, key_prefix, role, created_at, last_used_at, revoked_at, is_active
		FROM api_keys
		WHERE key_hash = $1 AND is_active
	`, keyHash)
	if err := row.Scan(&key.ID, &key.UserID, &key.UserEmail, &key.KeyHash, &key.KeyPrefix,
		&key.Role, &key.CreatedAt, &key.LastUsedAt, &key.RevokedAt, &key.IsActive); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}

	// Touch last_used_at off the request path
	go func(id string) {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.db.Pool().ExecContext(touchCtx,
			`UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id); err != nil {
			s.log.Warn("", "failed to update api key last_used_at", map[string]interface{}{
				"key_id": id, "error": err.Error(),
			})
		}
	}(key.ID)

	return key, nil
}

// List returns all keys, newest first. Only the display prefix of each key
// is exposed.
func (s *Service) List(ctx context.Context) ([]APIKey, error) {
	if s.db == nil {
		return nil, storage.ErrNoDatabase
	}

	rows, err := s.db.Pool().QueryContext(ctx, `
		SELECT id, user_id, user_email, key_prefix, role, created_at, last_used_at, revoked_at, is_active
		FROM api_keys
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.UserEmail, &k.KeyPrefix, &k.Role,
			&k.CreatedAt, &k.LastUsedAt, &k.RevokedAt, &k.IsActive); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
