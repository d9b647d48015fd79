// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package apikeys

import "errors"

var (
	// ErrKeyNotFound is returned when no matching key exists
	ErrKeyNotFound = errors.New("api key not found")

	// ErrInvalidKeyFormat is returned when a presented key does not match
	// the dynamo-sk key format
	ErrInvalidKeyFormat = errors.New("invalid api key format")

	// ErrKeyRevoked is returned when the key exists but is no longer active
	ErrKeyRevoked = errors.New("api key revoked")

	// ErrInvalidEmail is returned when a key is created for an address with
	// no local part
	ErrInvalidEmail = errors.New("invalid email address")
)
