// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import "errors"

// Sentinel errors for credential and token failures. Callers branch on these
// with errors.Is; the returned errors additionally carry oops codes and
// context for logging.
var (
	// ErrCorruptHash is returned when a stored credential record cannot be
	// decoded. This is never returned for a plain secret mismatch.
	ErrCorruptHash = errors.New("corrupt credential record")

	// ErrTokenMalformed is returned when a token is not structurally a JWT.
	ErrTokenMalformed = errors.New("token malformed")

	// ErrTokenSignatureInvalid is returned when a token's signature does not
	// verify against the service's key.
	ErrTokenSignatureInvalid = errors.New("token signature invalid")

	// ErrTokenExpired is returned when a token's expiry is at or before the
	// verification instant. No leeway is applied.
	ErrTokenExpired = errors.New("token expired")
)
