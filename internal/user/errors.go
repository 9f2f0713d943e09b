// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package user

import "errors"

// Sentinel errors for the user domain. Callers branch on these with
// errors.Is; returned errors additionally carry oops codes and context for
// logging.
var (
	// ErrNotFound is returned when no user matches the given identifier.
	ErrNotFound = errors.New("user not found")

	// ErrDuplicateUser is returned when a create collides with an existing
	// external user id. The store's uniqueness constraint is the source of
	// truth, so losers of a concurrent registration race receive this
	// rather than a raw store error.
	ErrDuplicateUser = errors.New("user id already taken")

	// ErrValidation is returned when input fails shape checks before it
	// reaches the store.
	ErrValidation = errors.New("invalid user input")

	// ErrInvalidCredentials is returned on login when the user is unknown
	// or the secret does not match. The two cases are deliberately
	// indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized is returned when a token is invalid, expired, or
	// refers to an account that no longer exists.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStoreUnavailable is returned when the store cannot be reached or a
	// query exceeds its deadline. Callers may retry with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
)
