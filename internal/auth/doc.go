// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package auth provides the credential and token primitives for Warden.
//
// # Credential Hashing
//
// CredentialHasher hashes plaintext secrets into self-describing argon2id
// records and verifies candidates against stored records in constant time.
// Records are opaque to callers; corruption of a stored record surfaces as
// ErrCorruptHash, which is distinct from a plain mismatch.
//
// # Tokens
//
// TokenService issues and verifies HS256 bearer tokens. The signing key and
// lifetime are fixed at construction. Verification failures are classified
// as malformed, signature-invalid, or expired so callers can decide what to
// log and what to surface.
//
// Neither side of this package ever logs or returns plaintext secrets.
package auth
