// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// ErrEmptySecret is returned when attempting to hash an empty secret.
var ErrEmptySecret = oops.Code("AUTH_EMPTY_SECRET").Errorf("secret cannot be empty")

// CredentialHasher hashes and verifies plaintext secrets.
type CredentialHasher interface {
	// Hash produces a self-describing argon2id record for the secret.
	// Each call salts independently, so equal secrets yield distinct records.
	Hash(secret string) (string, error)

	// Verify checks the secret against a stored record.
	// Returns (true, nil) on match, (false, nil) on mismatch, and
	// (false, ErrCorruptHash) when the record cannot be decoded.
	Verify(secret, record string) (bool, error)

	// NeedsRehash reports whether the record was produced with weaker
	// parameters than the current defaults, or by another algorithm.
	NeedsRehash(record string) bool
}

// Argon2idHasher implements CredentialHasher using argon2id.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id record for the secret in PHC string format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<digest>
func (h *Argon2idHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").With("operation", "generate salt").Wrap(err)
	}

	digest := argon2.IDKey([]byte(secret), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)

	return encoded, nil
}

// Verify checks the secret against a stored record.
// The record's own parameters drive the computation, so records hashed under
// older defaults still verify.
func (h *Argon2idHasher) Verify(secret, record string) (bool, error) {
	params, err := parseRecord(record)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(secret), params.salt, params.time, params.memory, params.threads, params.keyLen())

	if subtle.ConstantTimeCompare(computed, params.digest) == 1 {
		return true, nil
	}
	return false, nil
}

// NeedsRehash reports whether the record should be rehashed under current
// parameters. Undecodable records report true; the subsequent Verify will
// fail loudly with ErrCorruptHash.
func (h *Argon2idHasher) NeedsRehash(record string) bool {
	params, err := parseRecord(record)
	if err != nil {
		return true
	}
	return params.memory < argon2Memory || params.time < argon2Time
}

// argon2Record holds the decoded fields of a PHC argon2id string.
type argon2Record struct {
	version int
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	digest  []byte
}

func (r argon2Record) keyLen() uint32 {
	return uint32(len(r.digest))
}

// parseRecord decodes a PHC argon2id string. All malformations wrap
// ErrCorruptHash so callers can tell corruption apart from a mismatch.
func parseRecord(record string) (argon2Record, error) {
	var out argon2Record

	parts := strings.Split(record, "$")
	if len(parts) != 6 {
		return out, oops.Code("AUTH_CORRUPT_HASH").Wrapf(ErrCorruptHash, "invalid record format")
	}

	if parts[1] != "argon2id" {
		return out, oops.Code("AUTH_CORRUPT_HASH").Wrapf(ErrCorruptHash, "unsupported hash algorithm: %s", parts[1])
	}

	if _, err := fmt.Sscanf(parts[2], "v=%d", &out.version); err != nil {
		return out, oops.Code("AUTH_CORRUPT_HASH").Wrapf(ErrCorruptHash, "invalid version field")
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &out.memory, &out.time, &threads); err != nil {
		return out, oops.Code("AUTH_CORRUPT_HASH").Wrapf(ErrCorruptHash, "invalid parameter field")
	}

	// Reject threads that would silently truncate in the uint8 conversion.
	if threads > 255 {
		return out, oops.Code("AUTH_CORRUPT_HASH").Wrapf(ErrCorruptHash, "threads value %d exceeds uint8 max", threads)
	}
	out.threads = uint8(threads)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return out, oops.Code("AUTH_CORRUPT_HASH").Wrapf(ErrCorruptHash, "invalid salt encoding")
	}
	out.salt = salt

	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return out, oops.Code("AUTH_CORRUPT_HASH").Wrapf(ErrCorruptHash, "invalid digest encoding")
	}

	// Guard the uint32 conversion of the digest length.
	if len(digest) == 0 || len(digest) > 1<<30 {
		return out, oops.Code("AUTH_CORRUPT_HASH").Wrapf(ErrCorruptHash, "invalid digest length: %d", len(digest))
	}
	out.digest = digest

	return out, nil
}

// Compile-time interface check.
var _ CredentialHasher = (*Argon2idHasher)(nil)
