// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Claims are the registered claims carried by Warden tokens. The Subject
// holds the store-assigned user id.
type Claims struct {
	jwt.RegisteredClaims
}

// Token is an issued bearer token together with its expiry instant, so
// callers can report the deadline without re-parsing the token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenService issues and verifies HS256 bearer tokens. The signing key and
// token lifetime are fixed at construction and never change afterward.
type TokenService struct {
	key   []byte
	ttl   time.Duration
	clock func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source used for issuing and validating
// tokens. Tests use this to cross expiry boundaries without sleeping.
func WithClock(clock func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.clock = clock
	}
}

// NewTokenService creates a TokenService with the given signing key and
// token lifetime. The key is copied so later mutation by the caller cannot
// affect issued or verified tokens.
func NewTokenService(key []byte, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if len(key) == 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("signing key is required")
	}
	if ttl <= 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("token ttl must be positive, got %s", ttl)
	}

	s := &TokenService{
		key:   append([]byte(nil), key...),
		ttl:   ttl,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for the subject with iat set to the current clock
// reading and exp set to iat plus the configured lifetime.
func (s *TokenService) Issue(subject string) (Token, error) {
	if subject == "" {
		return Token{}, oops.Code("TOKEN_ISSUE_FAILED").Errorf("subject cannot be empty")
	}

	now := s.clock()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return Token{}, oops.Code("TOKEN_ISSUE_FAILED").With("subject", subject).Wrap(err)
	}
	return Token{Value: signed, ExpiresAt: expiresAt}, nil
}

// Verify parses and validates a token, returning its claims.
//
// Failures are classified by sentinel: ErrTokenMalformed for structural
// garbage, ErrTokenSignatureInvalid for tampered tokens, wrong keys, or
// unexpected signing algorithms, and ErrTokenExpired once exp is at or
// before the clock reading. Expiry is strict; no leeway is applied.
func (s *TokenService) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, oops.Code("TOKEN_MALFORMED").Wrap(ErrTokenMalformed)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, oops.Code("TOKEN_SIGNATURE_INVALID").Wrap(ErrTokenSignatureInvalid)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, oops.Code("TOKEN_EXPIRED").Wrap(ErrTokenExpired)
		default:
			return nil, oops.Code("TOKEN_INVALID").Wrap(err)
		}
	}
	return claims, nil
}
