// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package user

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/observability"
)

// dummyCredentialRecord is a syntactically valid argon2id record used to
// equalize login timing when the user id is unknown. Verifying against it
// costs the same as a real verification and always fails.
const dummyCredentialRecord = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA" //nolint:gosec // not a credential

// Tokens issues and verifies bearer tokens. Satisfied by auth.TokenService.
type Tokens interface {
	Issue(subject string) (auth.Token, error)
	Verify(token string) (*auth.Claims, error)
}

// Service orchestrates registration, login, and token-gated operations on
// user records. It is stateless across calls and safe for concurrent use;
// the store's uniqueness constraint is the only cross-request coordination
// point.
type Service struct {
	repo    Repository
	hasher  auth.CredentialHasher
	tokens  Tokens
	logger  *slog.Logger
	metrics *observability.Metrics
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for operational events. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorded by the service. Nil metrics are a
// no-op.
func WithMetrics(m *observability.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates the orchestrator over a repository, a credential
// hasher, and a token service.
func NewService(repo Repository, hasher auth.CredentialHasher, tokens Tokens, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, oops.Errorf("repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("credential hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token service is required")
	}

	s := &Service{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register validates the draft, hashes its secret, inserts the user, and
// issues a token for the new account.
//
// A userId collision surfaces as ErrDuplicateUser without retry: uniqueness
// is a business fact, not a transient fault.
func (s *Service) Register(ctx context.Context, draft Draft) (*User, auth.Token, error) {
	if err := draft.Validate(); err != nil {
		s.metrics.RecordRegistration("invalid")
		return nil, auth.Token{}, err
	}

	record, err := s.hasher.Hash(draft.Secret)
	if err != nil {
		s.metrics.RecordRegistration("error")
		return nil, auth.Token{}, err
	}

	u := draft.user(record)
	if err := s.repo.Create(ctx, u); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateUser):
			s.metrics.RecordRegistration("duplicate")
		default:
			s.metrics.RecordRegistration("error")
		}
		return nil, auth.Token{}, err
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		// The row exists; the caller can still log in.
		s.metrics.RecordRegistration("error")
		return nil, auth.Token{}, err
	}

	s.metrics.RecordRegistration("ok")
	s.logger.InfoContext(ctx, "user registered", "user_id", u.UserID, "id", u.ID)
	return u, token, nil
}

// Login verifies the secret for the external user id and issues a token.
//
// An unknown user id and a wrong secret both return ErrInvalidCredentials;
// the two cases cost the same hashing work, so response timing does not
// reveal which part was wrong. Store faults propagate unchanged.
func (s *Service) Login(ctx context.Context, userID, secret string) (auth.Token, error) {
	u, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_, _ = s.hasher.Verify(secret, dummyCredentialRecord)
			s.metrics.RecordLogin("invalid")
			return auth.Token{}, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
		}
		s.metrics.RecordLogin("error")
		return auth.Token{}, err
	}

	ok, err := s.hasher.Verify(secret, u.CredentialHash)
	if err != nil {
		// Storage corruption, not user error. Log loudly and propagate.
		s.logger.ErrorContext(ctx, "stored credential record is corrupt", "user_id", u.UserID, "error", err)
		s.metrics.RecordLogin("error")
		return auth.Token{}, err
	}
	if !ok {
		s.metrics.RecordLogin("invalid")
		return auth.Token{}, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	if s.hasher.NeedsRehash(u.CredentialHash) {
		s.rehashCredential(ctx, u, secret)
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		s.metrics.RecordLogin("error")
		return auth.Token{}, err
	}

	s.metrics.RecordLogin("ok")
	s.logger.InfoContext(ctx, "user logged in", "user_id", u.UserID)
	return token, nil
}

// rehashCredential upgrades a stored record to current parameters after a
// successful verification. Best-effort: login already succeeded, so a
// failure here is logged and swallowed.
func (s *Service) rehashCredential(ctx context.Context, u *User, secret string) {
	record, err := s.hasher.Hash(secret)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort credential rehash failed",
			"operation", "rehash_credential", "user_id", u.UserID, "error", err)
		return
	}
	if err := s.repo.UpdateCredentialHash(ctx, u.ID, record); err != nil {
		s.logger.WarnContext(ctx, "best-effort credential rehash failed",
			"operation", "rehash_credential", "user_id", u.UserID, "error", err)
	}
}

// Authenticate verifies the token and resolves its subject to a live user.
//
// Every token failure and a since-deleted account all surface as
// ErrUnauthorized, so callers cannot distinguish a bad token from a removed
// account. Store faults propagate unchanged.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		s.logger.DebugContext(ctx, "token rejected", "error", err)
		s.metrics.RecordAuthentication("unauthorized")
		return nil, oops.Code("AUTH_UNAUTHORIZED").Wrap(ErrUnauthorized)
	}

	// Subjects are store-assigned UUIDs; anything else cannot match a row.
	if _, err := uuid.Parse(claims.Subject); err != nil {
		s.metrics.RecordAuthentication("unauthorized")
		return nil, oops.Code("AUTH_UNAUTHORIZED").Wrap(ErrUnauthorized)
	}

	u, err := s.repo.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.RecordAuthentication("unauthorized")
			return nil, oops.Code("AUTH_UNAUTHORIZED").Wrap(ErrUnauthorized)
		}
		s.metrics.RecordAuthentication("error")
		return nil, err
	}

	s.metrics.RecordAuthentication("ok")
	return u, nil
}

// UpdateProfile authenticates the token and applies the patch to the
// caller's own record. ID and UserID are not patchable.
func (s *Service) UpdateProfile(ctx context.Context, token string, patch Patch) (*User, error) {
	u, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, u.ID, patch)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "profile updated", "user_id", updated.UserID)
	return updated, nil
}

// DeleteAccount authenticates the token and hard-deletes the caller's
// record. Tokens already issued keep verifying until expiry, but
// Authenticate rejects them once the row is gone.
func (s *Service) DeleteAccount(ctx context.Context, token string) error {
	u, err := s.Authenticate(ctx, token)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, u.ID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "account deleted", "user_id", u.UserID)
	return nil
}

// GetUser retrieves a user by store-assigned id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetUserByUserID retrieves a user by external user id.
func (s *Service) GetUserByUserID(ctx context.Context, userID string) (*User, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// ListUsers returns all users ordered by creation time.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.repo.List(ctx)
}
