// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package postgres implements user.Repository on top of PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/puddle/v2"
	"github.com/samber/oops"

	"github.com/wardenhq/warden/internal/observability"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/internal/user"
)

// DefaultQueryTimeout bounds a single statement when no override is given.
const DefaultQueryTimeout = 5 * time.Second

// UserRepository implements user.Repository using PostgreSQL.
type UserRepository struct {
	pool         store.Pool
	metrics      *observability.Metrics
	queryTimeout time.Duration
}

// Option configures a UserRepository.
type Option func(*UserRepository)

// WithMetrics records per-operation query durations.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *UserRepository) { r.metrics = m }
}

// WithQueryTimeout overrides DefaultQueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(r *UserRepository) { r.queryTimeout = d }
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool store.Pool, opts ...Option) *UserRepository {
	r := &UserRepository{pool: pool, queryTimeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create stores a new user. The database assigns ID, CreatedAt, and
// UpdatedAt, which are written back into u. A taken external user id
// surfaces as user.ErrDuplicateUser; the unique constraint is the
// arbiter under concurrent registration.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	defer r.observe("create", time.Now())

	ctx, cancel := r.writeCtx(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (
			user_id, name, last_name, email, age, phone,
			address, place_birth, birth_date, credential_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id::text, created_at, updated_at
	`,
		u.UserID,
		u.Name,
		u.LastName,
		u.Email,
		u.Age,
		u.Phone,
		u.Address,
		u.PlaceBirth,
		u.BirthDate,
		u.CredentialHash,
	)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_DUPLICATE").
				With("user_id", u.UserID).
				With("constraint", pgErr.ConstraintName).
				Wrapf(user.ErrDuplicateUser, "user id %q is already registered", u.UserID)
		}
		return wrapStoreErr("USER_CREATE_FAILED", "insert user", err)
	}
	return nil
}

// GetByID retrieves a user by store-assigned id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	defer r.observe("get_by_id", time.Now())

	// A string that cannot be a row id is an unknown id, not a query fault.
	if _, err := uuid.Parse(id); err != nil {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).
			Wrapf(user.ErrNotFound, "malformed user id")
	}

	ctx, cancel := r.queryCtx(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		SELECT id::text, user_id, name, last_name, email, age, phone,
		       address, place_birth, birth_date, credential_hash,
		       created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(user.ErrNotFound)
	}
	if err != nil {
		return nil, wrapStoreErr("USER_GET_FAILED", "get user by id", err)
	}
	return u, nil
}

// GetByUserID retrieves a user by external user id.
func (r *UserRepository) GetByUserID(ctx context.Context, userID string) (*user.User, error) {
	defer r.observe("get_by_user_id", time.Now())

	ctx, cancel := r.queryCtx(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		SELECT id::text, user_id, name, last_name, email, age, phone,
		       address, place_birth, birth_date, credential_hash,
		       created_at, updated_at
		FROM users
		WHERE user_id = $1
	`, userID)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", userID).Wrap(user.ErrNotFound)
	}
	if err != nil {
		return nil, wrapStoreErr("USER_GET_FAILED", "get user by user id", err)
	}
	return u, nil
}

// List returns all users ordered by creation time.
func (r *UserRepository) List(ctx context.Context) ([]*user.User, error) {
	defer r.observe("list", time.Now())

	ctx, cancel := r.queryCtx(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT id::text, user_id, name, last_name, email, age, phone,
		       address, place_birth, birth_date, credential_hash,
		       created_at, updated_at
		FROM users
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, wrapStoreErr("USER_LIST_FAILED", "list users", err)
	}
	defer rows.Close()

	users := make([]*user.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, wrapStoreErr("USER_LIST_FAILED", "scan user row", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("USER_ITERATE_FAILED", "iterate users", err)
	}
	return users, nil
}

// Update applies the set fields of patch and returns the updated row.
// ID and UserID are never part of the SET list.
func (r *UserRepository) Update(ctx context.Context, id string, patch user.Patch) (*user.User, error) {
	defer r.observe("update", time.Now())

	if _, err := uuid.Parse(id); err != nil {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).
			Wrapf(user.ErrNotFound, "malformed user id")
	}

	ctx, cancel := r.writeCtx(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		UPDATE users SET
			name        = COALESCE($2, name),
			last_name   = COALESCE($3, last_name),
			email       = COALESCE($4, email),
			age         = COALESCE($5, age),
			phone       = COALESCE($6, phone),
			address     = COALESCE($7, address),
			place_birth = COALESCE($8, place_birth),
			birth_date  = COALESCE($9, birth_date),
			updated_at  = now()
		WHERE id = $1
		RETURNING id::text, user_id, name, last_name, email, age, phone,
		          address, place_birth, birth_date, credential_hash,
		          created_at, updated_at
	`,
		id,
		patch.Name,
		patch.LastName,
		patch.Email,
		patch.Age,
		patch.Phone,
		patch.Address,
		patch.PlaceBirth,
		patch.BirthDate,
	)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(user.ErrNotFound)
	}
	if err != nil {
		return nil, wrapStoreErr("USER_UPDATE_FAILED", "update user", err)
	}
	return u, nil
}

// UpdateCredentialHash replaces only the stored credential hash.
func (r *UserRepository) UpdateCredentialHash(ctx context.Context, id, credentialHash string) error {
	defer r.observe("update_credential_hash", time.Now())

	if _, err := uuid.Parse(id); err != nil {
		return oops.Code("USER_NOT_FOUND").With("id", id).
			Wrapf(user.ErrNotFound, "malformed user id")
	}

	ctx, cancel := r.writeCtx(ctx)
	defer cancel()

	result, err := r.pool.Exec(ctx, `
		UPDATE users SET credential_hash = $2, updated_at = now()
		WHERE id = $1
	`, id, credentialHash)
	if err != nil {
		return wrapStoreErr("USER_UPDATE_CREDENTIAL_FAILED", "update credential hash", err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(user.ErrNotFound)
	}
	return nil
}

// Delete removes a user. Deleting an absent id reports user.ErrNotFound,
// so racing deletes resolve to one winner.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	defer r.observe("delete", time.Now())

	if _, err := uuid.Parse(id); err != nil {
		return oops.Code("USER_NOT_FOUND").With("id", id).
			Wrapf(user.ErrNotFound, "malformed user id")
	}

	ctx, cancel := r.writeCtx(ctx)
	defer cancel()

	result, err := r.pool.Exec(ctx, `
		DELETE FROM users WHERE id = $1
	`, id)
	if err != nil {
		return wrapStoreErr("USER_DELETE_FAILED", "delete user", err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(user.ErrNotFound)
	}
	return nil
}

// queryCtx bounds a read with the per-query deadline.
func (r *UserRepository) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.queryTimeout)
}

// writeCtx additionally detaches the caller's cancellation: an accepted
// write runs to completion instead of leaving the row half-applied.
func (r *UserRepository) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.queryTimeout)
}

// observe records the duration of one store operation.
func (r *UserRepository) observe(operation string, start time.Time) {
	r.metrics.ObserveStoreQuery(operation, time.Since(start).Seconds())
}

// scanUser scans a single user row. pgx.ErrNoRows passes through unchanged
// for callers to map with context.
func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID,
		&u.UserID,
		&u.Name,
		&u.LastName,
		&u.Email,
		&u.Age,
		&u.Phone,
		&u.Address,
		&u.PlaceBirth,
		&u.BirthDate,
		&u.CredentialHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").Wrap(err)
	}
	return &u, nil
}

// storeUnavailable reports whether err is an infrastructure fault rather
// than a logical query failure.
func storeUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, puddle.ErrClosedPool) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsConnectionException(pgErr.Code) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// wrapStoreErr wraps a driver error, classifying infrastructure faults as
// user.ErrStoreUnavailable so callers can tell an outage from a bad query.
func wrapStoreErr(code, operation string, err error) error {
	if storeUnavailable(err) {
		return oops.Code("STORE_UNAVAILABLE").
			With("operation", operation).
			Wrapf(user.ErrStoreUnavailable, "%s: %v", operation, err)
	}
	return oops.Code(code).With("operation", operation).Wrap(err)
}

// Compile-time interface check.
var _ user.Repository = (*UserRepository)(nil)
