// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package user holds the Warden user entity, its persistence contract, and
// the Service that orchestrates registration, login, and token-gated
// profile operations on top of the auth primitives.
package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/samber/oops"
)

// Field length caps enforced before input reaches the store.
const (
	MaxUserIDLength = 64
	MaxEmailLength  = 254
)

// User is the durable user record.
//
// ID is assigned by the store at insert time and never reused. UserID is
// the caller-supplied external identifier; it is unique across all rows and
// immutable after creation. CredentialHash is the argon2id record for the
// user's secret and never leaves the service/repository boundary.
type User struct {
	ID             string
	UserID         string
	Name           string
	LastName       string
	Email          string
	Age            int
	Phone          string
	Address        *string
	PlaceBirth     *string
	BirthDate      time.Time
	CredentialHash string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Draft is the input for creating a user. Secret is the plaintext
// credential; it is hashed during registration and never stored.
type Draft struct {
	UserID     string
	Name       string
	LastName   string
	Email      string
	Age        int
	Phone      string
	Address    *string
	PlaceBirth *string
	BirthDate  time.Time
	Secret     string
}

// Validate checks the draft's shape before any hashing or store work.
// All failures wrap ErrValidation.
func (d Draft) Validate() error {
	if d.UserID == "" {
		return oops.Code("USER_VALIDATION").With("field", "user_id").
			Wrapf(ErrValidation, "user id cannot be empty")
	}
	if len(d.UserID) > MaxUserIDLength {
		return oops.Code("USER_VALIDATION").With("field", "user_id").With("max", MaxUserIDLength).
			Wrapf(ErrValidation, "user id must be at most %d characters", MaxUserIDLength)
	}
	if d.Name == "" {
		return oops.Code("USER_VALIDATION").With("field", "name").
			Wrapf(ErrValidation, "name cannot be empty")
	}
	if d.LastName == "" {
		return oops.Code("USER_VALIDATION").With("field", "last_name").
			Wrapf(ErrValidation, "last name cannot be empty")
	}
	if err := validateEmail(d.Email); err != nil {
		return err
	}
	if d.Age < 0 {
		return oops.Code("USER_VALIDATION").With("field", "age").
			Wrapf(ErrValidation, "age cannot be negative")
	}
	if d.Phone == "" {
		return oops.Code("USER_VALIDATION").With("field", "phone").
			Wrapf(ErrValidation, "phone cannot be empty")
	}
	if d.BirthDate.IsZero() {
		return oops.Code("USER_VALIDATION").With("field", "birth_date").
			Wrapf(ErrValidation, "birth date is required")
	}
	if d.Secret == "" {
		return oops.Code("USER_VALIDATION").With("field", "secret").
			Wrapf(ErrValidation, "secret cannot be empty")
	}
	return nil
}

// user builds the entity to insert. The store assigns ID and timestamps.
func (d Draft) user(credentialHash string) *User {
	return &User{
		UserID:         d.UserID,
		Name:           d.Name,
		LastName:       d.LastName,
		Email:          d.Email,
		Age:            d.Age,
		Phone:          d.Phone,
		Address:        d.Address,
		PlaceBirth:     d.PlaceBirth,
		BirthDate:      d.BirthDate,
		CredentialHash: credentialHash,
	}
}

// Patch is a partial profile update. Nil fields are left unchanged. There
// is deliberately no way to patch ID, UserID, or the credential hash
// through this type.
type Patch struct {
	Name       *string
	LastName   *string
	Email      *string
	Age        *int
	Phone      *string
	Address    *string
	PlaceBirth *string
	BirthDate  *time.Time
}

// Validate checks the set fields of the patch. All failures wrap
// ErrValidation.
func (p Patch) Validate() error {
	if p.Name != nil && *p.Name == "" {
		return oops.Code("USER_VALIDATION").With("field", "name").
			Wrapf(ErrValidation, "name cannot be empty")
	}
	if p.LastName != nil && *p.LastName == "" {
		return oops.Code("USER_VALIDATION").With("field", "last_name").
			Wrapf(ErrValidation, "last name cannot be empty")
	}
	if p.Email != nil {
		if err := validateEmail(*p.Email); err != nil {
			return err
		}
	}
	if p.Age != nil && *p.Age < 0 {
		return oops.Code("USER_VALIDATION").With("field", "age").
			Wrapf(ErrValidation, "age cannot be negative")
	}
	if p.Phone != nil && *p.Phone == "" {
		return oops.Code("USER_VALIDATION").With("field", "phone").
			Wrapf(ErrValidation, "phone cannot be empty")
	}
	if p.BirthDate != nil && p.BirthDate.IsZero() {
		return oops.Code("USER_VALIDATION").With("field", "birth_date").
			Wrapf(ErrValidation, "birth date cannot be zero")
	}
	return nil
}

// validateEmail checks syntax only. The store does not enforce email
// format, so this is the single gate.
func validateEmail(email string) error {
	if email == "" {
		return oops.Code("USER_VALIDATION").With("field", "email").
			Wrapf(ErrValidation, "email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("USER_VALIDATION").With("field", "email").With("max", MaxEmailLength).
			Wrapf(ErrValidation, "email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return oops.Code("USER_VALIDATION").With("field", "email").
			Wrapf(ErrValidation, "email is not a valid address")
	}
	return nil
}

// Repository manages user persistence. Implementations map store faults to
// the sentinel errors of this package.
type Repository interface {
	// Create inserts a new user and fills in the store-assigned ID,
	// CreatedAt, and UpdatedAt. Returns ErrDuplicateUser if the external
	// user id is already taken.
	Create(ctx context.Context, u *User) error

	// GetByID retrieves a user by store-assigned id.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByUserID retrieves a user by external user id.
	GetByUserID(ctx context.Context, userID string) (*User, error)

	// List returns all users ordered by creation time.
	List(ctx context.Context) ([]*User, error)

	// Update applies the set fields of patch to the user with the given id
	// and returns the updated row. ID and UserID are never modified.
	Update(ctx context.Context, id string, patch Patch) (*User, error)

	// UpdateCredentialHash replaces only the stored credential hash.
	UpdateCredentialHash(ctx context.Context, id, credentialHash string) error

	// Delete removes a user. Deleting an absent id returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}
