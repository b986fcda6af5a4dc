// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Identity is the public view of a registered user. It carries no
// credential material and is safe to return to clients.
type Identity struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Credential is the persisted record behind an Identity.
type Credential struct {
	Identity
	PasswordHash string
}

// Public returns a copy of the identity without credential material.
func (c *Credential) Public() *Identity {
	id := c.Identity
	return &id
}

// IdentityRepository manages identity persistence.
type IdentityRepository interface {
	// Create stores a new credential. Returns an error wrapping
	// ErrDuplicateIdentifier if the email is already registered.
	Create(ctx context.Context, cred *Credential) error

	// GetByID retrieves a credential by identity ID.
	// Returns ErrNotFound if no identity has the given ID.
	GetByID(ctx context.Context, id uuid.UUID) (*Credential, error)

	// GetByEmail retrieves a credential by email (case-insensitive).
	// Returns ErrNotFound if no identity has the given email.
	GetByEmail(ctx context.Context, email string) (*Credential, error)

	// Delete removes an identity.
	// Returns ErrNotFound if no identity has the given ID.
	Delete(ctx context.Context, id uuid.UUID) error
}
