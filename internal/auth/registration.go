// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Registrar creates new identities.
type Registrar struct {
	identities IdentityRepository
	hasher     CredentialHasher
	logger     *slog.Logger
	now        func() time.Time
}

// NewRegistrar creates a Registrar.
func NewRegistrar(identities IdentityRepository, hasher CredentialHasher) (*Registrar, error) {
	return NewRegistrarWithLogger(identities, hasher, slog.Default())
}

// NewRegistrarWithLogger creates a Registrar that logs to logger.
func NewRegistrarWithLogger(identities IdentityRepository, hasher CredentialHasher, logger *slog.Logger) (*Registrar, error) {
	if identities == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("identity repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("credential hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("logger is required")
	}
	return &Registrar{identities: identities, hasher: hasher, logger: logger, now: time.Now}, nil
}

// Register validates reg, hashes its password and stores a new identity.
// The returned Identity is the persisted, normalized record.
func (r *Registrar) Register(ctx context.Context, reg Registration) (*Identity, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	reg = reg.normalized()

	_, err := r.identities.GetByEmail(ctx, reg.Email)
	switch {
	case err == nil:
		return nil, duplicateIdentifier(reg.Email)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "check existing email").
			Wrap(err)
	}

	hash, err := r.hasher.Hash(ctx, reg.Password)
	if err != nil {
		return nil, oops.Code(CodeHashingFailed).
			With("operation", "hash password").
			Wrap(err)
	}

	cred := &Credential{
		Identity: Identity{
			ID:        uuid.New(),
			Name:      reg.Name,
			Age:       reg.Age,
			Phone:     reg.Phone,
			Email:     reg.Email,
			CreatedAt: r.now().UTC().Truncate(time.Microsecond),
		},
		PasswordHash: hash,
	}

	if err := r.identities.Create(ctx, cred); err != nil {
		// Lost a race with a concurrent registration for the same email.
		if errors.Is(err, ErrDuplicateIdentifier) {
			return nil, duplicateIdentifier(reg.Email)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create identity").
			Wrap(err)
	}

	r.logger.InfoContext(ctx, "identity registered", "identity_id", cred.ID.String())
	return cred.Public(), nil
}

func duplicateIdentifier(email string) error {
	return oops.Code(CodeDuplicateIdentifier).
		With("email", email).
		Wrap(ErrDuplicateIdentifier)
}
