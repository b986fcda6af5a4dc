// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/samber/oops"
)

// dummyPassword is hashed once per Authenticator to produce the hash that
// unknown identifiers are verified against.
//
//nolint:gosec // G101: not a credential, never matches a stored identity.
const dummyPassword = "userauth-timing-equalizer"

// Authenticator confirms an identifier and password pair.
type Authenticator struct {
	identities IdentityRepository
	hasher     CredentialHasher
	logger     *slog.Logger

	dummyMu   sync.Mutex
	dummyHash string
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(identities IdentityRepository, hasher CredentialHasher) (*Authenticator, error) {
	return NewAuthenticatorWithLogger(identities, hasher, slog.Default())
}

// NewAuthenticatorWithLogger creates an Authenticator that logs to logger.
func NewAuthenticatorWithLogger(identities IdentityRepository, hasher CredentialHasher, logger *slog.Logger) (*Authenticator, error) {
	if identities == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("identity repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("credential hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("logger is required")
	}
	return &Authenticator{identities: identities, hasher: hasher, logger: logger}, nil
}

// Authenticate returns the identity registered under email if password
// matches. Unknown emails and wrong passwords both fail with
// ErrInvalidCredentials, and both pay for one password verification.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	normalized, normErr := NormalizeEmail(email)
	if normErr != nil {
		a.burnVerify(ctx, password)
		return nil, invalidCredentials()
	}

	cred, err := a.identities.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.burnVerify(ctx, password)
			return nil, invalidCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get identity by email").
			Wrap(err)
	}

	valid, err := a.hasher.Verify(ctx, password, cred.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("identity_id", cred.ID.String()).
			Wrap(err)
	}
	if !valid {
		a.logger.DebugContext(ctx, "password mismatch", "identity_id", cred.ID.String())
		return nil, invalidCredentials()
	}

	return cred.Public(), nil
}

// burnVerify runs a verification whose result is discarded so that a
// missing identity costs the same as a wrong password.
func (a *Authenticator) burnVerify(ctx context.Context, password string) {
	hash, err := a.dummy(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "dummy hash unavailable", "error", err)
		return
	}
	_, _ = a.hasher.Verify(ctx, password, hash) //nolint:errcheck // result intentionally discarded
}

// dummy returns the cached dummy hash, computing it on first use. A failed
// computation is not cached; the next unknown identifier tries again.
func (a *Authenticator) dummy(ctx context.Context) (string, error) {
	a.dummyMu.Lock()
	defer a.dummyMu.Unlock()
	if a.dummyHash != "" {
		return a.dummyHash, nil
	}
	hash, err := a.hasher.Hash(ctx, dummyPassword)
	if err != nil {
		return "", err
	}
	a.dummyHash = hash
	return hash, nil
}
