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

// Token is the response to a successful login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// SessionIssuer turns successful logins into access tokens and resolves
// presented tokens back into identities.
type SessionIssuer struct {
	authenticator *Authenticator
	tokens        TokenCodec
	identities    IdentityRepository
	ttl           time.Duration
	logger        *slog.Logger
}

// NewSessionIssuer creates a SessionIssuer. A ttl of zero selects DefaultTokenTTL.
func NewSessionIssuer(authenticator *Authenticator, tokens TokenCodec, identities IdentityRepository, ttl time.Duration) (*SessionIssuer, error) {
	return NewSessionIssuerWithLogger(authenticator, tokens, identities, ttl, slog.Default())
}

// NewSessionIssuerWithLogger creates a SessionIssuer that logs to logger.
func NewSessionIssuerWithLogger(
	authenticator *Authenticator,
	tokens TokenCodec,
	identities IdentityRepository,
	ttl time.Duration,
	logger *slog.Logger,
) (*SessionIssuer, error) {
	if authenticator == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("authenticator is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("token codec is required")
	}
	if identities == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("identity repository is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("logger is required")
	}
	if ttl < 0 {
		return nil, oops.Code("AUTH_INVALID_TTL").With("ttl", ttl.String()).Errorf("token ttl cannot be negative")
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	return &SessionIssuer{
		authenticator: authenticator,
		tokens:        tokens,
		identities:    identities,
		ttl:           ttl,
		logger:        logger,
	}, nil
}

// TTL returns the validity window applied to every issued token.
func (s *SessionIssuer) TTL() time.Duration {
	return s.ttl
}

// Login authenticates email and password and issues a bearer token.
func (s *SessionIssuer) Login(ctx context.Context, email, password string) (*Token, error) {
	identity, err := s.authenticator.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	access, err := s.tokens.Issue(identity.ID.String(), s.ttl)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue token").
			With("identity_id", identity.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "identity logged in", "identity_id", identity.ID.String())
	return &Token{AccessToken: access, TokenType: TokenTypeBearer}, nil
}

// Resolve validates token and returns the identity it was issued for.
// A valid token whose subject no longer exists fails with ErrIdentityNotFound.
func (s *SessionIssuer) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, oops.Code(CodeTokenInvalid).With("reason", "empty").Wrap(ErrTokenInvalid)
	}

	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(claims.SubjectID)
	if err != nil {
		return nil, oops.Code(CodeTokenInvalid).With("reason", "subject_id").Wrap(ErrTokenInvalid)
	}

	cred, err := s.identities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeIdentityNotFound).
				With("identity_id", id.String()).
				Wrap(ErrIdentityNotFound)
		}
		return nil, oops.Code("AUTH_RESOLVE_FAILED").
			With("operation", "get identity by id").
			With("identity_id", id.String()).
			Wrap(err)
	}
	return cred.Public(), nil
}
