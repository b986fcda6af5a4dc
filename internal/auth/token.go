// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// SigningAlgorithm is the only algorithm tokens are signed or accepted with.
const SigningAlgorithm = "HS256"

// TokenTypeBearer is the token_type reported alongside access tokens.
const TokenTypeBearer = "bearer"

// DefaultTokenTTL is the access token validity window.
const DefaultTokenTTL = 8 * 24 * time.Hour

// Claims is the signed payload of an access token.
type Claims struct {
	SubjectID string `json:"subject_id"`
	jwt.RegisteredClaims
}

// TokenCodec encodes and validates access tokens.
type TokenCodec interface {
	// Issue signs a token for subjectID that expires after ttl.
	Issue(subjectID string, ttl time.Duration) (string, error)

	// Validate verifies token and returns its claims.
	Validate(token string) (*Claims, error)
}

// JWTCodec implements TokenCodec with HS256 JSON Web Tokens.
type JWTCodec struct {
	key    SigningKey
	now    func() time.Time
	parser *jwt.Parser
}

// TokenCodecOption configures a JWTCodec.
type TokenCodecOption func(*JWTCodec)

// WithClock overrides the codec's time source.
func WithClock(now func() time.Time) TokenCodecOption {
	return func(c *JWTCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec creates a JWTCodec that signs with key.
func NewTokenCodec(key SigningKey, opts ...TokenCodecOption) (*JWTCodec, error) {
	if key.IsZero() {
		return nil, oops.Code("AUTH_SIGNING_KEY_MISSING").Errorf("signing key is required")
	}
	c := &JWTCodec{key: key, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{SigningAlgorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// Issue signs a token for subjectID that expires ttl from now.
func (c *JWTCodec) Issue(subjectID string, ttl time.Duration) (string, error) {
	if subjectID == "" {
		return "", oops.Code("AUTH_TOKEN_ISSUE_FAILED").Errorf("subject id cannot be empty")
	}
	if ttl <= 0 {
		return "", oops.Code("AUTH_TOKEN_ISSUE_FAILED").With("ttl", ttl.String()).Errorf("ttl must be positive")
	}

	claims := &Claims{
		SubjectID: subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(c.now().Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key.bytes())
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_ISSUE_FAILED").With("operation", "sign token").Wrap(err)
	}
	return signed, nil
}

// Validate verifies the signature with the pinned algorithm and checks expiry.
func (c *JWTCodec) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := c.parser.ParseWithClaims(token, claims, c.keyFunc)
	if err != nil {
		return nil, mapJWTError(err)
	}
	if claims.SubjectID == "" {
		return nil, oops.Code(CodeTokenInvalid).With("reason", "missing subject_id").Wrap(ErrTokenInvalid)
	}
	return claims, nil
}

// keyFunc refuses anything but HMAC-SHA256, independently of the parser's
// method list.
func (c *JWTCodec) keyFunc(t *jwt.Token) (any, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, oops.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return c.key.bytes(), nil
}

// mapJWTError translates jwt parser errors into the token failure taxonomy.
// An expired token is only reported as expired when its signature verified.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return oops.Code(CodeTokenExpired).Wrap(ErrTokenExpired)
	}

	reason := "invalid token"
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		reason = "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		reason = "signature"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		reason = "unverifiable"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		reason = "missing claim"
	}
	return oops.Code(CodeTokenInvalid).With("reason", reason).Wrap(ErrTokenInvalid)
}

var _ TokenCodec = (*JWTCodec)(nil)
