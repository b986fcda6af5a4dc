// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"

	"github.com/samber/oops"
)

// MinSigningKeyBytes is the shortest accepted HS256 signing key.
const MinSigningKeyBytes = 32

const redacted = "[REDACTED]"

// SigningKey is the secret used to sign and verify access tokens.
// The zero value is not usable. Values are immutable once constructed.
type SigningKey struct {
	b []byte
}

// NewSigningKey copies secret into a SigningKey.
func NewSigningKey(secret []byte) (SigningKey, error) {
	if len(secret) < MinSigningKeyBytes {
		return SigningKey{}, oops.Code("AUTH_SIGNING_KEY_TOO_SHORT").
			With("min_bytes", MinSigningKeyBytes).
			With("got_bytes", len(secret)).
			Errorf("signing key must be at least %d bytes", MinSigningKeyBytes)
	}
	b := make([]byte, len(secret))
	copy(b, secret)
	return SigningKey{b: b}, nil
}

// GenerateSigningKey returns a random 32-byte key.
func GenerateSigningKey() (SigningKey, error) {
	b := make([]byte, MinSigningKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return SigningKey{}, oops.Code("AUTH_SIGNING_KEY_GENERATE_FAILED").Wrap(err)
	}
	return SigningKey{b: b}, nil
}

// GenerateSigningKeyString returns a URL-safe random secret suitable for
// the token.signing_key setting.
func GenerateSigningKeyString() (string, error) {
	b := make([]byte, MinSigningKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("AUTH_SIGNING_KEY_GENERATE_FAILED").Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// IsZero reports whether the key is unset.
func (k SigningKey) IsZero() bool {
	return len(k.b) == 0
}

// bytes returns the key material. It never leaves this package.
func (k SigningKey) bytes() []byte {
	return k.b
}

// String implements fmt.Stringer without revealing the key.
func (k SigningKey) String() string {
	return redacted
}

// GoString implements fmt.GoStringer without revealing the key.
func (k SigningKey) GoString() string {
	return "auth.SigningKey{" + redacted + "}"
}

// LogValue implements slog.LogValuer without revealing the key.
func (k SigningKey) LogValue() slog.Value {
	return slog.StringValue(redacted)
}
