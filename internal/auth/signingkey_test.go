// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/userauth/internal/auth"
	"github.com/holomush/userauth/pkg/errutil"
)

func TestNewSigningKey(t *testing.T) {
	t.Run("short key rejected", func(t *testing.T) {
		_, err := auth.NewSigningKey([]byte("too-short"))
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_SIGNING_KEY_TOO_SHORT")
	})

	t.Run("input is copied", func(t *testing.T) {
		secret := bytes.Repeat([]byte("k"), 32)
		key, err := auth.NewSigningKey(secret)
		require.NoError(t, err)

		codec, err := auth.NewTokenCodec(key)
		require.NoError(t, err)
		token, err := codec.Issue("subject", auth.DefaultTokenTTL)
		require.NoError(t, err)

		secret[0] = 'x'

		_, err = codec.Validate(token)
		assert.NoError(t, err, "mutating the caller's slice must not change the key")
	})
}

func TestGenerateSigningKey(t *testing.T) {
	a, err := auth.GenerateSigningKey()
	require.NoError(t, err)
	b, err := auth.GenerateSigningKey()
	require.NoError(t, err)
	assert.False(t, a.IsZero())

	codecA, err := auth.NewTokenCodec(a)
	require.NoError(t, err)
	codecB, err := auth.NewTokenCodec(b)
	require.NoError(t, err)

	token, err := codecA.Issue("subject", auth.DefaultTokenTTL)
	require.NoError(t, err)
	_, err = codecB.Validate(token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid, "independently generated keys must differ")
}

func TestGenerateSigningKeyString(t *testing.T) {
	s, err := auth.GenerateSigningKeyString()
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(s)
	require.NoError(t, err)
	assert.Len(t, raw, auth.MinSigningKeyBytes)
}

func TestSigningKey_NeverPrinted(t *testing.T) {
	secret := []byte("super-secret-material-0123456789")
	key, err := auth.NewSigningKey(secret)
	require.NoError(t, err)

	assert.NotContains(t, fmt.Sprintf("%v", key), string(secret))
	assert.NotContains(t, fmt.Sprintf("%+v", key), string(secret))
	assert.NotContains(t, fmt.Sprintf("%#v", key), string(secret))

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("key", "signing_key", key)
	assert.NotContains(t, buf.String(), string(secret))
	assert.Contains(t, buf.String(), "[REDACTED]")
}
