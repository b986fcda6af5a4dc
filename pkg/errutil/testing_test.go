// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/holomush/userauth/pkg/errutil"
)

func TestAssertErrorCode(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		errutil.AssertErrorCode(t, oops.Code("STORE_URL_INVALID").Errorf("bad url"), "STORE_URL_INVALID")
	})

	t.Run("wrapped with context keeps inner code", func(t *testing.T) {
		inner := oops.Code("AUTH_INVALID_HASH_COST").Errorf("cost out of range")
		err := oops.With("operation", "create password hasher").Wrap(inner)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH_COST")
	})
}

func TestAssertErrorContext(t *testing.T) {
	inner := oops.With("addr", "127.0.0.1:8000").Errorf("listen failed")
	err := oops.With("operation", "start api server").Wrap(inner)

	errutil.AssertErrorContext(t, err, "operation", "start api server")
	errutil.AssertErrorContext(t, err, "addr", "127.0.0.1:8000")
}
