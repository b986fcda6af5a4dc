// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/userauth/internal/auth"
	"github.com/holomush/userauth/pkg/errutil"
)

// countingHasher records the peak number of concurrent calls.
type countingHasher struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	verifies atomic.Int32
	delay    time.Duration
	hashErr  error
}

func (h *countingHasher) enter() func() {
	n := h.inFlight.Add(1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(h.delay)
	return func() { h.inFlight.Add(-1) }
}

func (h *countingHasher) Hash(password string) (string, error) {
	defer h.enter()()
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "hashed:" + password, nil
}

func (h *countingHasher) Verify(password, hash string) (bool, error) {
	defer h.enter()()
	h.verifies.Add(1)
	return hash == "hashed:"+password, nil
}

func TestNewHashPool(t *testing.T) {
	t.Run("nil hasher rejected", func(t *testing.T) {
		_, err := auth.NewHashPool(nil, 1)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASHER")
	})

	t.Run("non-positive size defaults to CPU count", func(t *testing.T) {
		pool, err := auth.NewHashPool(&countingHasher{}, 0)
		require.NoError(t, err)
		assert.Positive(t, pool.Size())
	})
}

func TestHashPool_BoundsConcurrency(t *testing.T) {
	inner := &countingHasher{delay: 10 * time.Millisecond}
	pool, err := auth.NewHashPool(inner, 2)
	require.NoError(t, err)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hash, err := pool.Hash(ctx, "pw")
			assert.NoError(t, err)
			ok, err := pool.Verify(ctx, "pw", hash)
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, inner.peak.Load(), int32(2))
}

func TestHashPool_CancelledContext(t *testing.T) {
	inner := &countingHasher{delay: 50 * time.Millisecond}
	pool, err := auth.NewHashPool(inner, 1)
	require.NoError(t, err)

	// Occupy the only slot.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = pool.Hash(context.Background(), "slow")
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = pool.Hash(ctx, "pw")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	errutil.AssertErrorCode(t, err, "AUTH_HASH_POOL_WAIT")

	<-done
}

func TestHashPool_HashErrorIsHashingError(t *testing.T) {
	pool, err := auth.NewHashPool(&countingHasher{hashErr: errors.New("entropy exhausted")}, 1)
	require.NoError(t, err)

	_, err = pool.Hash(context.Background(), "pw")
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrHashing)
}

func TestHashPool_WithRealHasher(t *testing.T) {
	hasher, err := auth.NewHasher(auth.AlgorithmBcrypt, bcrypt.MinCost)
	require.NoError(t, err)
	pool, err := auth.NewHashPool(hasher, 2)
	require.NoError(t, err)

	ctx := context.Background()
	hash, err := pool.Hash(ctx, "Abcd123!")
	require.NoError(t, err)

	ok, err := pool.Verify(ctx, "Abcd123!", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = pool.Verify(ctx, "abcd123!", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPool_ReportsInFlight(t *testing.T) {
	var (
		mu      sync.Mutex
		current float64
		peak    float64
	)
	observe := func(delta float64) {
		mu.Lock()
		defer mu.Unlock()
		current += delta
		if current > peak {
			peak = current
		}
	}

	pool, err := auth.NewHashPool(&countingHasher{delay: 5 * time.Millisecond}, 2, auth.WithInFlight(observe))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = pool.Hash(context.Background(), "pw")
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, current)
	assert.Positive(t, peak)
	assert.LessOrEqual(t, peak, float64(2))
}
