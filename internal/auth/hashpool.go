// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"runtime"

	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

// CredentialHasher is the context-aware hashing port used by the services.
type CredentialHasher interface {
	// Hash produces a salted hash of the password.
	Hash(ctx context.Context, password string) (string, error)

	// Verify reports whether password matches hash.
	Verify(ctx context.Context, password, hash string) (bool, error)
}

// HashPool bounds the number of concurrent hash and verify calls.
// Hashing is CPU bound; without a bound a burst of logins can starve
// every other request handler.
type HashPool struct {
	hasher PasswordHasher
	sem    *semaphore.Weighted
	size   int64
	// inFlight is told +1 when a call starts running and -1 when it ends.
	inFlight func(delta float64)
}

// HashPoolOption configures a HashPool.
type HashPoolOption func(*HashPool)

// WithInFlight reports running calls to fn, typically a gauge's Add.
func WithInFlight(fn func(delta float64)) HashPoolOption {
	return func(p *HashPool) {
		p.inFlight = fn
	}
}

// NewHashPool wraps hasher so that at most size calls run at once.
// A size of zero or less selects runtime.NumCPU().
func NewHashPool(hasher PasswordHasher, size int, opts ...HashPoolOption) (*HashPool, error) {
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_HASHER").Errorf("password hasher is required")
	}
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &HashPool{
		hasher:   hasher,
		sem:      semaphore.NewWeighted(int64(size)),
		size:     int64(size),
		inFlight: func(float64) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inFlight == nil {
		p.inFlight = func(float64) {}
	}
	return p, nil
}

// Size returns the maximum number of concurrent calls.
func (p *HashPool) Size() int {
	return int(p.size)
}

// Hash hashes password once a worker slot is free.
func (p *HashPool) Hash(ctx context.Context, password string) (string, error) {
	if err := p.acquire(ctx); err != nil {
		return "", err
	}
	defer p.release()

	hash, err := p.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, ErrHashing) {
			return "", err
		}
		return "", oops.Code(CodeHashingFailed).Wrap(errors.Join(ErrHashing, err))
	}
	return hash, nil
}

// Verify checks password against hash once a worker slot is free.
func (p *HashPool) Verify(ctx context.Context, password, hash string) (bool, error) {
	if err := p.acquire(ctx); err != nil {
		return false, err
	}
	defer p.release()

	return p.hasher.Verify(password, hash)
}

func (p *HashPool) acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return oops.Code("AUTH_HASH_POOL_WAIT").
			With("pool_size", p.size).
			Wrap(err)
	}
	p.inFlight(1)
	return nil
}

func (p *HashPool) release() {
	p.inFlight(-1)
	p.sem.Release(1)
}

var _ CredentialHasher = (*HashPool)(nil)
