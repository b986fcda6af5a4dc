// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/userauth/internal/auth"
)

// newFastPool returns a hash pool backed by minimum-cost bcrypt.
func newFastPool(t *testing.T) *auth.HashPool {
	t.Helper()
	hasher, err := auth.NewHasher(auth.AlgorithmBcrypt, bcrypt.MinCost)
	require.NoError(t, err)
	pool, err := auth.NewHashPool(hasher, 4)
	require.NoError(t, err)
	return pool
}

// memoryRepo is an in-memory IdentityRepository with a unique email index.
type memoryRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]auth.Credential
	byEmail map[string]uuid.UUID
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		byID:    make(map[uuid.UUID]auth.Credential),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (r *memoryRepo) Create(_ context.Context, cred *auth.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(cred.Email)
	if _, exists := r.byEmail[key]; exists {
		return auth.ErrDuplicateIdentifier
	}
	r.byID[cred.ID] = *cred
	r.byEmail[key] = cred.ID
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*auth.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &cred, nil
}

func (r *memoryRepo) GetByEmail(_ context.Context, email string) (*auth.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cred := r.byID[id]
	return &cred, nil
}

func (r *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	delete(r.byEmail, strings.ToLower(cred.Email))
	delete(r.byID, id)
	return nil
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
