// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/userauth/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool used by the repositories.
// pgxmock.PgxPoolIface satisfies it in unit tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// IdentityRepository implements auth.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	pool poolIface
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(pool poolIface) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Create stores a new identity. A concurrent or prior registration of the
// same email surfaces as auth.ErrDuplicateIdentifier via the unique index.
func (r *IdentityRepository) Create(ctx context.Context, cred *auth.Credential) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO identities (id, name, age, phone, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		cred.ID.String(),
		cred.Name,
		cred.Age,
		cred.Phone,
		cred.Email,
		cred.PasswordHash,
		cred.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("IDENTITY_DUPLICATE").
				With("email", cred.Email).
				With("constraint", pgErr.ConstraintName).
				Wrap(errors.Join(auth.ErrDuplicateIdentifier, err))
		}
		return oops.Code("IDENTITY_CREATE_FAILED").
			With("operation", "insert identity").
			With("id", cred.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an identity by ID.
func (r *IdentityRepository) GetByID(ctx context.Context, id uuid.UUID) (*auth.Credential, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, age, phone, email, password_hash, created_at
		FROM identities
		WHERE id = $1
	`, id.String())

	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_GET_BY_ID_FAILED").
			With("operation", "get identity by id").
			With("id", id.String()).
			Wrap(err)
	}
	return cred, nil
}

// GetByEmail retrieves an identity by email (case-insensitive).
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*auth.Credential, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, age, phone, email, password_hash, created_at
		FROM identities
		WHERE LOWER(email) = LOWER($1)
	`, email)

	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_GET_BY_EMAIL_FAILED").
			With("operation", "get identity by email").
			With("email", email).
			Wrap(err)
	}
	return cred, nil
}

// Delete removes an identity.
func (r *IdentityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("IDENTITY_DELETE_FAILED").
			With("operation", "delete identity").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Ping verifies the database is reachable.
func (r *IdentityRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return oops.Code("IDENTITY_STORE_UNAVAILABLE").Wrap(err)
	}
	return nil
}

// scanCredential scans a single row into a Credential.
// Callers are responsible for handling pgx.ErrNoRows.
func scanCredential(row pgx.Row) (*auth.Credential, error) {
	var (
		idStr        string
		name         string
		age          int
		phone        string
		email        string
		passwordHash string
		createdAt    time.Time
	)
	err := row.Scan(&idStr, &name, &age, &phone, &email, &passwordHash, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("IDENTITY_SCAN_FAILED").
			With("operation", "scan identity").
			Wrap(err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("IDENTITY_INVALID_ID").
			With("operation", "parse identity id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.Credential{
		Identity: auth.Identity{
			ID:        id,
			Name:      name,
			Age:       age,
			Phone:     phone,
			Email:     email,
			CreatedAt: createdAt.UTC(),
		},
		PasswordHash: passwordHash,
	}, nil
}

// Compile-time interface check.
var _ auth.IdentityRepository = (*IdentityRepository)(nil)
