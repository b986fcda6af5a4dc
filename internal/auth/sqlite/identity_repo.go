// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sqlite implements the identity repository on an embedded SQLite
// database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/holomush/userauth/internal/auth"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// DSN returns the connection string for the database file at path.
func DSN(path string) string {
	return filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
}

// Open opens the database file at path. Writes are serialized through a
// single connection.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, oops.Code("SQLITE_PATH_REQUIRED").Errorf("database path is required")
	}
	db, err := sql.Open(DriverName, DSN(path))
	if err != nil {
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	return db, nil
}

// IdentityRepository implements auth.IdentityRepository using SQLite.
type IdentityRepository struct {
	db *sql.DB
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Create stores a new identity.
func (r *IdentityRepository) Create(ctx context.Context, cred *auth.Credential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (id, name, age, phone, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		cred.ID.String(),
		cred.Name,
		cred.Age,
		cred.Phone,
		cred.Email,
		cred.PasswordHash,
		cred.CreatedAt.UTC().UnixMicro(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("IDENTITY_DUPLICATE").
				With("email", cred.Email).
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
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, age, phone, email, password_hash, created_at
		FROM identities
		WHERE id = ?
	`, id.String())

	cred, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
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
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, age, phone, email, password_hash, created_at
		FROM identities
		WHERE email = ? COLLATE NOCASE
	`, email)

	cred, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
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
	result, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id.String())
	if err != nil {
		return oops.Code("IDENTITY_DELETE_FAILED").
			With("operation", "delete identity").
			With("id", id.String()).
			Wrap(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return oops.Code("IDENTITY_DELETE_FAILED").
			With("operation", "rows affected").
			With("id", id.String()).
			Wrap(err)
	}
	if n == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Ping verifies the database file is usable.
func (r *IdentityRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return oops.Code("IDENTITY_STORE_UNAVAILABLE").Wrap(err)
	}
	return nil
}

func scanCredential(row *sql.Row) (*auth.Credential, error) {
	var (
		idStr        string
		cred         auth.Credential
		createdMicro int64
	)
	err := row.Scan(&idStr, &cred.Name, &cred.Age, &cred.Phone, &cred.Email, &cred.PasswordHash, &createdMicro)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	cred.ID = id
	cred.CreatedAt = time.UnixMicro(createdMicro).UTC()
	return &cred, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// Compile-time interface check.
var _ auth.IdentityRepository = (*IdentityRepository)(nil)
