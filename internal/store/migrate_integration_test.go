// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/userauth/internal/store"
)

// insertRaw writes an identity row directly, bypassing the repository.
func insertRaw(ctx context.Context, conn *pgx.Conn, email string) error {
	_, err := conn.Exec(ctx,
		`INSERT INTO identities (id, name, age, phone, email, password_hash) VALUES ($1, 'Raw Row', 30, '+15550100', $2, 'x')`,
		uuid.New(), email)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func tableExists(ctx context.Context, t *testing.T, conn *pgx.Conn) bool {
	t.Helper()
	var exists bool
	require.NoError(t, conn.QueryRow(ctx, `SELECT to_regclass('public.identities') IS NOT NULL`).Scan(&exists))
	return exists
}

func TestMigrator_PostgresSchemaLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("userauth_migrate"),
		postgres.WithUsername("userauth"),
		postgres.WithPassword("userauth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() { _ = pgContainer.Terminate(context.Background()) }()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := pgx.Connect(ctx, connStr)
	require.NoError(t, err)
	defer func() { _ = conn.Close(context.Background()) }()

	migrator, err := store.NewMigrator(connStr)
	require.NoError(t, err)
	defer func() { _ = migrator.Close() }()
	assert.Equal(t, store.DialectPostgres, migrator.Dialect())

	pending, err := migrator.PendingMigrations()
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, pending)
	assert.False(t, tableExists(ctx, t, conn))

	// Version 1 creates the table without the case-insensitive email index.
	require.NoError(t, migrator.Steps(1))
	require.True(t, tableExists(ctx, t, conn))
	require.NoError(t, insertRaw(ctx, conn, "dup@example.com"))
	require.NoError(t, insertRaw(ctx, conn, "DUP@example.com"))
	_, err = conn.Exec(ctx, `DELETE FROM identities`)
	require.NoError(t, err)

	// Version 2 enforces one identity per email regardless of case.
	require.NoError(t, migrator.Up())
	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	require.NoError(t, insertRaw(ctx, conn, "ada@example.com"))
	err = insertRaw(ctx, conn, "ADA@Example.com")
	assert.True(t, isUniqueViolation(err), "expected unique violation, got %v", err)

	applied, err := migrator.AppliedMigrations()
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, applied)

	// Rolling back the index step keeps the data; rolling back everything drops it.
	require.NoError(t, migrator.Steps(-1))
	require.NoError(t, insertRaw(ctx, conn, "ADA@example.com"))

	require.NoError(t, migrator.Down())
	version, _, err = migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, tableExists(ctx, t, conn))

	// Force records a version without running it.
	require.NoError(t, migrator.Force(2))
	version, dirty, err = migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
	assert.False(t, tableExists(ctx, t, conn), "force must not run migrations")
}
