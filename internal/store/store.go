// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store opens the identity store and manages its schema.
package store

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/userauth/internal/auth"
	"github.com/holomush/userauth/internal/auth/postgres"
	"github.com/holomush/userauth/internal/auth/sqlite"
	"github.com/holomush/userauth/internal/xdg"
)

// Dialect identifies a supported database family.
type Dialect string

// Supported dialects. The value doubles as the migrations subdirectory.
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Target is a parsed database URL.
type Target struct {
	Dialect Dialect
	// URL is the connection string handed to the driver.
	URL string
	// Path is the database file for DialectSQLite.
	Path string
}

// ParseURL classifies databaseURL by scheme.
func ParseURL(databaseURL string) (Target, error) {
	raw := strings.TrimSpace(databaseURL)
	if raw == "" {
		return Target{}, oops.Code("STORE_URL_REQUIRED").Errorf("database url is required")
	}

	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return Target{Dialect: DialectPostgres, URL: raw}, nil
	case strings.HasPrefix(raw, "pgx5://"):
		return Target{Dialect: DialectPostgres, URL: "postgres://" + strings.TrimPrefix(raw, "pgx5://")}, nil
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		if unescaped, err := url.PathUnescape(path); err == nil {
			path = unescaped
		}
		if path == "" {
			return Target{}, oops.Code("STORE_URL_INVALID").With("url", raw).Errorf("sqlite url has no path")
		}
		return Target{Dialect: DialectSQLite, URL: raw, Path: path}, nil
	}

	scheme, _, _ := strings.Cut(raw, "://")
	return Target{}, oops.Code("STORE_UNSUPPORTED_SCHEME").
		With("scheme", scheme).
		Errorf("unsupported database url scheme %q", scheme)
}

// migrateURL returns the URL form golang-migrate expects for t.
func (t Target) migrateURL() string {
	switch t.Dialect {
	case DialectPostgres:
		if rest, found := strings.CutPrefix(t.URL, "postgres://"); found {
			return "pgx5://" + rest
		}
		if rest, found := strings.CutPrefix(t.URL, "postgresql://"); found {
			return "pgx5://" + rest
		}
		return t.URL
	default:
		return "sqlite://" + t.Path
	}
}

// Redacted returns the URL with any password removed, for logging.
func (t Target) Redacted() string {
	u, err := url.Parse(t.URL)
	if err != nil {
		return string(t.Dialect) + "://<unparseable>"
	}
	return u.Redacted()
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return xdg.EnsureDir(dir)
}

// Store is an open identity store.
type Store struct {
	// Identities persists registered identities.
	Identities auth.IdentityRepository

	dialect Dialect
	ping    func(ctx context.Context) error
	close   func()
}

// Options tune Open.
type Options struct {
	// ConnectAttempts bounds how many times the first ping is tried.
	ConnectAttempts uint64
	// ConnectBackoff is the initial delay between attempts; it doubles.
	ConnectBackoff time.Duration
	// MaxConns caps the PostgreSQL pool size. Zero keeps the pgx default.
	MaxConns int32
	// AutoMigrate applies pending migrations before returning.
	AutoMigrate bool
	Logger      *slog.Logger
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		ConnectAttempts: 5,
		ConnectBackoff:  250 * time.Millisecond,
		Logger:          slog.Default(),
	}
}

// Open connects to databaseURL, waiting for the database to answer a ping.
func Open(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	target, err := ParseURL(databaseURL)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ConnectAttempts == 0 {
		opts.ConnectAttempts = 1
	}
	if opts.ConnectBackoff <= 0 {
		opts.ConnectBackoff = 250 * time.Millisecond
	}

	if opts.AutoMigrate {
		if err := migrateUp(databaseURL); err != nil {
			return nil, err
		}
	}

	var s *Store
	switch target.Dialect {
	case DialectPostgres:
		s, err = openPostgres(ctx, target, opts)
	default:
		s, err = openSQLite(ctx, target)
	}
	if err != nil {
		return nil, err
	}

	backoff := retry.WithMaxRetries(opts.ConnectAttempts-1, retry.NewExponential(opts.ConnectBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := s.ping(ctx); pingErr != nil {
			opts.Logger.WarnContext(ctx, "database not ready", "dialect", string(target.Dialect), "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		s.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("url", target.Redacted()).
			With("attempts", opts.ConnectAttempts).
			Wrap(err)
	}

	opts.Logger.InfoContext(ctx, "identity store ready", "dialect", string(target.Dialect), "url", target.Redacted())
	return s, nil
}

func openPostgres(ctx context.Context, target Target, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(target.URL)
	if err != nil {
		return nil, oops.Code("STORE_URL_INVALID").With("url", target.Redacted()).Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("url", target.Redacted()).Wrap(err)
	}
	repo := postgres.NewIdentityRepository(pool)
	return &Store{
		Identities: repo,
		dialect:    DialectPostgres,
		ping:       repo.Ping,
		close:      pool.Close,
	}, nil
}

func openSQLite(ctx context.Context, target Target) (*Store, error) {
	if err := ensureParentDir(target.Path); err != nil {
		return nil, err
	}
	db, err := sqlite.Open(ctx, target.Path)
	if err != nil {
		return nil, err
	}
	repo := sqlite.NewIdentityRepository(db)
	return &Store{
		Identities: repo,
		dialect:    DialectSQLite,
		ping:       repo.Ping,
		close:      closeDB(db),
	}, nil
}

func closeDB(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			slog.Warn("failed to close sqlite database", "error", err)
		}
	}
}

// Dialect reports the database family behind the store.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Close releases the underlying connections.
func (s *Store) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// migrateUp applies every pending migration for databaseURL.
func migrateUp(databaseURL string) (err error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return m.Up()
}
