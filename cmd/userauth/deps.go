// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/holomush/userauth/internal/observability"
	"github.com/holomush/userauth/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener opens the identity store.
	// Default: store.Open
	StoreOpener func(ctx context.Context, databaseURL string, opts store.Options) (*store.Store, error)

	// APIServerFactory creates the HTTP API server.
	// Default: api.NewServer
	APIServerFactory func(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) APIServer

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// OnReady is called once both servers are listening.
	OnReady func(apiAddr, metricsAddr string)
}

// APIServer interface wraps the methods used by serve from api.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer interface wraps the methods used by serve from
// observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// MigratorIface wraps the methods used by the migrate command from
// store.Migrator.
type MigratorIface interface {
	Dialect() store.Dialect
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// migratorFactory opens a migrator for a database URL. Tests replace it.
var migratorFactory = func(databaseURL string) (MigratorIface, error) {
	return store.NewMigrator(databaseURL)
}
