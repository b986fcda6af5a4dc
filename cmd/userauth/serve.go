// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/holomush/userauth/internal/api"
	"github.com/holomush/userauth/internal/auth"
	"github.com/holomush/userauth/internal/config"
	"github.com/holomush/userauth/internal/observability"
	"github.com/holomush/userauth/internal/store"
	"github.com/holomush/userauth/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the registration and authentication HTTP API together with the
observability server (metrics and health probes).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, nil)
		},
	}

	cmd.Flags().String("http-addr", "127.0.0.1:8000", "HTTP API listen address")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "metrics and health listen address (empty disables)")
	cmd.Flags().String("database-url", "", "database URL (sqlite:///path or postgres://...)")
	cmd.Flags().Bool("auto-migrate", true, "apply pending migrations on startup")
	cmd.Flags().String("api-prefix", api.DefaultPrefix, "path prefix for the API routes")

	return cmd
}

// runServeWithDeps runs the service until ctx is cancelled, a signal arrives,
// or a server fails. Nil deps use the production implementations.
func runServeWithDeps(ctx context.Context, cfg *config.Config, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &ServeDeps{}
	}

	if deps.StoreOpener == nil {
		deps.StoreOpener = store.Open
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) APIServer {
			return api.NewServer(addr, handler, readTimeout, writeTimeout)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	installPropagator()

	logger := slog.Default()
	slog.Info("starting userauth",
		"version", version,
		"environment", cfg.Environment,
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
	)

	opts := store.DefaultOptions()
	opts.ConnectAttempts = cfg.Database.ConnectAttempts
	opts.ConnectBackoff = cfg.Database.ConnectBackoff
	opts.MaxConns = cfg.Database.MaxConns
	opts.AutoMigrate = cfg.Database.AutoMigrate
	opts.Logger = logger

	identityStore, err := deps.StoreOpener(ctx, cfg.Database.URL, opts)
	if err != nil {
		return oops.With("operation", "open identity store").Wrap(err)
	}
	defer identityStore.Close()

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
	)
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, identityStore.Ping)
		metrics = obsServer.Metrics()
	}

	handler, err := buildHandler(cfg, identityStore, metrics, logger)
	if err != nil {
		return err
	}

	apiServer := deps.APIServerFactory(cfg.HTTP.Addr, handler, cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		return oops.With("operation", "start api server").Wrap(err)
	}

	var obsErrCh <-chan error
	metricsAddr := ""
	if obsServer != nil {
		obsErrCh, err = obsServer.Start()
		if err != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer stopCancel()
			if stopErr := apiServer.Stop(stopCtx); stopErr != nil {
				errutil.LogError(slog.Default(), "failed to stop api server during cleanup", stopErr)
			}
			return oops.With("operation", "start observability server").Wrap(err)
		}
		metricsAddr = obsServer.Addr()
	}

	go monitorServerErrors(ctx, cancel, apiErrCh, "api")
	if obsErrCh != nil {
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	if deps.OnReady != nil {
		deps.OnReady(apiServer.Addr(), metricsAddr)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		errutil.LogError(slog.Default(), "error stopping api server", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			errutil.LogError(slog.Default(), "error stopping observability server", err)
		}
	}

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return oops.Code("SERVER_FAILED").Wrap(cause)
	}

	slog.Info("userauth stopped")
	return nil
}

// buildHandler wires the auth services over store into the HTTP API.
func buildHandler(cfg *config.Config, identityStore *store.Store, metrics *observability.Metrics, logger *slog.Logger) (http.Handler, error) {
	key, generated, err := cfg.SigningKey()
	if err != nil {
		return nil, err //nolint:wrapcheck // config errors carry their own codes
	}
	if generated {
		slog.Warn("no signing key configured, using an ephemeral key; issued tokens will not survive a restart")
	}

	hasher, err := auth.NewHasher(cfg.Hashing.Algorithm, cfg.Hashing.Cost)
	if err != nil {
		return nil, oops.With("operation", "create password hasher").Wrap(err)
	}
	var poolOpts []auth.HashPoolOption
	if metrics != nil {
		poolOpts = append(poolOpts, auth.WithInFlight(metrics.HashesInFlight.Add))
	}
	pool, err := auth.NewHashPool(hasher, cfg.Hashing.Workers, poolOpts...)
	if err != nil {
		return nil, oops.With("operation", "create hash pool").Wrap(err)
	}

	codec, err := auth.NewTokenCodec(key)
	if err != nil {
		return nil, oops.With("operation", "create token codec").Wrap(err)
	}
	authenticator, err := auth.NewAuthenticatorWithLogger(identityStore.Identities, pool, logger)
	if err != nil {
		return nil, oops.With("operation", "create authenticator").Wrap(err)
	}
	issuer, err := auth.NewSessionIssuerWithLogger(authenticator, codec, identityStore.Identities, cfg.Token.TTL, logger)
	if err != nil {
		return nil, oops.With("operation", "create session issuer").Wrap(err)
	}
	registrar, err := auth.NewRegistrarWithLogger(identityStore.Identities, pool, logger)
	if err != nil {
		return nil, oops.With("operation", "create registrar").Wrap(err)
	}
	logger.Info("auth services ready",
		"hash_algorithm", cfg.Hashing.Algorithm,
		"hash_workers", pool.Size(),
		"token_ttl", issuer.TTL())

	a, err := api.New(registrar, issuer, api.Options{
		Prefix:      cfg.API.Prefix,
		Domain:      cfg.Domain,
		Version:     version,
		CORSOrigins: cfg.CORS.Origins,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		return nil, oops.With("operation", "create api").Wrap(err)
	}
	return a.Handler(), nil
}

// installPropagator makes otelhttp honour incoming W3C traceparent and
// baggage headers so request logs carry the caller's trace ids.
func installPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// monitorServerErrors cancels ctx with the first error a server reports.
func monitorServerErrors(ctx context.Context, cancel context.CancelCauseFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel(oops.With("server", serverName).Wrap(err))
		}
	case <-ctx.Done():
	}
}
