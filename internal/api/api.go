// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package api serves the userauth HTTP API: registration, login and token
// confirmation, plus the OpenAPI document describing them.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/holomush/userauth/internal/auth"
	"github.com/holomush/userauth/internal/observability"
)

// DefaultPrefix is the path prefix of every API route.
const DefaultPrefix = "/api/v1"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Registrar creates identities.
type Registrar interface {
	Register(ctx context.Context, reg auth.Registration) (*auth.Identity, error)
}

// Sessions issues and resolves access tokens.
type Sessions interface {
	Login(ctx context.Context, email, password string) (*auth.Token, error)
	Resolve(ctx context.Context, token string) (*auth.Identity, error)
}

// Options configure an API.
type Options struct {
	// Prefix is prepended to the /users routes. Empty selects DefaultPrefix;
	// use "/" to mount them at the root.
	Prefix string
	// Domain is advertised as the server host in the OpenAPI document.
	Domain string
	// Version is reported in the OpenAPI document.
	Version string
	// CORSOrigins lists allowed origins; entries may be glob patterns.
	CORSOrigins []string
	// Metrics records request and outcome counters. May be nil.
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// API holds the HTTP handlers and their collaborators.
type API struct {
	registrar Registrar
	sessions  Sessions
	prefix    string
	domain    string
	version   string
	cors      *corsPolicy
	metrics   *observability.Metrics
	logger    *slog.Logger
	openapi   []byte
}

// New creates an API. Both services are required.
func New(registrar Registrar, sessions Sessions, opts Options) (*API, error) {
	if registrar == nil {
		return nil, invalidDependency("registrar")
	}
	if sessions == nil {
		return nil, invalidDependency("sessions")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cors, err := newCORSPolicy(opts.CORSOrigins)
	if err != nil {
		return nil, err
	}

	a := &API{
		registrar: registrar,
		sessions:  sessions,
		prefix:    normalizePrefix(opts.Prefix),
		domain:    opts.Domain,
		version:   opts.Version,
		cors:      cors,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}

	a.openapi, err = a.buildOpenAPI()
	if err != nil {
		return nil, err
	}
	return a, nil
}

func normalizePrefix(prefix string) string {
	if prefix == "" {
		return DefaultPrefix
	}
	trimmed := strings.Trim(prefix, "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

// Prefix returns the normalized route prefix.
func (a *API) Prefix() string {
	return a.prefix
}

// Routes returns the bare router without middleware.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	users := a.prefix + "/users"

	mux.HandleFunc("POST "+users+"/new", a.handleRegister)
	mux.HandleFunc("POST "+users+"/login", a.handleLogin)
	mux.HandleFunc("POST "+users+"/confirm_token", a.handleConfirmToken)

	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("GET /docs", a.handleDocs)
	mux.HandleFunc("GET /openapi.json", a.handleOpenAPI)
	mux.HandleFunc("/", a.handleNotFound)
	return mux
}

// Handler returns the router wrapped in the middleware chain, outermost
// first: tracing, request id, access log, metrics, CORS, panic recovery.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.Routes()
	h = a.recoverPanics(h)
	h = a.cors.middleware(h)
	h = a.recordMetrics(h)
	h = a.logAccess(h)
	h = assignRequestID(h)
	return otelhttp.NewHandler(h, "userauth.api")
}
