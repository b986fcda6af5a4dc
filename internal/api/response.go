// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/samber/oops"

	"github.com/holomush/userauth/internal/auth"
	"github.com/holomush/userauth/internal/observability"
	"github.com/holomush/userauth/pkg/errutil"
)

// Client-facing messages.
const (
	MsgUserCreated        = "user created successfully"
	MsgUserLoggedIn       = "user logged in successfully"
	MsgDuplicateEmail     = "User with that email already exists"
	MsgInvalidCredentials = "Invalid email or password"
	MsgUserNotFound       = "User not found"
	MsgNotAuthenticated   = "Not authenticated"
	MsgTokenInvalid       = "Could not validate credentials"
	MsgTokenExpired       = "Token has expired"
	MsgValidationFailed   = "Validation failed"
	MsgMalformedBody      = "Malformed request body"
	MsgNotFound           = "Not Found"
	MsgInternal           = "internal server error"
)

// Envelope wraps successful registration and login responses.
type Envelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
	// Errors maps field names to messages for validation failures.
	Errors map[string]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect mid-write
	json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, detail)
}

// writeError maps a service error onto a status code and body.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if verr, ok := auth.AsValidationError(err); ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Detail: MsgValidationFailed,
			Errors: verr.Fields,
		})
		return
	}

	switch {
	case errors.Is(err, auth.ErrDuplicateIdentifier):
		writeDetail(w, http.StatusBadRequest, MsgDuplicateEmail)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeDetail(w, http.StatusBadRequest, MsgInvalidCredentials)
	case errors.Is(err, auth.ErrTokenExpired):
		writeUnauthorized(w, MsgTokenExpired)
	case errors.Is(err, auth.ErrTokenInvalid):
		writeUnauthorized(w, MsgTokenInvalid)
	case errors.Is(err, auth.ErrIdentityNotFound):
		writeDetail(w, http.StatusNotFound, MsgUserNotFound)
	default:
		errutil.LogErrorContext(r.Context(), a.logger, "request failed",
			oops.With("method", r.Method).With("path", r.URL.Path).Wrap(err))
		writeDetail(w, http.StatusInternalServerError, MsgInternal)
	}
}

// outcome classifies err for the auth outcome counters.
func outcome(err error) string {
	if err == nil {
		return observability.OutcomeSuccess
	}
	if _, ok := auth.AsValidationError(err); ok {
		return observability.OutcomeInvalid
	}
	switch {
	case errors.Is(err, auth.ErrDuplicateIdentifier):
		return observability.OutcomeDuplicate
	case errors.Is(err, auth.ErrInvalidCredentials):
		return observability.OutcomeInvalidCredentials
	case errors.Is(err, auth.ErrTokenExpired):
		return observability.OutcomeExpired
	case errors.Is(err, auth.ErrTokenInvalid):
		return observability.OutcomeInvalid
	case errors.Is(err, auth.ErrIdentityNotFound):
		return observability.OutcomeNotFound
	default:
		return observability.OutcomeError
	}
}
