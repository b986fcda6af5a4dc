// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/userauth/internal/auth"
	"github.com/holomush/userauth/internal/observability"
)

func invalidDependency(name string) error {
	return oops.Code("API_INVALID_DEPENDENCY").
		With("dependency", name).
		Errorf("%s is required", name)
}

// handleRegister serves POST {prefix}/users/new.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg auth.Registration
	if status, body := decodeJSON(w, r, &reg); body != nil {
		a.countRegistration(observability.OutcomeInvalid)
		writeJSON(w, status, body)
		return
	}

	identity, err := a.registrar.Register(r.Context(), reg)
	a.countRegistration(outcome(err))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.logger.InfoContext(r.Context(), "user registered", "identity_id", identity.ID.String())
	writeJSON(w, http.StatusCreated, Envelope[*auth.Identity]{
		Message: MsgUserCreated,
		Data:    identity,
	})
}

// decodeJSON reads a JSON body into dst. On failure it returns the status
// and body to send; body is nil on success.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) (int, *ErrorResponse) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return 0, nil
	}

	var (
		typeErr *json.UnmarshalTypeError
		tooBig  *http.MaxBytesError
	)
	switch {
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			return http.StatusBadRequest, &ErrorResponse{Detail: MsgMalformedBody}
		}
		return http.StatusBadRequest, &ErrorResponse{
			Detail: MsgValidationFailed,
			Errors: map[string]string{field: "must be " + jsonKind(typeErr.Type.Kind().String())},
		}
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge, &ErrorResponse{Detail: "Request body too large"}
	default:
		return http.StatusBadRequest, &ErrorResponse{Detail: MsgMalformedBody}
	}
}

func jsonKind(kind string) string {
	switch {
	case strings.HasPrefix(kind, "int"), strings.HasPrefix(kind, "uint"):
		return "an integer"
	case strings.HasPrefix(kind, "float"):
		return "a number"
	case kind == "bool":
		return "a boolean"
	default:
		return "a " + kind
	}
}

// handleLogin serves POST {prefix}/users/login. It accepts the OAuth2
// password form, where the email may arrive as username.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		writeDetail(w, http.StatusBadRequest, MsgMalformedBody)
		return
	}

	email := r.PostForm.Get("email")
	if email == "" {
		email = r.PostForm.Get("username")
	}
	password := r.PostForm.Get("password")

	token, err := a.sessions.Login(r.Context(), email, password)
	a.countLogin(outcome(err))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope[*auth.Token]{
		Message: MsgUserLoggedIn,
		Data:    token,
	})
}

func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return oops.Code("API_FORM_INVALID").Wrap(err)
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return oops.Code("API_FORM_INVALID").Wrap(err)
	}
	return nil
}

// handleConfirmToken serves POST {prefix}/users/confirm_token.
func (a *API) handleConfirmToken(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		a.countTokenCheck(outcome(auth.ErrTokenInvalid))
		writeUnauthorized(w, MsgNotAuthenticated)
		return
	}

	identity, err := a.sessions.Resolve(r.Context(), token)
	a.countTokenCheck(outcome(err))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, identity)
}

// bearerToken extracts the credentials of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/docs", http.StatusFound)
}

func (a *API) handleDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client may disconnect mid-write
	io.WriteString(w, docsPage)
}

func (a *API) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client may disconnect mid-write
	w.Write(a.openapi)
}

func (a *API) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeDetail(w, http.StatusNotFound, MsgNotFound)
}

const docsPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>userauth API</title>
</head>
<body>
<h1>userauth API</h1>
<p>The OpenAPI document is served at <a href="/openapi.json">/openapi.json</a>.</p>
<redoc spec-url="/openapi.json"></redoc>
<script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
</body>
</html>
`

func (a *API) countRegistration(result string) {
	if a.metrics != nil {
		a.metrics.RegistrationsTotal.WithLabelValues(result).Inc()
	}
}

func (a *API) countLogin(result string) {
	if a.metrics != nil {
		a.metrics.LoginsTotal.WithLabelValues(result).Inc()
	}
}

func (a *API) countTokenCheck(result string) {
	if a.metrics != nil {
		a.metrics.TokenChecksTotal.WithLabelValues(result).Inc()
	}
}
