// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"sort"
	"strings"

	"github.com/samber/oops"
)

// Error codes attached to failures returned by this package.
const (
	CodeInvalidCredentials  = "AUTH_INVALID_CREDENTIALS"
	CodeTokenInvalid        = "AUTH_TOKEN_INVALID"
	CodeTokenExpired        = "AUTH_TOKEN_EXPIRED"
	CodeIdentityNotFound    = "AUTH_IDENTITY_NOT_FOUND"
	CodeDuplicateIdentifier = "AUTH_DUPLICATE_IDENTIFIER"
	CodeHashingFailed       = "AUTH_HASHING_FAILED"
	CodeValidationFailed    = "AUTH_VALIDATION_FAILED"
)

// ErrNotFound is returned by repositories when a requested identity does not exist.
var ErrNotFound = errors.New("not found")

// Failure kinds surfaced to the boundary layer. Errors returned by the
// services wrap exactly one of these, so callers can use errors.Is.
var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrTokenInvalid        = errors.New("token is invalid")
	ErrTokenExpired        = errors.New("token has expired")
	ErrIdentityNotFound    = errors.New("identity not found")
	ErrDuplicateIdentifier = errors.New("identifier already registered")
	ErrHashing             = errors.New("password hashing failed")
)

// ValidationError reports registration fields that failed validation.
// Fields maps the field name to a human readable message.
type ValidationError struct {
	Fields map[string]string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(e.Fields[name])
	}
	return b.String()
}

// add records a failure for field. The first message for a field wins.
func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// orNil returns the error as an oops error when any field failed, else nil.
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return oops.Code(CodeValidationFailed).With("fields", e.Fields).Wrap(e)
}

// AsValidationError extracts a ValidationError from err's chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}
