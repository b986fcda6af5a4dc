// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides the registration and authentication core of userauth.
//
// # Primitives
//
//   - PasswordHasher implementations (BcryptHasher, Argon2idHasher, and
//     MultiHasher which verifies either format) produce and check salted hashes.
//   - HashPool bounds concurrent hashing and exposes the context-aware
//     CredentialHasher port used by the services.
//   - JWTCodec issues and validates HS256 access tokens signed with an
//     immutable SigningKey.
//
// # Services
//
// Service types coordinate domain operations and receive every collaborator
// through their constructors:
//   - Authenticator - confirms an email and password pair
//   - SessionIssuer - login (token issuance) and token resolution
//   - Registrar - validated signup
//
// # Errors
//
// Every failure surfaced by the services wraps one of the sentinel errors in
// errors.go (or a *ValidationError) and carries a samber/oops code, so the
// transport layer can map failures with errors.Is alone.
package auth
