// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

// Package auth provides credential management and session authentication.
//
// # Domain Types
//
// Users should be created with NewUser, which validates the display name
// and email and stamps a fresh ULID. Repository implementations receive
// pre-validated users.
//
// Passwords never reach this package in plaintext: callers submit a SHA-256
// hex digest, which a PasswordHasher combines with a per-user random salt.
// Session tokens are 256 hex characters; only their SHA-256 is stored.
//
// # Services
//
// Service coordinates the account lifecycle:
//   - Register - create an active account
//   - Login - verify credentials and replace the session token
//   - VerifySession, GetUser, Logout - operate on a presented session
//   - PatchDisplayName, PatchEmail, PatchPassword - authenticated updates
//
// Failures wrap the sentinel errors in errors.go; KindOf and Message map
// them to a failure kind and client-facing text.
package auth
