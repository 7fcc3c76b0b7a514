// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package auth

import (
	"errors"
)

// Persistence errors. Repository implementations wrap these so the service
// can classify storage outcomes with errors.Is.
var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates the email uniqueness constraint.
	ErrConflict = errors.New("unique constraint violation")
)

// Failure kinds returned by Service operations.
var (
	ErrValidation       = errors.New("bad request - validation failure")
	ErrUnauthorized     = errors.New("unauthorised")
	ErrUnknownEmail     = errors.New("invalid email / password supplied")
	ErrPasswordMismatch = errors.New("invalid email / password supplied")
	ErrDuplicateEntry   = errors.New("duplicate entry")
	ErrAccountDisabled  = errors.New("account disabled")
	ErrSessionNotFound  = errors.New("session not found")
)

// Error codes attached to Service failures.
const (
	CodeValidation       = "AUTH_VALIDATION_FAILED"
	CodeUnauthorized     = "AUTH_UNAUTHORIZED"
	CodeUnknownEmail     = "AUTH_UNKNOWN_EMAIL"
	CodePasswordMismatch = "AUTH_PASSWORD_MISMATCH"
	CodeDuplicateEntry   = "AUTH_DUPLICATE_ENTRY"
	CodeNotFound         = "AUTH_NOT_FOUND"
	CodeAccountDisabled  = "AUTH_ACCOUNT_DISABLED"
	CodeSessionExpired   = "AUTH_SESSION_EXPIRED"
	CodePersistence      = "AUTH_PERSISTENCE_FAILED"
)

// Kind classifies a Service failure for the request layer.
type Kind int

// Failure kinds.
const (
	KindNone Kind = iota
	KindValidation
	KindUnauthorized
	KindInvalidCredentials
	KindDuplicateEntry
	KindNotFound
	KindAccountDisabled
	KindPersistence
)

// String returns the kind name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindValidation:
		return "validation_failure"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindDuplicateEntry:
		return "duplicate_entry"
	case KindNotFound:
		return "not_found"
	case KindAccountDisabled:
		return "account_disabled"
	default:
		return "persistence_failure"
	}
}

// KindOf classifies err. Errors that match no known kind are persistence
// failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrUnknownEmail), errors.Is(err, ErrPasswordMismatch):
		return KindInvalidCredentials
	case errors.Is(err, ErrDuplicateEntry):
		return KindDuplicateEntry
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAccountDisabled):
		return KindAccountDisabled
	default:
		return KindPersistence
	}
}

// Message returns the client-facing message for err. The two invalid
// credential variants share one message so the text never reveals which
// check failed.
func Message(err error) string {
	switch KindOf(err) {
	case KindNone:
		return "OK"
	case KindValidation:
		return "Bad request - validation failure"
	case KindUnauthorized:
		return "Unauthorised"
	case KindInvalidCredentials:
		return "Invalid email / password supplied"
	case KindDuplicateEntry:
		return "Duplicate entry"
	case KindNotFound:
		return "Not found"
	case KindAccountDisabled:
		return "Account disabled, contact your administrator"
	default:
		return "Internal server error"
	}
}
