// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package auth_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/phobos/authd/internal/auth"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    auth.Kind
		message string
	}{
		{"nil", nil, auth.KindNone, "OK"},
		{"validation", oops.Code(auth.CodeValidation).Wrap(auth.ErrValidation), auth.KindValidation, "Bad request - validation failure"},
		{"unauthorized", oops.Wrap(auth.ErrUnauthorized), auth.KindUnauthorized, "Unauthorised"},
		{"unknown email", oops.Wrap(auth.ErrUnknownEmail), auth.KindInvalidCredentials, "Invalid email / password supplied"},
		{"password mismatch", oops.Wrap(auth.ErrPasswordMismatch), auth.KindInvalidCredentials, "Invalid email / password supplied"},
		{"duplicate", oops.Wrap(auth.ErrDuplicateEntry), auth.KindDuplicateEntry, "Duplicate entry"},
		{"session not found", oops.Wrap(auth.ErrSessionNotFound), auth.KindNotFound, "Not found"},
		{"not found", oops.Wrap(auth.ErrNotFound), auth.KindNotFound, "Not found"},
		{"disabled", oops.Wrap(auth.ErrAccountDisabled), auth.KindAccountDisabled, "Account disabled, contact your administrator"},
		{"unclassified", errors.New("boom"), auth.KindPersistence, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, auth.KindOf(tt.err))
			assert.Equal(t, tt.message, auth.Message(tt.err))
		})
	}
}

func TestKindOf_ExpiredSessionIsUnauthorized(t *testing.T) {
	err := oops.Code(auth.CodeSessionExpired).Wrap(auth.ErrUnauthorized)
	assert.Equal(t, auth.KindUnauthorized, auth.KindOf(err))
}

func TestInvalidCredentialSentinelsAreDistinct(t *testing.T) {
	assert.NotErrorIs(t, auth.ErrUnknownEmail, auth.ErrPasswordMismatch)
	assert.Equal(t, auth.ErrUnknownEmail.Error(), auth.ErrPasswordMismatch.Error())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "ok", auth.KindNone.String())
	assert.Equal(t, "invalid_credentials", auth.KindInvalidCredentials.String())
	assert.Equal(t, "persistence_failure", auth.KindPersistence.String())
}
