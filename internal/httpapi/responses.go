// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package httpapi

import (
	"errors"
	"net/http"

	"github.com/phobos/authd/internal/auth"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

// InsertAck acknowledges a created record.
type InsertAck struct {
	Acknowledged bool   `json:"acknowledged"`
	InsertedID   string `json:"insertedId"`
}

// UpdateAck acknowledges a modified record.
type UpdateAck struct {
	Acknowledged  bool `json:"acknowledged"`
	ModifiedCount int  `json:"modifiedCount"`
}

// DataResponse wraps an acknowledgement.
type DataResponse[T any] struct {
	Status int `json:"status"`
	Data   T   `json:"data"`
}

// UserResponse wraps a user view.
type UserResponse[T any] struct {
	Status int `json:"status"`
	User   T   `json:"user"`
}

// SessionUser is returned by login.
type SessionUser struct {
	LocalID     string `json:"localId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	IDToken     string `json:"idToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// ProfileUser is returned by get user.
type ProfileUser struct {
	LocalID     string `json:"localId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// StatusFor maps a service error to its HTTP status. An unknown email is
// 404 while a wrong password is 401, although both share one message.
func StatusFor(err error) int {
	switch auth.KindOf(err) {
	case auth.KindNone:
		return http.StatusOK
	case auth.KindValidation, auth.KindDuplicateEntry:
		return http.StatusBadRequest
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindInvalidCredentials:
		if errors.Is(err, auth.ErrUnknownEmail) {
			return http.StatusNotFound
		}
		return http.StatusUnauthorized
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindAccountDisabled:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
