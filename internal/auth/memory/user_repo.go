// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

// Package memory implements auth.UserRepository in process memory.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/phobos/authd/internal/auth"
)

// UserRepository is a mutex-guarded map of users. Every method is atomic
// with respect to the others. Returned users are copies.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

func emailKey(email string) string {
	return strings.ToLower(email)
}

func clone(u *auth.User) *auth.User {
	c := *u
	if u.LastLoggedIn != nil {
		t := *u.LastLoggedIn
		c.LastLoggedIn = &t
	}
	return &c
}

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[emailKey(user.Email)]; taken {
		return oops.Code("USER_EMAIL_TAKEN").With("email", user.Email).Wrap(auth.ErrConflict)
	}
	if _, exists := r.byID[user.ID]; exists {
		return oops.Code("USER_ID_TAKEN").With("id", user.ID.String()).Wrap(auth.ErrConflict)
	}
	r.byID[user.ID] = clone(user)
	r.byEmail[emailKey(user.Email)] = user.ID
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return clone(u), nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[emailKey(email)]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return clone(r.byID[id]), nil
}

// update applies fn to the stored user under the write lock.
func (r *UserRepository) update(id ulid.ULID, operation string, fn func(u *auth.User) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").
			With("operation", operation).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return fn(u)
}

// UpdateDisplayName sets the display name.
func (r *UserRepository) UpdateDisplayName(_ context.Context, id ulid.ULID, name string, at time.Time) error {
	return r.update(id, "update display name", func(u *auth.User) error {
		u.DisplayName = name
		u.UpdatedAt = at
		return nil
	})
}

// UpdateEmail sets the email, keeping the email index consistent.
func (r *UserRepository) UpdateEmail(_ context.Context, id ulid.ULID, email string, at time.Time) error {
	return r.update(id, "update email", func(u *auth.User) error {
		key := emailKey(email)
		if owner, taken := r.byEmail[key]; taken && owner != id {
			return oops.Code("USER_EMAIL_TAKEN").With("email", email).Wrap(auth.ErrConflict)
		}
		delete(r.byEmail, emailKey(u.Email))
		r.byEmail[key] = id
		u.Email = email
		u.UpdatedAt = at
		return nil
	})
}

// UpdateCredentials replaces password hash and salt together.
func (r *UserRepository) UpdateCredentials(_ context.Context, id ulid.ULID, passwordHash, salt string, at time.Time) error {
	return r.update(id, "update credentials", func(u *auth.User) error {
		u.PasswordHash = passwordHash
		u.Salt = salt
		u.UpdatedAt = at
		return nil
	})
}

// SetSession replaces the session token hash.
func (r *UserRepository) SetSession(_ context.Context, id ulid.ULID, tokenHash string, loggedInAt time.Time) error {
	return r.update(id, "set session", func(u *auth.User) error {
		t := loggedInAt
		u.SessionTokenHash = tokenHash
		u.LastLoggedIn = &t
		u.UpdatedAt = loggedInAt
		return nil
	})
}

// ClearSession clears the session if tokenHash is still current.
func (r *UserRepository) ClearSession(_ context.Context, id ulid.ULID, tokenHash string, at time.Time) error {
	return r.update(id, "clear session", func(u *auth.User) error {
		if u.SessionTokenHash == "" || u.SessionTokenHash != tokenHash {
			return oops.Code("USER_NOT_FOUND").
				With("operation", "clear session").
				With("id", id.String()).
				Wrap(auth.ErrNotFound)
		}
		u.SessionTokenHash = ""
		u.UpdatedAt = at
		return nil
	})
}

// SetActive enables or disables an account.
func (r *UserRepository) SetActive(_ context.Context, id ulid.ULID, active bool, at time.Time) error {
	return r.update(id, "set active", func(u *auth.User) error {
		u.Active = active
		u.UpdatedAt = at
		return nil
	})
}

// Len returns the number of stored users.
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
