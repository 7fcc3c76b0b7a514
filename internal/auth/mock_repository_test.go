// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package auth_test

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/phobos/authd/internal/auth"
)

// mockUserRepository is a testify mock of auth.UserRepository.
type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *mockUserRepository) UpdateDisplayName(ctx context.Context, id ulid.ULID, name string, at time.Time) error {
	return m.Called(ctx, id, name, at).Error(0)
}

func (m *mockUserRepository) UpdateEmail(ctx context.Context, id ulid.ULID, email string, at time.Time) error {
	return m.Called(ctx, id, email, at).Error(0)
}

func (m *mockUserRepository) UpdateCredentials(ctx context.Context, id ulid.ULID, passwordHash, salt string, at time.Time) error {
	return m.Called(ctx, id, passwordHash, salt, at).Error(0)
}

func (m *mockUserRepository) SetSession(ctx context.Context, id ulid.ULID, tokenHash string, loggedInAt time.Time) error {
	return m.Called(ctx, id, tokenHash, loggedInAt).Error(0)
}

func (m *mockUserRepository) ClearSession(ctx context.Context, id ulid.ULID, tokenHash string, at time.Time) error {
	return m.Called(ctx, id, tokenHash, at).Error(0)
}

func (m *mockUserRepository) SetActive(ctx context.Context, id ulid.ULID, active bool, at time.Time) error {
	return m.Called(ctx, id, active, at).Error(0)
}

var _ auth.UserRepository = (*mockUserRepository)(nil)
