// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobos/authd/internal/auth"
	"github.com/phobos/authd/pkg/errutil"
)

var userColumnNames = []string{
	"id", "display_name", "email", "password_hash", "salt",
	"session_token_hash", "last_logged_in", "login_count", "active",
	"created_at", "updated_at",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return mock
}

func testUser() *auth.User {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &auth.User{
		ID:           ulid.Make(),
		DisplayName:  "Test",
		Email:        "test@x.com",
		PasswordHash: "hash",
		Salt:         "abcd",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func userRow(u *auth.User, tokenHash *string, lastLoggedIn *time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(userColumnNames).AddRow(
		u.ID.String(), u.DisplayName, u.Email, u.PasswordHash, u.Salt,
		tokenHash, lastLoggedIn, u.LoginCount, u.Active,
		u.CreatedAt, u.UpdatedAt,
	)
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts user", func(t *testing.T) {
		mock := newMock(t)
		u := testUser()
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(u.ID.String(), u.DisplayName, u.Email, u.PasswordHash, u.Salt,
				(*string)(nil), (*time.Time)(nil), 0, true, u.CreatedAt, u.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, NewUserRepository(mock).Create(ctx, u))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to conflict", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		err := NewUserRepository(mock).Create(ctx, testUser())
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrConflict)
		errutil.AssertErrorCode(t, err, "USER_EMAIL_TAKEN")
	})

	t.Run("other errors are wrapped", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection refused"))

		err := NewUserRepository(mock).Create(ctx, testUser())
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrConflict)
		assert.Contains(t, err.Error(), "connection refused")
		errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
	})
}

func TestUserRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns user with session", func(t *testing.T) {
		mock := newMock(t)
		u := testUser()
		hash := "tokenhash"
		loggedIn := u.CreatedAt.Add(time.Minute)
		mock.ExpectQuery(`SELECT .* FROM users\s+WHERE id = \$1`).
			WithArgs(u.ID.String()).
			WillReturnRows(userRow(u, &hash, &loggedIn))

		got, err := NewUserRepository(mock).GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, "Test", got.DisplayName)
		assert.Equal(t, "tokenhash", got.SessionTokenHash)
		require.NotNil(t, got.LastLoggedIn)
		assert.Equal(t, loggedIn, *got.LastLoggedIn)
		assert.True(t, got.LoggedIn())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null session token", func(t *testing.T) {
		mock := newMock(t)
		u := testUser()
		mock.ExpectQuery(`SELECT .* FROM users`).
			WithArgs(u.ID.String()).
			WillReturnRows(userRow(u, nil, nil))

		got, err := NewUserRepository(mock).GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.False(t, got.LoggedIn())
		assert.Nil(t, got.LastLoggedIn)
	})

	t.Run("no rows maps to not found", func(t *testing.T) {
		mock := newMock(t)
		id := ulid.Make()
		mock.ExpectQuery(`SELECT .* FROM users`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(userColumnNames))

		_, err := NewUserRepository(mock).GetByID(ctx, id)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
	})

	t.Run("corrupt id", func(t *testing.T) {
		mock := newMock(t)
		u := testUser()
		rows := pgxmock.NewRows(userColumnNames).AddRow(
			"not-a-ulid", u.DisplayName, u.Email, u.PasswordHash, u.Salt,
			(*string)(nil), (*time.Time)(nil), 0, true, u.CreatedAt, u.UpdatedAt,
		)
		mock.ExpectQuery(`SELECT .* FROM users`).
			WithArgs(u.ID.String()).
			WillReturnRows(rows)

		_, err := NewUserRepository(mock).GetByID(ctx, u.ID)
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_INVALID_ID")
	})

	t.Run("query error", func(t *testing.T) {
		mock := newMock(t)
		id := ulid.Make()
		mock.ExpectQuery(`SELECT .* FROM users`).
			WithArgs(id.String()).
			WillReturnError(errors.New("timeout"))

		_, err := NewUserRepository(mock).GetByID(ctx, id)
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_GET_BY_ID_FAILED")
		errutil.AssertErrorContext(t, err, "id", id.String())
	})
}

func TestUserRepository_GetByEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("case-insensitive lookup", func(t *testing.T) {
		mock := newMock(t)
		u := testUser()
		mock.ExpectQuery(`WHERE LOWER\(email\) = LOWER\(\$1\)`).
			WithArgs("TEST@X.COM").
			WillReturnRows(userRow(u, nil, nil))

		got, err := NewUserRepository(mock).GetByEmail(ctx, "TEST@X.COM")
		require.NoError(t, err)
		assert.Equal(t, u.Email, got.Email)
	})

	t.Run("unknown email", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`WHERE LOWER\(email\)`).
			WithArgs("nobody@x.com").
			WillReturnRows(pgxmock.NewRows(userColumnNames))

		_, err := NewUserRepository(mock).GetByEmail(ctx, "nobody@x.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("query error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`WHERE LOWER\(email\)`).
			WithArgs("test@x.com").
			WillReturnError(errors.New("timeout"))

		_, err := NewUserRepository(mock).GetByEmail(ctx, "test@x.com")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_GET_BY_EMAIL_FAILED")
		errutil.AssertErrorContext(t, err, "email", "test@x.com")
	})
}

func TestUserRepository_Updates(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		pattern string
		args    []any
		run     func(r *UserRepository) error
	}{
		{
			name:    "display name",
			pattern: `UPDATE users SET display_name = \$2, updated_at = \$3`,
			args:    []any{id.String(), "New", at},
			run: func(r *UserRepository) error {
				return r.UpdateDisplayName(ctx, id, "New", at)
			},
		},
		{
			name:    "email",
			pattern: `UPDATE users SET email = \$2, updated_at = \$3`,
			args:    []any{id.String(), "new@x.com", at},
			run: func(r *UserRepository) error {
				return r.UpdateEmail(ctx, id, "new@x.com", at)
			},
		},
		{
			name:    "credentials",
			pattern: `UPDATE users SET password_hash = \$2, salt = \$3, updated_at = \$4`,
			args:    []any{id.String(), "newhash", "newsalt", at},
			run: func(r *UserRepository) error {
				return r.UpdateCredentials(ctx, id, "newhash", "newsalt", at)
			},
		},
		{
			name:    "set session",
			pattern: `UPDATE users SET session_token_hash = \$2, last_logged_in = \$3`,
			args:    []any{id.String(), "tokenhash", at},
			run: func(r *UserRepository) error {
				return r.SetSession(ctx, id, "tokenhash", at)
			},
		},
		{
			name:    "clear session",
			pattern: `UPDATE users SET session_token_hash = NULL.*WHERE id = \$1 AND session_token_hash = \$2`,
			args:    []any{id.String(), "tokenhash", at},
			run: func(r *UserRepository) error {
				return r.ClearSession(ctx, id, "tokenhash", at)
			},
		},
		{
			name:    "disable",
			pattern: `UPDATE users SET active = \$2, updated_at = \$3`,
			args:    []any{id.String(), false, at},
			run: func(r *UserRepository) error {
				return r.SetActive(ctx, id, false, at)
			},
		},
		{
			name:    "enable",
			pattern: `UPDATE users SET active = \$2, updated_at = \$3`,
			args:    []any{id.String(), true, at},
			run: func(r *UserRepository) error {
				return r.SetActive(ctx, id, true, at)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+" updates one row", func(t *testing.T) {
			mock := newMock(t)
			mock.ExpectExec(tt.pattern).WithArgs(tt.args...).
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))

			require.NoError(t, tt.run(NewUserRepository(mock)))
			assert.NoError(t, mock.ExpectationsWereMet())
		})

		t.Run(tt.name+" with no matching row", func(t *testing.T) {
			mock := newMock(t)
			mock.ExpectExec(tt.pattern).WithArgs(tt.args...).
				WillReturnResult(pgxmock.NewResult("UPDATE", 0))

			err := tt.run(NewUserRepository(mock))
			assert.ErrorIs(t, err, auth.ErrNotFound)
		})

		t.Run(tt.name+" database error", func(t *testing.T) {
			mock := newMock(t)
			mock.ExpectExec(tt.pattern).WithArgs(tt.args...).
				WillReturnError(errors.New("connection reset"))

			err := tt.run(NewUserRepository(mock))
			require.Error(t, err)
			assert.NotErrorIs(t, err, auth.ErrNotFound)
			errutil.AssertErrorCode(t, err, "USER_UPDATE_FAILED")
		})
	}
}

func TestUserRepository_UpdateEmailConflict(t *testing.T) {
	mock := newMock(t)
	id := ulid.Make()
	mock.ExpectExec(`UPDATE users SET email`).
		WithArgs(id.String(), "taken@x.com", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	err := NewUserRepository(mock).UpdateEmail(context.Background(), id, "taken@x.com", time.Now())
	assert.ErrorIs(t, err, auth.ErrConflict)
}

func TestUserRepository_Ping(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT 1 FROM users`).
			WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
		assert.NoError(t, NewUserRepository(mock).Ping(context.Background()))
	})

	t.Run("unreachable", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT 1 FROM users`).
			WillReturnError(errors.New("dial tcp: refused"))
		err := NewUserRepository(mock).Ping(context.Background())
		errutil.AssertErrorCode(t, err, "USER_STORE_UNAVAILABLE")
	})
}
