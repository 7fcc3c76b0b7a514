// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

// Package postgres implements auth.UserRepository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/phobos/authd/internal/auth"
)

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, display_name, email, password_hash, salt,
		       session_token_hash, last_logged_in, login_count, active,
		       created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool DB) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, display_name, email, password_hash, salt,
			session_token_hash, last_logged_in, login_count, active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		user.ID.String(),
		user.DisplayName,
		user.Email,
		user.PasswordHash,
		user.Salt,
		nullable(user.SessionTokenHash),
		user.LastLoggedIn,
		user.LoginCount,
		user.Active,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_EMAIL_TAKEN").
				With("email", user.Email).
				Wrap(auth.ErrConflict)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// UpdateDisplayName sets the display name.
func (r *UserRepository) UpdateDisplayName(ctx context.Context, id ulid.ULID, name string, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET display_name = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), name, at)
	return r.checkUpdate("update display name", id, result, err)
}

// UpdateEmail sets the email.
func (r *UserRepository) UpdateEmail(ctx context.Context, id ulid.ULID, email string, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET email = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), email, at)
	if err != nil && isUniqueViolation(err) {
		return oops.Code("USER_EMAIL_TAKEN").
			With("id", id.String()).
			With("email", email).
			Wrap(auth.ErrConflict)
	}
	return r.checkUpdate("update email", id, result, err)
}

// UpdateCredentials replaces password hash and salt in one statement.
func (r *UserRepository) UpdateCredentials(ctx context.Context, id ulid.ULID, passwordHash, salt string, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, salt = $3, updated_at = $4
		WHERE id = $1
	`, id.String(), passwordHash, salt, at)
	return r.checkUpdate("update credentials", id, result, err)
}

// SetSession replaces the session token hash.
func (r *UserRepository) SetSession(ctx context.Context, id ulid.ULID, tokenHash string, loggedInAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET session_token_hash = $2, last_logged_in = $3, updated_at = $3
		WHERE id = $1
	`, id.String(), tokenHash, loggedInAt)
	return r.checkUpdate("set session", id, result, err)
}

// ClearSession clears the session if tokenHash is still current.
func (r *UserRepository) ClearSession(ctx context.Context, id ulid.ULID, tokenHash string, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET session_token_hash = NULL, updated_at = $3
		WHERE id = $1 AND session_token_hash = $2
	`, id.String(), tokenHash, at)
	return r.checkUpdate("clear session", id, result, err)
}

// SetActive enables or disables an account.
func (r *UserRepository) SetActive(ctx context.Context, id ulid.ULID, active bool, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET active = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), active, at)
	return r.checkUpdate("set active", id, result, err)
}

// Ping reports whether the users table is reachable.
func (r *UserRepository) Ping(ctx context.Context) error {
	rows, err := r.pool.Query(ctx, `SELECT 1 FROM users LIMIT 1`)
	if err != nil {
		return oops.Code("USER_STORE_UNAVAILABLE").Wrap(err)
	}
	rows.Close()
	return nil
}

func (r *UserRepository) checkUpdate(operation string, id ulid.ULID, result pgconn.CommandTag, err error) error {
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("operation", operation).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a User. Scan failures, including
// pgx.ErrNoRows and query errors deferred to Scan, are returned unwrapped
// so callers can attach their own code.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr     string
		user      auth.User
		tokenHash *string
	)

	err := row.Scan(
		&idStr,
		&user.DisplayName,
		&user.Email,
		&user.PasswordHash,
		&user.Salt,
		&tokenHash,
		&user.LastLoggedIn,
		&user.LoginCount,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
	}

	user.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	if tokenHash != nil {
		user.SessionTokenHash = *tokenHash
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
