// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package auth

import (
	"context"
	"encoding/hex"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Display name constraints.
const (
	MinDisplayNameLength = 1
	MaxDisplayNameLength = 50
)

// EmailPattern is the address pattern accepted for account emails.
const EmailPattern = `^[a-zA-Z0-9._%-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,6}$`

var emailRegex = regexp.MustCompile(EmailPattern)

// User is a stored account. SessionTokenHash is empty while logged out.
type User struct {
	ID               ulid.ULID
	DisplayName      string
	Email            string
	PasswordHash     string
	Salt             string // hex encoded
	SessionTokenHash string
	LastLoggedIn     *time.Time
	LoginCount       int
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Profile holds the caller-supplied fields of a new account.
type Profile struct {
	DisplayName string
	Email       string
}

// NewUser creates a validated, active User with a fresh ID.
func NewUser(profile Profile, passwordHash string, salt []byte, now time.Time) (*User, error) {
	if err := ValidateDisplayName(profile.DisplayName); err != nil {
		return nil, err
	}
	if err := ValidateEmail(profile.Email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if len(salt) == 0 {
		return nil, oops.Code("AUTH_INVALID_SALT").Errorf("salt cannot be empty")
	}

	return &User{
		ID:           ulid.Make(),
		DisplayName:  profile.DisplayName,
		Email:        profile.Email,
		PasswordHash: passwordHash,
		Salt:         hex.EncodeToString(salt),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// SaltBytes decodes the stored hex salt.
func (u *User) SaltBytes() ([]byte, error) {
	salt, err := hex.DecodeString(u.Salt)
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_SALT").With("user_id", u.ID.String()).Wrap(err)
	}
	return salt, nil
}

// LoggedIn reports whether the user currently holds a session token.
func (u *User) LoggedIn() bool {
	return u.SessionTokenHash != ""
}

// Summary returns the public view of the user.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
	}
}

// ValidateDisplayName checks the display name length in characters.
func ValidateDisplayName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < MinDisplayNameLength || n > MaxDisplayNameLength {
		return oops.Code("AUTH_INVALID_DISPLAY_NAME").
			With("min", MinDisplayNameLength).
			With("max", MaxDisplayNameLength).
			Errorf("display name must be %d to %d characters", MinDisplayNameLength, MaxDisplayNameLength)
	}
	return nil
}

// ValidEmail reports whether email matches the accepted address pattern.
func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidateEmail checks email against the accepted address pattern.
func ValidateEmail(email string) error {
	if !ValidEmail(email) {
		return oops.Code("AUTH_INVALID_EMAIL").With("email", email).Errorf("invalid email address")
	}
	return nil
}

// UserSummary is the public projection returned by GetUser.
type UserSummary struct {
	ID          ulid.ULID
	DisplayName string
	Email       string
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	ID          ulid.ULID
	DisplayName string
	Email       string
	Token       string
	ExpiresIn   int
}

// Identity is the authenticated caller produced by VerifySession. Patch
// operations trust it without re-checking the session.
type Identity struct {
	UserID ulid.ULID
}

// UserRepository manages user persistence. Each method is an atomic
// single-record operation.
type UserRepository interface {
	// Create stores a new user. Returns ErrConflict if the email is taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdateDisplayName sets the display name and updatedAt.
	UpdateDisplayName(ctx context.Context, id ulid.ULID, name string, at time.Time) error

	// UpdateEmail sets the email and updatedAt. Returns ErrConflict if the
	// email belongs to another user.
	UpdateEmail(ctx context.Context, id ulid.ULID, email string, at time.Time) error

	// UpdateCredentials replaces password hash and salt together.
	UpdateCredentials(ctx context.Context, id ulid.ULID, passwordHash, salt string, at time.Time) error

	// SetSession replaces the session token hash and sets lastLoggedIn.
	SetSession(ctx context.Context, id ulid.ULID, tokenHash string, loggedInAt time.Time) error

	// ClearSession clears the session only if tokenHash is the current one.
	// Returns ErrNotFound if no row matched.
	ClearSession(ctx context.Context, id ulid.ULID, tokenHash string, at time.Time) error

	// SetActive enables or disables the account. A disabled account keeps
	// its session hash but can neither log in nor verify.
	SetActive(ctx context.Context, id ulid.ULID, active bool, at time.Time) error
}
