// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/phobos/authd/internal/observability"
	"github.com/phobos/authd/pkg/errutil"
)

var tracer = otel.Tracer("authd/auth")

// Login verifies against a hash of dummyDigest when the email is unknown,
// so both failure paths run the configured algorithm.
var (
	dummyDigest = strings.Repeat("0", 64)
	dummySalt   = make([]byte, SaltBytes)
)

// Service orchestrates registration, login, session checks and profile
// updates over a UserRepository.
type Service struct {
	users         UserRepository
	hasher        PasswordHasher
	dummyHash     string
	tokens        *TokenGenerator
	logger        *slog.Logger
	now           func() time.Time
	sessionTTL    time.Duration
	enforceExpiry bool
}

// Option configures a Service during construction.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionTTL sets the session lifetime reported as expiresIn.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithExpiryEnforcement makes VerifySession reject sessions older than the
// session TTL, measured from the last login.
func WithExpiryEnforcement(enforce bool) Option {
	return func(s *Service) {
		s.enforceExpiry = enforce
	}
}

// WithTokenGenerator overrides the session token source.
func WithTokenGenerator(g *TokenGenerator) Option {
	return func(s *Service) {
		if g != nil {
			s.tokens = g
		}
	}
}

// NewService creates a Service. Returns an error if users or hasher is nil.
func NewService(users UserRepository, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}
	s := &Service{
		users:      users,
		hasher:     hasher,
		tokens:     NewTokenGenerator(),
		logger:     slog.Default(),
		now:        time.Now,
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	dummyHash, err := hasher.Hash(dummyDigest, dummySalt)
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").With("operation", "hash dummy password").Wrap(err)
	}
	s.dummyHash = dummyHash
	return s, nil
}

// SessionTTL returns the configured session lifetime.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// start opens a span for operation and returns a func that records the
// outcome on the span and in the operation counter.
func (s *Service) start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "auth."+operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		kind := KindOf(err)
		span.SetAttributes(attribute.String("auth.outcome", kind.String()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RecordAuthOperation(operation, kind.String())
		span.End()
	}
}

// Register creates an active account for profile with a fresh salt and
// returns its ID. A taken email fails with ErrDuplicateEntry.
func (s *Service) Register(ctx context.Context, profile Profile, passwordDigest string) (id ulid.ULID, err error) {
	ctx, finish := s.start(ctx, "register")
	defer func() { finish(err) }()

	if !ValidDigest(passwordDigest) {
		return ulid.ULID{}, oops.Code(CodeValidation).With("field", "password").Wrap(ErrValidation)
	}

	salt, err := NewSalt()
	if err != nil {
		return ulid.ULID{}, oops.Code(CodePersistence).With("operation", "generate salt").Wrap(err)
	}
	hash, err := s.hasher.Hash(passwordDigest, salt)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodePersistence).With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(profile, hash, salt, s.now())
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeValidation).Wrapf(ErrValidation, "%v", err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return ulid.ULID{}, oops.Code(CodeDuplicateEntry).
				With("email", profile.Email).
				Wrap(ErrDuplicateEntry)
		}
		err = oops.Code(CodePersistence).With("operation", "create user").Wrap(err)
		errutil.LogError(ctx, s.logger, "register failed", err)
		return ulid.ULID{}, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user.ID, nil
}

// Login checks email and password digest and, on success, replaces the
// user's session token. An unknown email and a wrong password fail with
// different errors that share one client message.
func (s *Service) Login(ctx context.Context, email, passwordDigest string) (result *LoginResult, err error) {
	ctx, finish := s.start(ctx, "login")
	defer func() { finish(err) }()

	if !ValidDigest(passwordDigest) {
		return nil, oops.Code(CodeValidation).With("field", "password").Wrap(ErrValidation)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_, _ = s.hasher.Verify(passwordDigest, dummySalt, s.dummyHash)
			return nil, oops.Code(CodeUnknownEmail).Wrap(ErrUnknownEmail)
		}
		err = oops.Code(CodePersistence).With("operation", "get user by email").Wrap(err)
		errutil.LogError(ctx, s.logger, "login lookup failed", err)
		return nil, err
	}

	salt, err := user.SaltBytes()
	if err != nil {
		return nil, oops.Code(CodePersistence).With("operation", "decode salt").Wrap(err)
	}
	ok, err := s.hasher.Verify(passwordDigest, salt, user.PasswordHash)
	if err != nil {
		err = oops.Code(CodePersistence).
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
		errutil.LogError(ctx, s.logger, "stored password hash unreadable", err)
		return nil, err
	}
	if !ok {
		s.logger.DebugContext(ctx, "password mismatch", "user_id", user.ID.String())
		return nil, oops.Code(CodePasswordMismatch).With("user_id", user.ID.String()).Wrap(ErrPasswordMismatch)
	}

	// Checked after verification so disabled accounts cost the same
	if !user.Active {
		return nil, oops.Code(CodeAccountDisabled).With("user_id", user.ID.String()).Wrap(ErrAccountDisabled)
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeCredentials(ctx, user.ID, passwordDigest)
	}

	token, tokenHash, err := s.tokens.Generate()
	if err != nil {
		return nil, oops.Code(CodePersistence).With("operation", "generate session token").Wrap(err)
	}

	if err := s.users.SetSession(ctx, user.ID, tokenHash, s.now()); err != nil {
		err = oops.Code(CodePersistence).
			With("operation", "persist session").
			With("user_id", user.ID.String()).
			Wrap(err)
		errutil.LogError(ctx, s.logger, "login failed", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID.String())
	return &LoginResult{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Token:       token,
		ExpiresIn:   int(s.sessionTTL / time.Second),
	}, nil
}

// upgradeCredentials re-salts and re-hashes a password stored in a format
// other than the configured one. Failures are logged and ignored.
func (s *Service) upgradeCredentials(ctx context.Context, id ulid.ULID, passwordDigest string) {
	salt, err := NewSalt()
	if err != nil {
		s.logger.WarnContext(ctx, "password upgrade skipped", "user_id", id.String(), "error", err)
		return
	}
	hash, err := s.hasher.Hash(passwordDigest, salt)
	if err != nil {
		s.logger.WarnContext(ctx, "password upgrade skipped", "user_id", id.String(), "error", err)
		return
	}
	if err := s.users.UpdateCredentials(ctx, id, hash, hex.EncodeToString(salt), s.now()); err != nil {
		s.logger.WarnContext(ctx, "password upgrade failed", "user_id", id.String(), "error", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", id.String())
}

// VerifySession checks that idToken is the current session token of the
// user localID. It changes no state.
func (s *Service) VerifySession(ctx context.Context, localID, idToken string) (identity Identity, err error) {
	ctx, finish := s.start(ctx, "verify_session")
	defer func() { finish(err) }()

	user, err := s.verify(ctx, localID, idToken)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: user.ID}, nil
}

func (s *Service) verify(ctx context.Context, localID, idToken string) (*User, error) {
	id, token, err := ParseSessionCredentials(localID, idToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).With("user_id", id.String()).Wrap(ErrSessionNotFound)
		}
		err = oops.Code(CodePersistence).With("operation", "get user by id").Wrap(err)
		errutil.LogError(ctx, s.logger, "session lookup failed", err)
		return nil, err
	}

	if !user.Active || !user.LoggedIn() {
		return nil, oops.Code(CodeUnauthorized).With("user_id", id.String()).Wrap(ErrUnauthorized)
	}
	ok, err := VerifySessionToken(token, user.SessionTokenHash)
	if err != nil || !ok {
		return nil, oops.Code(CodeUnauthorized).With("user_id", id.String()).Wrap(ErrUnauthorized)
	}

	if s.enforceExpiry && user.LastLoggedIn != nil && s.now().Sub(*user.LastLoggedIn) > s.sessionTTL {
		return nil, oops.Code(CodeSessionExpired).
			With("user_id", id.String()).
			With("last_logged_in", *user.LastLoggedIn).
			Wrap(ErrUnauthorized)
	}
	return user, nil
}

// GetUser returns the public profile of the session's user.
func (s *Service) GetUser(ctx context.Context, localID, idToken string) (summary UserSummary, err error) {
	ctx, finish := s.start(ctx, "get_user")
	defer func() { finish(err) }()

	user, err := s.verify(ctx, localID, idToken)
	if err != nil {
		return UserSummary{}, err
	}
	return user.Summary(), nil
}

// Logout clears the session if idToken is still the user's current token.
func (s *Service) Logout(ctx context.Context, localID, idToken string) (err error) {
	ctx, finish := s.start(ctx, "logout")
	defer func() { finish(err) }()

	user, err := s.verify(ctx, localID, idToken)
	if err != nil {
		return err
	}

	// Conditional on the token so a concurrent login is not undone
	if err := s.users.ClearSession(ctx, user.ID, HashSessionToken(idToken), s.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeUnauthorized).With("user_id", user.ID.String()).Wrap(ErrUnauthorized)
		}
		err = oops.Code(CodePersistence).With("operation", "clear session").Wrap(err)
		errutil.LogError(ctx, s.logger, "logout failed", err)
		return err
	}

	s.logger.InfoContext(ctx, "user logged out", "user_id", user.ID.String())
	return nil
}

// PatchDisplayName sets the display name of an authenticated user.
func (s *Service) PatchDisplayName(ctx context.Context, who Identity, displayName string) (err error) {
	ctx, finish := s.start(ctx, "patch_display_name", attribute.String("user.id", who.UserID.String()))
	defer func() { finish(err) }()

	if verr := ValidateDisplayName(displayName); verr != nil {
		return oops.Code(CodeValidation).With("field", "displayName").Wrapf(ErrValidation, "%v", verr)
	}
	return s.persistPatch(ctx, who, "update display name",
		s.users.UpdateDisplayName(ctx, who.UserID, displayName, s.now()))
}

// PatchEmail sets the email of an authenticated user. An email held by
// another user fails with ErrDuplicateEntry.
func (s *Service) PatchEmail(ctx context.Context, who Identity, email string) (err error) {
	ctx, finish := s.start(ctx, "patch_email", attribute.String("user.id", who.UserID.String()))
	defer func() { finish(err) }()

	if verr := ValidateEmail(email); verr != nil {
		return oops.Code(CodeValidation).With("field", "email").Wrapf(ErrValidation, "%v", verr)
	}
	return s.persistPatch(ctx, who, "update email",
		s.users.UpdateEmail(ctx, who.UserID, email, s.now()))
}

// PatchPassword replaces salt and hash of an authenticated user. The digest
// is validated before any hashing; on failure the old credentials remain.
func (s *Service) PatchPassword(ctx context.Context, who Identity, passwordDigest string) (err error) {
	ctx, finish := s.start(ctx, "patch_password", attribute.String("user.id", who.UserID.String()))
	defer func() { finish(err) }()

	if !ValidDigest(passwordDigest) {
		return oops.Code(CodeValidation).With("field", "password").Wrap(ErrValidation)
	}

	salt, err := NewSalt()
	if err != nil {
		return oops.Code(CodePersistence).With("operation", "generate salt").Wrap(err)
	}
	hash, err := s.hasher.Hash(passwordDigest, salt)
	if err != nil {
		return oops.Code(CodePersistence).With("operation", "hash password").Wrap(err)
	}
	return s.persistPatch(ctx, who, "update credentials",
		s.users.UpdateCredentials(ctx, who.UserID, hash, hex.EncodeToString(salt), s.now()))
}

// SetActive enables or disables the account registered under email.
// Disabled accounts fail Login with ErrAccountDisabled and their sessions
// stop verifying.
func (s *Service) SetActive(ctx context.Context, email string, active bool) (err error) {
	ctx, finish := s.start(ctx, "set_active", attribute.Bool("user.active", active))
	defer func() { finish(err) }()

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeNotFound).With("email", email).Wrap(ErrNotFound)
		}
		err = oops.Code(CodePersistence).With("operation", "get user by email").Wrap(err)
		errutil.LogError(ctx, s.logger, "account lookup failed", err)
		return err
	}
	return s.persistPatch(ctx, Identity{UserID: user.ID}, "set active",
		s.users.SetActive(ctx, user.ID, active, s.now()))
}

// persistPatch classifies the repository error of a patch operation.
func (s *Service) persistPatch(ctx context.Context, who Identity, operation string, err error) error {
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "user updated", "user_id", who.UserID.String(), "operation", operation)
		return nil
	case errors.Is(err, ErrNotFound):
		return oops.Code(CodeNotFound).With("user_id", who.UserID.String()).Wrap(ErrNotFound)
	case errors.Is(err, ErrConflict):
		return oops.Code(CodeDuplicateEntry).With("user_id", who.UserID.String()).Wrap(ErrDuplicateEntry)
	default:
		err = oops.Code(CodePersistence).
			With("operation", operation).
			With("user_id", who.UserID.String()).
			Wrap(err)
		errutil.LogError(ctx, s.logger, "patch failed", err)
		return err
	}
}
