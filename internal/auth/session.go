// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes  = 128                   // 128 bytes = 256 hex chars
	SessionTokenLength = SessionTokenBytes * 2 // hex encoded length
	DefaultSessionTTL  = time.Hour             // advertised as expiresIn
)

// TokenGenerator produces session tokens from a random source.
type TokenGenerator struct {
	random io.Reader
}

// NewTokenGenerator returns a generator reading from crypto/rand.
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{random: rand.Reader}
}

// NewTokenGeneratorFrom returns a generator reading from r. Tests use it to
// force entropy failures.
func NewTokenGeneratorFrom(r io.Reader) *TokenGenerator {
	return &TokenGenerator{random: r}
}

// Generate creates a secure random token and its hash.
// The plaintext token is returned to the client; the hash is persisted.
func (g *TokenGenerator) Generate() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = io.ReadFull(g.random, tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "read random source").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashSessionToken(token), nil
}

// GenerateSessionToken creates a token with the default generator.
func GenerateSessionToken() (token, hash string, err error) {
	return NewTokenGenerator().Generate()
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifySessionToken checks if the plaintext token matches the stored hash.
// Returns (true, nil) on match, (false, nil) on mismatch, or (false, error) on invalid input.
func VerifySessionToken(token, hash string) (bool, error) {
	if token == "" {
		return false, oops.Code("SESSION_TOKEN_EMPTY").Errorf("session token cannot be empty")
	}
	if hash == "" {
		return false, oops.Code("SESSION_HASH_EMPTY").Errorf("stored hash cannot be empty")
	}
	computed := HashSessionToken(token)
	// Both are hex-encoded SHA256 hashes (64 chars), use constant-time compare
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1, nil
}

// ValidTokenShape reports whether token has the length of an issued token.
func ValidTokenShape(token string) bool {
	return len(token) == SessionTokenLength
}

// CredentialMissing reports session values treated as absent: empty or the
// literal "null" some clients send for unset headers.
func CredentialMissing(v string) bool {
	return v == "" || v == "null"
}

// ParseSessionCredentials checks the presence and shape of a user id and
// session token pair. Missing values are unauthorized; present but
// malformed values are validation failures.
func ParseSessionCredentials(localID, idToken string) (ulid.ULID, string, error) {
	if CredentialMissing(localID) || CredentialMissing(idToken) {
		return ulid.ULID{}, "", oops.Code(CodeUnauthorized).Wrap(ErrUnauthorized)
	}
	id, err := ulid.ParseStrict(localID)
	if err != nil {
		return ulid.ULID{}, "", oops.Code(CodeValidation).
			With("field", "localId").
			Wrapf(ErrValidation, "parse user id: %v", err)
	}
	if !ValidTokenShape(idToken) {
		return ulid.ULID{}, "", oops.Code(CodeValidation).
			With("field", "idToken").
			With("length", len(idToken)).
			Wrap(ErrValidation)
	}
	return id, idToken, nil
}
