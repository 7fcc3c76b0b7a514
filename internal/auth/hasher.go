// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// Salt and digest sizes.
const (
	SaltBytes         = 256 // per-user salt, stored hex encoded
	PasswordDigestLen = 64  // client-side SHA-256, hex encoded
)

// Hasher algorithm names accepted by NewPasswordHasher.
const (
	AlgorithmHMACSHA512 = "hmac-sha512"
	AlgorithmArgon2id   = "argon2id"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

const argon2Prefix = "$argon2id$"

var digestRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// ErrEmptyDigest is returned when attempting to hash an empty password digest.
var ErrEmptyDigest = oops.Code("AUTH_EMPTY_DIGEST").Errorf("password digest cannot be empty")

// PasswordHasher derives and verifies salted hashes of client password digests.
type PasswordHasher interface {
	// Hash derives the stored hash for digest under salt. The result is
	// deterministic for fixed inputs.
	Hash(digest string, salt []byte) (string, error)

	// Verify recomputes the hash for digest and compares it with storedHash
	// in constant time. Returns (true, nil) on match, (false, nil) on
	// mismatch, or an error if storedHash cannot be parsed.
	Verify(digest string, salt []byte, storedHash string) (bool, error)

	// NeedsUpgrade returns true if storedHash was produced by a different
	// algorithm than the one this hasher uses for new hashes.
	NeedsUpgrade(storedHash string) bool
}

// NewPasswordHasher returns the hasher for the named algorithm.
func NewPasswordHasher(algorithm string) (PasswordHasher, error) {
	switch algorithm {
	case "", AlgorithmHMACSHA512:
		return NewHMACHasher(), nil
	case AlgorithmArgon2id:
		return NewArgon2idHasher(), nil
	default:
		return nil, oops.Code("AUTH_UNKNOWN_HASHER").
			With("algorithm", algorithm).
			Errorf("unsupported password hasher %q", algorithm)
	}
}

// NewSalt returns SaltBytes of cryptographically secure random data.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, oops.Code("AUTH_SALT_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SaltBytes).
			Wrap(err)
	}
	return salt, nil
}

// ValidDigest reports whether digest has the shape of a client password digest.
func ValidDigest(digest string) bool {
	return digestRegex.MatchString(digest)
}

// HMACHasher stores hex(HMAC-SHA512(key=salt, msg=digest)).
type HMACHasher struct{}

// NewHMACHasher creates a new HMACHasher.
func NewHMACHasher() *HMACHasher {
	return &HMACHasher{}
}

// Hash produces the HMAC-SHA512 hash of digest keyed by salt.
func (h *HMACHasher) Hash(digest string, salt []byte) (string, error) {
	if err := checkHashInput(digest, salt); err != nil {
		return "", err
	}
	return hex.EncodeToString(hmacSum(digest, salt)), nil
}

// Verify checks if digest matches storedHash under salt.
func (h *HMACHasher) Verify(digest string, salt []byte, storedHash string) (bool, error) {
	return verifyStored(digest, salt, storedHash)
}

// NeedsUpgrade returns true for argon2id hashes.
func (h *HMACHasher) NeedsUpgrade(storedHash string) bool {
	return strings.HasPrefix(storedHash, argon2Prefix)
}

// Argon2idHasher stores an argon2id key in PHC-like form without the salt
// segment, since the salt lives in its own column:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<base64 key>
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id hash of digest under salt.
func (h *Argon2idHasher) Hash(digest string, salt []byte) (string, error) {
	if err := checkHashInput(digest, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(digest), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return fmt.Sprintf(
		"%sv=%d$m=%d,t=%d,p=%d$%s",
		argon2Prefix,
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if digest matches storedHash under salt.
func (h *Argon2idHasher) Verify(digest string, salt []byte, storedHash string) (bool, error) {
	return verifyStored(digest, salt, storedHash)
}

// NeedsUpgrade returns true if the hash is not argon2id.
func (h *Argon2idHasher) NeedsUpgrade(storedHash string) bool {
	return !strings.HasPrefix(storedHash, argon2Prefix)
}

func checkHashInput(digest string, salt []byte) error {
	if digest == "" {
		return ErrEmptyDigest
	}
	if len(salt) == 0 {
		return oops.Code("AUTH_INVALID_SALT").Errorf("salt cannot be empty")
	}
	return nil
}

func hmacSum(digest string, salt []byte) []byte {
	mac := hmac.New(sha512.New, salt)
	mac.Write([]byte(digest))
	return mac.Sum(nil)
}

// verifyStored dispatches on the stored hash format so either hasher can
// verify hashes written by the other.
func verifyStored(digest string, salt []byte, storedHash string) (bool, error) {
	if err := checkHashInput(digest, salt); err != nil {
		return false, err
	}
	if strings.HasPrefix(storedHash, argon2Prefix) {
		return verifyArgon2id(digest, salt, storedHash)
	}

	expected, err := hex.DecodeString(storedHash)
	if err != nil || len(expected) != sha512.Size {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	return hmac.Equal(hmacSum(digest, salt), expected), nil
}

func verifyArgon2id(digest string, salt []byte, storedHash string) (bool, error) {
	// "", "argon2id", "v=19", "m=...,t=...,p=...", key
	parts := strings.Split(storedHash, "$")
	if len(parts) != 5 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	keyLen := len(expected)
	if keyLen == 0 || keyLen > 1<<10 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(digest), salt, time, memory, uint8(threads), uint32(keyLen))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
