// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

// Package seed registers accounts listed in a YAML seed file.
package seed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/phobos/authd/internal/auth"
)

// File is a seed file.
type File struct {
	Accounts []Account `json:"accounts" yaml:"accounts" jsonschema:"minItems=1"`
}

// Account is one account to register. Exactly one of Password and
// PasswordDigest is set; a plaintext password is digested with SHA-256
// the same way clients do before sending it.
type Account struct {
	DisplayName    string `json:"displayName" yaml:"displayName" jsonschema:"minLength=1,maxLength=50"`
	Email          string `json:"email" yaml:"email"`
	Password       string `json:"password,omitempty" yaml:"password,omitempty" jsonschema:"minLength=1"`
	PasswordDigest string `json:"passwordDigest,omitempty" yaml:"passwordDigest,omitempty" jsonschema:"minLength=64,maxLength=64"`
}

// Digest returns the SHA-256 hex digest submitted for the account.
func (a Account) Digest() string {
	if a.PasswordDigest != "" {
		return strings.ToLower(a.PasswordDigest)
	}
	sum := sha256.Sum256([]byte(a.Password))
	return hex.EncodeToString(sum[:])
}

// Load reads and parses the seed file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, oops.Code("SEED_READ_FAILED").With("path", path).Wrap(err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return f, nil
}

// Parse validates data against the seed schema and decodes it.
func Parse(data []byte) (*File, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, oops.Code("SEED_INVALID").Wrap(err)
	}

	seen := make(map[string]int, len(f.Accounts))
	for i, a := range f.Accounts {
		if (a.Password == "") == (a.PasswordDigest == "") {
			return nil, oops.Code("SEED_INVALID").
				With("index", i).
				Errorf("account %d: exactly one of password and passwordDigest is required", i)
		}
		if a.PasswordDigest != "" && !auth.ValidDigest(strings.ToLower(a.PasswordDigest)) {
			return nil, oops.Code("SEED_INVALID").
				With("index", i).
				Errorf("account %d: passwordDigest must be 64 hex characters", i)
		}
		key := strings.ToLower(a.Email)
		if prev, dup := seen[key]; dup {
			return nil, oops.Code("SEED_INVALID").
				With("index", i).
				With("email", a.Email).
				Errorf("account %d: email already listed at %d", i, prev)
		}
		seen[key] = i
	}
	return &f, nil
}

// Registrar creates accounts. *auth.Service satisfies it.
type Registrar interface {
	Register(ctx context.Context, profile auth.Profile, passwordDigest string) (ulid.ULID, error)
}

// Result counts what Apply did.
type Result struct {
	Created int
	Skipped int
}

// Apply registers every account in f. Accounts whose email is already
// registered are skipped, so applying a file twice is harmless.
func Apply(ctx context.Context, r Registrar, f *File, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var res Result
	for _, a := range f.Accounts {
		id, err := r.Register(ctx, auth.Profile{DisplayName: a.DisplayName, Email: a.Email}, a.Digest())
		switch {
		case err == nil:
			res.Created++
			logger.InfoContext(ctx, "seeded account", "user_id", id.String(), "email", a.Email)
		case errors.Is(err, auth.ErrDuplicateEntry):
			res.Skipped++
			logger.InfoContext(ctx, "account already exists, skipping", "email", a.Email)
		default:
			return res, oops.Code("SEED_FAILED").With("email", a.Email).Wrap(err)
		}
	}
	return res, nil
}
