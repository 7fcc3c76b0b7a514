// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

// Package validation checks request fields against named rule sets.
package validation

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/phobos/authd/internal/auth"
)

// Field names as they appear in request bodies and headers.
const (
	FieldDisplayName = "displayName"
	FieldEmail       = "email"
	FieldPassword    = "password"
	FieldLocalID     = "localId"
	FieldIDToken     = "idToken"
)

// RuleSet names a group of field rules applied to one request.
type RuleSet string

// Rule sets, one per request shape.
const (
	PostUser             RuleSet = "postUser"
	PostLogin            RuleSet = "postLogin"
	GetUser              RuleSet = "getUser"
	PostLogout           RuleSet = "postLogout"
	GetToken             RuleSet = "getToken"
	PatchUserDisplayName RuleSet = "patchUserDisplayName"
	PatchUserEmail       RuleSet = "patchUserEmail"
	PatchUserPassword    RuleSet = "patchUserPassword"
)

// fieldRules are validator tags per field. The password is the client-side
// SHA-256 hex digest, never the plaintext.
var fieldRules = map[string]string{
	FieldDisplayName: fmt.Sprintf("required,min=%d,max=%d", auth.MinDisplayNameLength, auth.MaxDisplayNameLength),
	FieldEmail:       "required,address",
	FieldPassword:    fmt.Sprintf("required,len=%d,hexadecimal", auth.PasswordDigestLen),
	FieldLocalID:     "required,localid",
	FieldIDToken:     fmt.Sprintf("required,len=%d", auth.SessionTokenLength),
}

var sessionFields = []string{FieldLocalID, FieldIDToken}

var ruleSets = map[RuleSet][]string{
	PostUser:             {FieldDisplayName, FieldEmail, FieldPassword},
	PostLogin:            {FieldEmail, FieldPassword},
	GetUser:              sessionFields,
	PostLogout:           sessionFields,
	GetToken:             sessionFields,
	PatchUserDisplayName: {FieldDisplayName},
	PatchUserEmail:       {FieldEmail},
	PatchUserPassword:    {FieldPassword},
}

// FieldError describes one failed rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s failed %q", e.Field, e.Rule)
}

// Validator applies rule sets. It is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator with the address and localid rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for empty or reserved tags.
	_ = v.RegisterValidation("address", func(fl validator.FieldLevel) bool {
		return auth.ValidEmail(fl.Field().String())
	})
	_ = v.RegisterValidation("localid", func(fl validator.FieldLevel) bool {
		_, err := ulid.ParseStrict(fl.Field().String())
		return err == nil
	})
	return &Validator{v: v}
}

// Fields returns the field names checked by set.
func Fields(set RuleSet) []string {
	return slices.Clone(ruleSets[set])
}

// Check validates fields against set and returns the failures sorted by
// field name. Fields absent from the map are validated as empty strings.
func (v *Validator) Check(set RuleSet, fields map[string]string) ([]FieldError, error) {
	names, ok := ruleSets[set]
	if !ok {
		return nil, oops.Code("VALIDATION_UNKNOWN_RULE_SET").With("rule_set", string(set)).Errorf("unknown rule set %q", set)
	}

	var failures []FieldError
	for _, name := range names {
		err := v.v.Var(fields[name], fieldRules[name])
		if err == nil {
			continue
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, oops.Code("VALIDATION_FAILED").With("field", name).Wrap(err)
		}
		for _, fe := range verrs {
			failures = append(failures, FieldError{Field: name, Rule: fe.Tag()})
		}
	}
	slices.SortFunc(failures, func(a, b FieldError) int { return strings.Compare(a.Field, b.Field) })
	return failures, nil
}

// Validate is Check folded into a single error wrapping auth.ErrValidation.
func (v *Validator) Validate(set RuleSet, fields map[string]string) error {
	failures, err := v.Check(set, fields)
	if err != nil {
		return err
	}
	if len(failures) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(failures))
	for _, f := range failures {
		msgs = append(msgs, f.Error())
	}
	return oops.Code(auth.CodeValidation).
		With("rule_set", string(set)).
		With("failures", failures).
		Wrapf(auth.ErrValidation, "%s", strings.Join(msgs, "; "))
}
