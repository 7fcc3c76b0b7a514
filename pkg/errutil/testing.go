// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode fails the test unless err carries the oops code want.
func AssertErrorCode(t *testing.T, err error, want string) {
	t.Helper()
	require.Error(t, err)
	_, ok := oops.AsOops(err)
	require.Truef(t, ok, "want oops error with code %q, got %T: %v", want, err, err)
	assert.Equal(t, want, Code(err), "error: %v", err)
}

// AssertErrorContext fails the test unless err carries key=want in its
// merged oops context.
func AssertErrorContext(t *testing.T, err error, key string, want any) {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.Truef(t, ok, "want oops error with %q in context, got %T: %v", key, err, err)
	got, present := oopsErr.Context()[key]
	require.Truef(t, present, "context key %q missing from %v", key, oopsErr.Context())
	assert.Equal(t, want, got)
}
