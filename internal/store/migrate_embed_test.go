// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package store

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	fileNames := make(map[string]bool)
	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	for _, entry := range entries {
		fileNames[entry.Name()] = true
		assert.True(t, pattern.MatchString(entry.Name()),
			"file %s should match pattern NNNNNN_name.(up|down).sql", entry.Name())
	}

	// Every up migration has a matching down migration
	for name := range fileNames {
		if up, ok := strings.CutSuffix(name, ".up.sql"); ok {
			assert.True(t, fileNames[up+".down.sql"], "missing down migration for %s", name)
		}
	}

	assert.True(t, fileNames["000001_create_users.up.sql"])
}

func TestMigrationsFS_UsersSchema(t *testing.T) {
	sql, err := migrationsFS.ReadFile("migrations/000001_create_users.up.sql")
	require.NoError(t, err)

	schema := string(sql)
	for _, column := range []string{
		"display_name", "email", "password_hash", "salt", "session_token_hash",
		"last_logged_in", "login_count", "active", "created_at", "updated_at",
	} {
		assert.Contains(t, schema, column)
	}
	assert.Contains(t, schema, "UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (LOWER(email))")
}
