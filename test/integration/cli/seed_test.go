// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

//go:build integration

package cli_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

const adminSeed = `
accounts:
  - displayName: Administrator
    email: admin@example.com
    password: change-me
`

// authd runs the CLI with DATABASE_URL pointing at the test container.
func authd(ctx context.Context, withDB bool, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "go", append([]string{"run", "."}, args...)...)
	cmd.Dir = "../../../cmd/authd"
	cmd.Env = append(cmd.Environ(), "XDG_CONFIG_HOME="+GinkgoT().TempDir())
	if withDB {
		cmd.Env = append(cmd.Env, "DATABASE_URL="+env.connStr)
	} else {
		cmd.Env = append(cmd.Env, "DATABASE_URL=")
	}
	output, err := cmd.CombinedOutput()
	return string(output), err
}

var _ = Describe("Migrate Command", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupDatabase(ctx, env.pool)
	})

	It("creates the users table and reports a clean version", func() {
		output, err := authd(ctx, true, "migrate", "up")
		Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", output)
		Expect(output).To(ContainSubstring("Migrations completed successfully"))

		var exists bool
		err = env.pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'users')",
		).Scan(&exists)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())

		output, err = authd(ctx, true, "migrate", "status")
		Expect(err).NotTo(HaveOccurred(), "migrate status failed: %s", output)
		Expect(output).To(ContainSubstring("(clean)"))
		Expect(output).To(ContainSubstring("pending: 0"))
	})

	It("refuses to roll back without --yes", func() {
		output, err := authd(ctx, true, "migrate", "down")
		Expect(err).To(HaveOccurred())
		Expect(output).To(ContainSubstring("--yes"))
	})
})

var _ = Describe("Seed Command", func() {
	var (
		ctx      context.Context
		seedPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		cleanupDatabase(ctx, env.pool)

		output, err := authd(ctx, true, "migrate", "up")
		Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", output)

		seedPath = filepath.Join(GinkgoT().TempDir(), "accounts.yaml")
		Expect(os.WriteFile(seedPath, []byte(adminSeed), 0o600)).To(Succeed())
	})

	It("registers the administrator account", func() {
		output, err := authd(ctx, true, "seed", "--file", seedPath)
		Expect(err).NotTo(HaveOccurred(), "seed failed: %s", output)
		Expect(output).To(ContainSubstring("1 created, 0 skipped"))

		var displayName string
		var active bool
		err = env.pool.QueryRow(ctx,
			"SELECT display_name, active FROM users WHERE email = $1", "admin@example.com",
		).Scan(&displayName, &active)
		Expect(err).NotTo(HaveOccurred())
		Expect(displayName).To(Equal("Administrator"))
		Expect(active).To(BeTrue())
	})

	It("is idempotent (running twice succeeds without duplicates)", func() {
		output, err := authd(ctx, true, "seed", "--file", seedPath)
		Expect(err).NotTo(HaveOccurred(), "first seed failed: %s", output)

		output, err = authd(ctx, true, "seed", "--file", seedPath)
		Expect(err).NotTo(HaveOccurred(), "second seed failed: %s", output)
		Expect(output).To(ContainSubstring("0 created, 1 skipped"))

		var count int
		err = env.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
	})

	It("fails with a database URL error when DATABASE_URL is missing", func() {
		output, err := authd(ctx, false, "seed", "--file", seedPath)
		Expect(err).To(HaveOccurred())
		Expect(output).To(ContainSubstring("database_url"))
	})
})
