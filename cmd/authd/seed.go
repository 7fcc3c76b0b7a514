// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/phobos/authd/internal/auth"
	"github.com/phobos/authd/internal/config"
	"github.com/phobos/authd/internal/seed"
	"github.com/phobos/authd/internal/xdg"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	file    string
	timeout time.Duration
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	return newSeedCmd(openUserStore)
}

func newSeedCmd(opener func(ctx context.Context, cfg *config.Config) (*UserStore, error)) *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register accounts from a seed file",
		Long: `Registers the accounts listed in a YAML seed file, such as the initial
administrator. Accounts whose email is already registered are skipped, so
running the command again is harmless.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg, opener)
		},
	}

	cmd.Flags().StringVar(&cfg.file, "file", "", "seed file (default: $XDG_DATA_HOME/authd/accounts.yaml)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")

	cmd.AddCommand(newValidateSeedCmd())
	return cmd
}

func newValidateSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Validate a seed file without touching the database",
		Long: `Validates a seed file against the seed schema.
Does NOT require a database connection. Useful in CI pipelines.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			path, err := seedPath(path)
			if err != nil {
				return err
			}
			f, err := seed.Load(path)
			if err != nil {
				return err
			}
			cmd.Printf("%s: %d account(s) valid\n", path, len(f.Accounts))
			return nil
		},
	}
}

func seedPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return xdg.SeedFile()
}

func runSeed(cmd *cobra.Command, cfg *seedConfig, opener func(ctx context.Context, cfg *config.Config) (*UserStore, error)) error {
	appCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path, err := seedPath(cfg.file)
	if err != nil {
		return err
	}
	file, err := seed.Load(path)
	if err != nil {
		return err
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	if appCfg.Store == config.StoreMemory {
		cmd.PrintErrln("warning: seeding the memory store; accounts are discarded on exit")
	}

	cmd.Println("Connecting to user store...")
	users, err := opener(ctx, appCfg)
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("store", appCfg.Store).Wrap(err)
	}
	if users.Close != nil {
		defer users.Close()
	}

	hasher, err := auth.NewPasswordHasher(appCfg.Hasher)
	if err != nil {
		return err
	}
	svc, err := auth.NewService(users.Users, hasher)
	if err != nil {
		return err
	}

	res, err := seed.Apply(ctx, svc, file, nil)
	if err != nil {
		return err
	}

	cmd.Printf("Seeding complete: %d created, %d skipped\n", res.Created, res.Skipped)
	return nil
}
