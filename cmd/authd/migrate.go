// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/phobos/authd/internal/config"
	"github.com/phobos/authd/internal/store"
)

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(newStoreMigrator)
}

func newMigrateCmd(factory func(databaseURL string) (Migrator, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the users table schema",
		Long:  `Apply, roll back or inspect database migrations for the users table.`,
	}

	var yes bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations (drops all users)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops the users table; rerun with --yes")
			}
			return withMigrator(cmd, factory, func(m Migrator) error {
				cmd.Println("Rolling back migrations...")
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&yes, "yes", false, "confirm dropping the users table")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, factory, func(m Migrator) error {
					pending, err := m.PendingMigrations()
					if err != nil {
						return err
					}
					if len(pending) == 0 {
						cmd.Println("No pending migrations")
						return nil
					}
					cmd.Printf("Applying %d migration(s)...\n", len(pending))
					if err := m.Up(); err != nil {
						return err
					}
					cmd.Println("Migrations completed successfully")
					return nil
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show the current schema version and pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, factory, func(m Migrator) error {
					return printMigrationStatus(cmd, m)
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the recorded version without running migrations",
			Long: `Set the recorded schema version and clear the dirty flag. Use after
manually repairing a failed migration.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := parseForceVersion(args[0])
				if err != nil {
					return err
				}
				return withMigrator(cmd, factory, func(m Migrator) error {
					if err := m.Force(version); err != nil {
						return err
					}
					cmd.Printf("Forced schema version to %d\n", version)
					return nil
				})
			},
		},
	)
	return cmd
}

// withMigrator loads configuration, opens a migrator and runs fn.
func withMigrator(cmd *cobra.Command, factory func(string) (Migrator, error), fn func(Migrator) error) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	databaseURL, err := getDatabaseURL(cfg)
	if err != nil {
		return err
	}

	m, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
		}
	}()
	return fn(m)
}

// getDatabaseURL returns the configured database URL or a CONFIG_INVALID error.
func getDatabaseURL(cfg *config.Config) (string, error) {
	if cfg.DatabaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("database URL is required (set DATABASE_URL or --database-url)")
	}
	return cfg.DatabaseURL, nil
}

// parseForceVersion parses the force argument. Parsing stops at the first
// non-digit, so "3abc" is 3.
func parseForceVersion(arg string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(arg), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("arg", arg).Wrap(err)
	}
	return version, nil
}

func printMigrationStatus(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	state := "clean"
	if dirty {
		state = "dirty"
	}
	cmd.Printf("Current version: %d (%s)\n", version, state)
	cmd.Printf("Applied: %d, pending: %d\n", len(applied), len(pending))
	for _, v := range pending {
		name, err := store.MigrationName(v)
		if err != nil {
			return err
		}
		if name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		cmd.Printf("  pending %s\n", name)
	}
	if dirty {
		cmd.Println("Database is dirty; repair it and run 'authd migrate force VERSION'")
	}
	return nil
}
