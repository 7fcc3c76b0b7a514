// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/phobos/authd/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the authd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authd",
		Short: "authd - credential and session service",
		Long: `authd registers users, verifies salted password hashes and issues
opaque session tokens over a small JSON HTTP API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadDotEnv(".env")
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/authd/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewAccountCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// loadDotEnv loads path into the environment. A missing file is not an
// error; variables already set are not overridden.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// loadConfig builds the configuration from the --config file and the
// command's flags, then validates it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
