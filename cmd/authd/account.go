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
)

const defaultAccountTimeout = 10 * time.Second

// NewAccountCmd creates the account subcommand.
func NewAccountCmd() *cobra.Command {
	return newAccountCmd(openUserStore)
}

func newAccountCmd(opener func(ctx context.Context, cfg *config.Config) (*UserStore, error)) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Administer registered accounts",
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultAccountTimeout, "timeout for database operations")

	toggle := func(use, short string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " EMAIL",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSetActive(cmd, args[0], active, timeout, opener)
			},
		}
	}
	cmd.AddCommand(
		toggle("disable", "Disable an account; its session stops verifying", false),
		toggle("enable", "Re-enable a disabled account", true),
	)
	return cmd
}

func runSetActive(
	cmd *cobra.Command,
	email string,
	active bool,
	timeout time.Duration,
	opener func(ctx context.Context, cfg *config.Config) (*UserStore, error),
) error {
	appCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

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
	if err := svc.SetActive(ctx, email, active); err != nil {
		return err
	}

	state := "disabled"
	if active {
		state = "enabled"
	}
	cmd.Printf("Account %s %s\n", email, state)
	return nil
}
