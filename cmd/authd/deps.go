// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/phobos/authd/internal/auth"
	"github.com/phobos/authd/internal/auth/memory"
	"github.com/phobos/authd/internal/auth/postgres"
	"github.com/phobos/authd/internal/config"
	"github.com/phobos/authd/internal/httpapi"
	"github.com/phobos/authd/internal/observability"
	"github.com/phobos/authd/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener opens the configured user store.
	// Default: openUserStore
	StoreOpener func(ctx context.Context, cfg *config.Config) (*UserStore, error)

	// MigratorFactory creates a schema migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// HTTPServerFactory creates the API server.
	// Default: httpapi.NewServer
	HTTPServerFactory func(addr string, handler http.Handler, logger *slog.Logger) HTTPServer
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.StoreOpener == nil {
		out.StoreOpener = openUserStore
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = newStoreMigrator
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if out.HTTPServerFactory == nil {
		out.HTTPServerFactory = func(addr string, handler http.Handler, logger *slog.Logger) HTTPServer {
			return httpapi.NewServer(addr, handler, logger)
		}
	}
	return &out
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
}

func newStoreMigrator(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// HTTPServer wraps the methods used from httpapi.Server.
type HTTPServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// UserStore is an opened user repository with its lifecycle hooks.
type UserStore struct {
	Users auth.UserRepository
	// Ping reports store reachability. Nil means always reachable.
	Ping func(ctx context.Context) error
	// Close releases the store. May be nil.
	Close func()
}

// openUserStore opens the store selected by cfg.Store.
func openUserStore(ctx context.Context, cfg *config.Config) (*UserStore, error) {
	if cfg.Store == config.StoreMemory {
		return &UserStore{Users: memory.NewUserRepository()}, nil
	}

	pool, err := store.Connect(ctx, cfg.DatabaseURL, store.DefaultConnectOptions)
	if err != nil {
		return nil, err
	}
	repo := postgres.NewUserRepository(pool)
	return &UserStore{
		Users: repo,
		Ping:  repo.Ping,
		Close: pool.Close,
	}, nil
}
