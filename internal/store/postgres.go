// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

// Package store bootstraps the PostgreSQL connection pool and schema.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions tune the startup ping loop.
type ConnectOptions struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

// DefaultConnectOptions waits roughly 30 seconds for the database.
var DefaultConnectOptions = ConnectOptions{
	MaxRetries: 8,
	BaseDelay:  250 * time.Millisecond,
}

// pinger is the part of *pgxpool.Pool used to check connectivity.
type pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pool for databaseURL and waits until the server answers
// a ping, backing off exponentially between attempts.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_INVALID_URL").Wrap(err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("host", cfg.ConnConfig.Host).Wrap(err)
	}

	if err := waitForPing(ctx, pool, opts); err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").With("host", cfg.ConnConfig.Host).Wrap(err)
	}
	return pool, nil
}

func waitForPing(ctx context.Context, db pinger, opts ConnectOptions) error {
	backoff := retry.WithMaxRetries(opts.MaxRetries, retry.NewExponential(opts.BaseDelay))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
