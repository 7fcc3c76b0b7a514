// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/phobos/authd/internal/auth"
	"github.com/phobos/authd/internal/config"
	"github.com/phobos/authd/internal/httpapi"
	"github.com/phobos/authd/internal/logging"
	"github.com/phobos/authd/internal/observability"
)

const (
	shutdownTimeout  = 5 * time.Second
	readinessTimeout = 2 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the authd HTTP API",
		Long: `Start the HTTP API serving /{application}/api/{version}/user routes,
plus the metrics and health endpoints on metrics-addr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return oops.With("operation", "load configuration").Wrap(err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}
}

// runServeWithDeps runs the API until ctx is cancelled or a server fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.SetDefault(logging.Options{
		Service: "authd",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   level,
		Writer:  cmd.ErrOrStderr(),
	})
	gin.SetMode(gin.ReleaseMode)

	logger.Info("starting authd",
		"http_addr", cfg.HTTPAddr,
		"store", cfg.Store,
		"prefix", cfg.APIPrefix(),
	)

	if cfg.AutoMigrate && cfg.Store == config.StorePostgres {
		if err := autoMigrate(cfg.DatabaseURL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	users, err := deps.StoreOpener(ctx, cfg)
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("store", cfg.Store).Wrap(err)
	}
	if users.Close != nil {
		defer users.Close()
	}
	logger.Info("user store ready", "store", cfg.Store)

	hasher, err := auth.NewPasswordHasher(cfg.Hasher)
	if err != nil {
		return err
	}
	svc, err := auth.NewService(users.Users, hasher,
		auth.WithLogger(logger),
		auth.WithSessionTTL(cfg.Session.ExpiresIn),
		auth.WithExpiryEnforcement(cfg.Session.EnforceExpiry),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
	)
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, readiness(users.Ping))
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.MetricsAddr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	router, err := httpapi.NewRouter(svc, httpapi.RouterOptions{
		Prefix:         cfg.APIPrefix(),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		stopServers(logger, obsServer)
		return err
	}

	apiServer := deps.HTTPServerFactory(cfg.HTTPAddr, router, logger)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		stopServers(logger, obsServer)
		return oops.Code("HTTP_START_FAILED").With("addr", cfg.HTTPAddr).Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "http")

	cmd.Printf("authd listening on %s%s\n", apiServer.Addr(), cfg.APIPrefix())
	logger.Info("authd ready", "addr", apiServer.Addr())

	<-ctx.Done()
	logger.Info("shutting down...")

	stopServers(logger, apiServer, obsServer)
	logger.Info("shutdown complete")
	return nil
}

// autoMigrate applies pending migrations before the store is opened.
func autoMigrate(databaseURL string, factory func(string) (Migrator, error), logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

// readiness adapts a store ping into a ReadinessChecker.
func readiness(ping func(ctx context.Context) error) observability.ReadinessChecker {
	if ping == nil {
		return func() bool { return true }
	}
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
		defer cancel()
		return ping(ctx) == nil
	}
}

type stopper interface {
	Stop(ctx context.Context) error
}

// stopServers stops each non-nil server in order.
func stopServers(logger *slog.Logger, servers ...stopper) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if s == nil {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			logger.Warn("error stopping server", "error", err)
		}
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when the channel is closed or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
