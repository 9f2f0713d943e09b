// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/observability"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/internal/user"
	userpg "github.com/wardenhq/warden/internal/user/postgres"
)

const (
	// serviceName tags every log record emitted by the process.
	serviceName = "warden"

	// shutdownTimeout bounds the graceful stop of background servers.
	shutdownTimeout = 5 * time.Second

	// readinessProbeTimeout bounds the store ping behind the readiness
	// endpoint so a hung store turns the probe red instead of hanging it.
	readinessProbeTimeout = 2 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Warden service",
		Long: `Run the long-lived Warden process: applies pending schema migrations,
connects to PostgreSQL, wires the authentication service, and exposes
metrics and health endpoints until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath(), cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}

	// Set up default factories
	if deps.PoolOpener == nil {
		deps.PoolOpener = openPool
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.SetDefault(serviceName, version, cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting warden",
		"log_level", cfg.Log.Level,
		"log_format", cfg.Log.Format,
	)

	// Apply pending migrations before anything touches the schema.
	migrator, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return err
	}
	if upErr := migrator.Up(); upErr != nil {
		_ = migrator.Close()
		return upErr
	}
	schemaVersion, dirty, err := migrator.Version()
	if err != nil {
		_ = migrator.Close()
		return err
	}
	if closeErr := migrator.Close(); closeErr != nil {
		slog.Warn("error closing migrator", "error", closeErr)
	}

	slog.Info("schema ready", "schema_version", schemaVersion, "dirty", dirty)

	pool, err := deps.PoolOpener(ctx, store.Config{
		URL:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	slog.Info("store connected", "max_conns", cfg.Database.MaxConns)

	key, err := cfg.Auth.SecretKey()
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(key, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	// Ready means the store still answers; liveness alone stays green while
	// the store is down so operators can tell the two states apart.
	obsServer := deps.ObservabilityServerFactory(cfg.Observability.Addr, func() bool {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), readinessProbeTimeout)
		defer pingCancel()
		return pool.Ping(pingCtx) == nil
	})

	repo := userpg.NewUserRepository(pool,
		userpg.WithMetrics(obsServer.Metrics()),
		userpg.WithQueryTimeout(cfg.Database.QueryTimeout),
	)
	svc, err := user.NewService(repo, auth.NewArgon2idHasher(), tokens,
		user.WithLogger(slog.Default()),
		user.WithMetrics(obsServer.Metrics()),
	)
	if err != nil {
		return err
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	obsErrChan, err := obsServer.Start()
	if err != nil {
		return err
	}
	// Monitor observability server errors - cancel context on error
	go monitorServerErrors(ctx, cancel, obsErrChan, "observability")

	slog.Info("observability server started", "addr", obsServer.Addr())

	// Startup self-check: run one query through the full service path so a
	// broken store or mismatched schema fails the boot, not the first caller.
	users, err := svc.ListUsers(ctx)
	if err != nil {
		stopObservability(obsServer)
		return err
	}

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Warden started")
	slog.Info("warden ready",
		"users", len(users),
		"token_ttl", cfg.Auth.TokenTTL.String(),
		"observability_addr", obsServer.Addr(),
	)

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	// Graceful shutdown
	slog.Info("shutting down...")

	stopObservability(obsServer)

	slog.Info("shutdown complete")
	return nil
}

// stopObservability stops the observability server with a bounded timeout.
func stopObservability(obsServer ObservabilityServer) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := obsServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// This ensures that server failures trigger graceful shutdown of the entire process.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
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
		// Context cancelled, exit monitoring
	}
}
