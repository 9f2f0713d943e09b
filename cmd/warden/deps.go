package main

import (
	"context"

	"github.com/wardenhq/warden/internal/observability"
	"github.com/wardenhq/warden/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolOpener opens the PostgreSQL connection pool.
	// Default: store.Open
	PoolOpener func(ctx context.Context, cfg store.Config) (Pool, error)

	// MigratorFactory creates the schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer
}

// StoreDeps contains injectable dependencies for commands that talk to the
// store without serving anything (migrate, status, seed).
// All fields with nil values will use their default implementations.
type StoreDeps struct {
	// PoolOpener opens the PostgreSQL connection pool.
	// Default: store.Open
	PoolOpener func(ctx context.Context, cfg store.Config) (Pool, error)

	// MigratorFactory creates the schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// applyDefaults fills nil factories with the production implementations.
func (d *StoreDeps) applyDefaults() {
	if d.PoolOpener == nil {
		d.PoolOpener = openPool
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
}

// openPool adapts store.Open to the Pool interface.
func openPool(ctx context.Context, cfg store.Config) (Pool, error) {
	return store.Open(ctx, cfg)
}

// Pool interface wraps the pgxpool methods the commands manage directly.
// Repositories consume the embedded store.Pool query surface.
type Pool interface {
	store.Pool
	Ping(ctx context.Context) error
	Close()
}

// Migrator interface wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// ObservabilityServer interface wraps the methods used from
// observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
