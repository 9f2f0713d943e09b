// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package store provides the PostgreSQL connection pool and schema
// migrations backing Warden's repositories.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Defaults applied by Open when the corresponding Config field is zero.
const (
	// DefaultMaxConns bounds concurrent store connections. Callers beyond
	// this queue on acquire rather than failing immediately.
	DefaultMaxConns = 5

	// DefaultConnectTimeout bounds a single connection attempt.
	DefaultConnectTimeout = 5 * time.Second

	// connectRetries is the number of additional ping attempts made by Open
	// with fibonacci backoff before giving up.
	connectRetries = 5

	// connectBackoff is the base delay between ping attempts.
	connectBackoff = 250 * time.Millisecond
)

// Pool is the query surface repositories use. *pgxpool.Pool satisfies it,
// as does pgxmock for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config holds connection settings for Open.
type Config struct {
	// URL is a PostgreSQL connection string (postgres:// or key=value form).
	URL string

	// MaxConns bounds the pool size. Zero means DefaultMaxConns.
	MaxConns int32

	// ConnectTimeout bounds each connection attempt. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// poolConfig parses the URL and applies Config overrides and defaults.
func poolConfig(cfg Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("STORE_CONFIG_INVALID").Wrap(err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	if poolCfg.MaxConns <= 0 {
		poolCfg.MaxConns = DefaultMaxConns
	}
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	if poolCfg.ConnConfig.ConnectTimeout <= 0 {
		poolCfg.ConnConfig.ConnectTimeout = DefaultConnectTimeout
	}
	return poolCfg, nil
}

// Open creates a connection pool and verifies connectivity with a ping,
// retrying with fibonacci backoff so a store that is still starting up does
// not fail the caller immediately. The pool is closed again if the pings
// never succeed.
func Open(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("STORE_OPEN_FAILED").Wrap(err)
	}

	backoff := retry.WithMaxRetries(connectRetries, retry.NewFibonacci(connectBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			slog.Debug("store ping failed, retrying", "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("STORE_UNAVAILABLE").With("max_conns", poolCfg.MaxConns).Wrap(err)
	}

	return pool, nil
}
