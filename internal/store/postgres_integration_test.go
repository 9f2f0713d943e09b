// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wardenhq/warden/internal/store"
)

// setupStore starts a PostgreSQL container, migrates it, and opens a pool
// through store.Open.
func setupStore() (*pgxpool.Pool, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("warden_test"),
		postgres.WithUsername("warden"),
		postgres.WithPassword("warden"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return nil, nil, err
	}
	if err := migrator.Close(); err != nil {
		return nil, nil, err
	}

	pool, err := store.Open(ctx, store.Config{
		URL:            connStr,
		MaxConns:       5,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}
	return pool, cleanup, nil
}

// insertUser writes a minimal valid row directly, bypassing the repository,
// so the schema's own rules are what is under test.
func insertUser(ctx context.Context, pool *pgxpool.Pool, userID string, age int) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO users (user_id, name, last_name, email, age, phone, birth_date, credential_hash)
		VALUES ($1, 'Ana', 'Souza', $2, $3, '555-0101', '1994-01-01', 'record')
	`, userID, userID+"@example.com", age)
	return err
}

var _ = Describe("Store schema", func() {
	var pool *pgxpool.Pool
	var cleanup func()

	BeforeEach(func() {
		var err error
		pool, cleanup, err = setupStore()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cleanup()
	})

	It("opens a pool that answers pings", func() {
		Expect(pool.Ping(context.Background())).To(Succeed())
	})

	It("assigns id and timestamps from column defaults", func() {
		ctx := context.Background()

		var id string
		var createdAt, updatedAt time.Time
		err := pool.QueryRow(ctx, `
			INSERT INTO users (user_id, name, last_name, email, age, phone, birth_date, credential_hash)
			VALUES ('schema-defaults', 'Ana', 'Souza', 'a@example.com', 30, '555', '1994-01-01', 'record')
			RETURNING id::text, created_at, updated_at
		`).Scan(&id, &createdAt, &updatedAt)
		Expect(err).NotTo(HaveOccurred())

		_, err = uuid.Parse(id)
		Expect(err).NotTo(HaveOccurred(), "generated ids must be UUIDs")
		Expect(createdAt).To(BeTemporally("~", time.Now(), time.Minute))
		Expect(updatedAt).To(Equal(createdAt))
	})

	It("enforces user id uniqueness in the schema", func() {
		ctx := context.Background()
		Expect(insertUser(ctx, pool, "schema-unique", 30)).To(Succeed())

		err := insertUser(ctx, pool, "schema-unique", 31)
		Expect(err).To(HaveOccurred())

		var pgErr *pgconn.PgError
		Expect(errors.As(err, &pgErr)).To(BeTrue(), "expected a PgError, got %v", err)
		Expect(pgErr.Code).To(Equal(pgerrcode.UniqueViolation))
		Expect(pgErr.ConstraintName).To(Equal("users_user_id_key"))
	})

	It("rejects negative ages in the schema", func() {
		ctx := context.Background()

		err := insertUser(ctx, pool, "schema-age", -1)
		Expect(err).To(HaveOccurred())

		var pgErr *pgconn.PgError
		Expect(errors.As(err, &pgErr)).To(BeTrue(), "expected a PgError, got %v", err)
		Expect(pgErr.Code).To(Equal(pgerrcode.CheckViolation))
	})
})
