// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/internal/user"
	userpg "github.com/wardenhq/warden/internal/user/postgres"
)

var (
	testPool   *pgxpool.Pool
	svc        *user.Service
	signingKey = bytes.Repeat([]byte{0x5a}, 32)
	terminate  func()
)

var _ = BeforeSuite(func() {
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
	Expect(err).NotTo(HaveOccurred())

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	pool, err := store.Open(ctx, store.Config{
		URL:            connStr,
		MaxConns:       5,
		ConnectTimeout: 10 * time.Second,
	})
	Expect(err).NotTo(HaveOccurred())

	tokens, err := auth.NewTokenService(signingKey, time.Hour)
	Expect(err).NotTo(HaveOccurred())

	repo := userpg.NewUserRepository(pool)
	svc, err = user.NewService(repo, auth.NewArgon2idHasher(), tokens)
	Expect(err).NotTo(HaveOccurred())

	testPool = pool
	terminate = func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}
})

var _ = AfterSuite(func() {
	if terminate != nil {
		terminate()
	}
})

// lifecycleDraft builds a registration draft whose email tracks the user id,
// so every spec works on its own rows.
func lifecycleDraft(userID string) user.Draft {
	return user.Draft{
		UserID:    userID,
		Name:      "Ana",
		LastName:  "Souza",
		Email:     userID + "@example.com",
		Age:       30,
		Phone:     "555-0101",
		BirthDate: time.Date(1994, 1, 1, 0, 0, 0, 0, time.UTC),
		Secret:    "correct horse battery staple",
	}
}

var _ = Describe("Account lifecycle", func() {
	It("registers, logs in, authenticates, updates, and deletes", func() {
		ctx := context.Background()
		draft := lifecycleDraft("it-lifecycle")

		created, registerToken, err := svc.Register(ctx, draft)
		Expect(err).NotTo(HaveOccurred())
		Expect(created.ID).NotTo(BeEmpty())
		Expect(created.CredentialHash).NotTo(Equal(draft.Secret), "the secret must never be stored verbatim")
		Expect(registerToken.Value).NotTo(BeEmpty())

		loginToken, err := svc.Login(ctx, draft.UserID, draft.Secret)
		Expect(err).NotTo(HaveOccurred())

		authed, err := svc.Authenticate(ctx, loginToken.Value)
		Expect(err).NotTo(HaveOccurred())
		Expect(authed.UserID).To(Equal(draft.UserID))

		newPhone := "555-9999"
		updated, err := svc.UpdateProfile(ctx, loginToken.Value, user.Patch{Phone: &newPhone})
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.Phone).To(Equal(newPhone))
		Expect(updated.ID).To(Equal(created.ID))
		Expect(updated.UserID).To(Equal(created.UserID))
		Expect(updated.Email).To(Equal(draft.Email), "unpatched fields must survive the update")

		Expect(svc.DeleteAccount(ctx, loginToken.Value)).To(Succeed())

		_, err = svc.Authenticate(ctx, loginToken.Value)
		Expect(err).To(MatchError(user.ErrUnauthorized), "a deleted account's tokens must stop authenticating")
	})
})

var _ = Describe("Registration uniqueness", func() {
	It("admits exactly one winner under concurrent duplicate registration", func() {
		ctx := context.Background()
		const attempts = 8

		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := range attempts {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer GinkgoRecover()
				_, _, errs[i] = svc.Register(ctx, lifecycleDraft("it-race"))
			}(i)
		}
		wg.Wait()

		var winners, losers int
		for _, err := range errs {
			switch {
			case err == nil:
				winners++
			case errors.Is(err, user.ErrDuplicateUser):
				losers++
			default:
				Fail(fmt.Sprintf("unexpected registration error: %v", err))
			}
		}
		Expect(winners).To(Equal(1), "the unique constraint must pick exactly one winner")
		Expect(losers).To(Equal(attempts - 1))

		var count int
		err := testPool.QueryRow(ctx, "SELECT count(*) FROM users WHERE user_id = $1", "it-race").Scan(&count)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
	})
})

var _ = Describe("Login", func() {
	It("does not reveal whether the user id or the secret was wrong", func() {
		ctx := context.Background()
		draft := lifecycleDraft("it-login")
		_, _, err := svc.Register(ctx, draft)
		Expect(err).NotTo(HaveOccurred())

		_, wrongSecret := svc.Login(ctx, draft.UserID, "not the secret")
		_, unknownUser := svc.Login(ctx, "it-nobody", draft.Secret)

		Expect(wrongSecret).To(MatchError(user.ErrInvalidCredentials))
		Expect(unknownUser).To(MatchError(user.ErrInvalidCredentials))
		Expect(wrongSecret.Error()).To(Equal(unknownUser.Error()))
	})

	It("issues tokens that authenticate as the logged-in user", func() {
		ctx := context.Background()
		draft := lifecycleDraft("it-login-token")
		created, _, err := svc.Register(ctx, draft)
		Expect(err).NotTo(HaveOccurred())

		token, err := svc.Login(ctx, draft.UserID, draft.Secret)
		Expect(err).NotTo(HaveOccurred())

		authed, err := svc.Authenticate(ctx, token.Value)
		Expect(err).NotTo(HaveOccurred())
		Expect(authed.ID).To(Equal(created.ID))
	})
})

var _ = Describe("Tokens", func() {
	It("rejects expired tokens at authentication", func() {
		ctx := context.Background()
		draft := lifecycleDraft("it-expired")
		created, _, err := svc.Register(ctx, draft)
		Expect(err).NotTo(HaveOccurred())

		// Issue under a clock far enough in the past that the token is
		// already expired by real time.
		backdated, err := auth.NewTokenService(signingKey, time.Minute,
			auth.WithClock(func() time.Time { return time.Now().Add(-2 * time.Minute) }))
		Expect(err).NotTo(HaveOccurred())

		stale, err := backdated.Issue(created.ID)
		Expect(err).NotTo(HaveOccurred())

		_, err = svc.Authenticate(ctx, stale.Value)
		Expect(err).To(MatchError(user.ErrUnauthorized))
	})

	It("rejects tampered tokens at authentication", func() {
		ctx := context.Background()
		draft := lifecycleDraft("it-tampered")
		_, token, err := svc.Register(ctx, draft)
		Expect(err).NotTo(HaveOccurred())

		flip := byte('A')
		if token.Value[len(token.Value)-1] == 'A' {
			flip = 'B'
		}
		tampered := token.Value[:len(token.Value)-1] + string(flip)

		_, err = svc.Authenticate(ctx, tampered)
		Expect(err).To(MatchError(user.ErrUnauthorized))
	})
})
