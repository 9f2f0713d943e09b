// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/internal/user"
	userpg "github.com/wardenhq/warden/internal/user/postgres"
)

// Default timeout for the seed command.
const defaultSeedTimeout = 30 * time.Second

// birthDateLayout is the date format accepted in fixture files.
const birthDateLayout = "2006-01-02"

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	file    string
	timeout time.Duration
}

// seedFile is the YAML shape of a fixture file.
type seedFile struct {
	Users []seedEntry `yaml:"users"`
}

// seedEntry is one user in a fixture file.
type seedEntry struct {
	UserID     string  `yaml:"user_id"`
	Secret     string  `yaml:"secret"`
	Name       string  `yaml:"name"`
	LastName   string  `yaml:"last_name"`
	Email      string  `yaml:"email"`
	Age        int     `yaml:"age"`
	Phone      string  `yaml:"phone"`
	Address    *string `yaml:"address"`
	PlaceBirth *string `yaml:"place_birth"`
	BirthDate  string  `yaml:"birth_date"`
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register users from a fixture file",
		Long: `Registers every user in a YAML fixture through the full registration
path, hashing each secret. This command is idempotent - users that
already exist are skipped, not duplicated.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg, nil)
		},
	}

	config.RegisterDatabaseFlags(cmd.Flags())
	config.RegisterAuthFlags(cmd.Flags())
	cmd.Flags().StringVar(&cfg.file, "file", "", "YAML fixture file with users to register")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runSeed(cmd *cobra.Command, cfg *seedConfig, deps *StoreDeps) error {
	if deps == nil {
		deps = &StoreDeps{}
	}
	deps.applyDefaults()

	appCfg, err := config.Load(configPath(), cmd.Flags())
	if err != nil {
		return err
	}
	if err := appCfg.Database.Validate(); err != nil {
		return err
	}
	if err := appCfg.Auth.Validate(); err != nil {
		return err
	}

	drafts, err := parseSeedFile(cfg.file)
	if err != nil {
		return err
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	cmd.Println("Running migrations...")
	migrator, err := deps.MigratorFactory(appCfg.Database.URL)
	if err != nil {
		return err
	}
	if upErr := migrator.Up(); upErr != nil {
		_ = migrator.Close()
		return upErr
	}
	closeMigrator(migrator)

	cmd.Println("Connecting to database...")
	pool, err := deps.PoolOpener(ctx, store.Config{
		URL:            appCfg.Database.URL,
		MaxConns:       appCfg.Database.MaxConns,
		ConnectTimeout: appCfg.Database.ConnectTimeout,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	key, err := appCfg.Auth.SecretKey()
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(key, appCfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	repo := userpg.NewUserRepository(pool, userpg.WithQueryTimeout(appCfg.Database.QueryTimeout))
	svc, err := user.NewService(repo, auth.NewArgon2idHasher(), tokens)
	if err != nil {
		return err
	}

	var created, skipped int
	for _, draft := range drafts {
		_, _, registerErr := svc.Register(ctx, draft)
		if registerErr == nil {
			cmd.Printf("Registered %q\n", draft.UserID)
			created++
			continue
		}

		if !errors.Is(registerErr, user.ErrDuplicateUser) {
			return oops.Code("SEED_FAILED").With("user_id", draft.UserID).Wrap(registerErr)
		}

		cmd.Printf("User %q already exists, skipping\n", draft.UserID)
		skipped++

		// Verify the existing row matches the fixture so drifted seeds are
		// visible without failing the run.
		existing, getErr := svc.GetUserByUserID(ctx, draft.UserID)
		if getErr != nil {
			slog.Warn("could not verify existing seed user",
				"user_id", draft.UserID,
				"error", getErr)
			continue
		}
		if existing.Email != draft.Email {
			slog.Warn("seed user email mismatch",
				"user_id", draft.UserID,
				"expected", draft.Email,
				"actual", existing.Email)
		}
		if existing.Name != draft.Name || existing.LastName != draft.LastName {
			slog.Warn("seed user name mismatch",
				"user_id", draft.UserID,
				"expected", draft.Name+" "+draft.LastName,
				"actual", existing.Name+" "+existing.LastName)
		}
	}

	cmd.Printf("Seeding complete: %d registered, %d skipped\n", created, skipped)
	return nil
}

// parseSeedFile reads a YAML fixture into drafts. Field-level validation is
// left to the registration path; only the file shape and dates are checked
// here.
func parseSeedFile(path string) ([]user.Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("SEED_FILE_INVALID").With("path", path).Wrap(err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, oops.Code("SEED_FILE_INVALID").With("path", path).Wrap(err)
	}
	if len(f.Users) == 0 {
		return nil, oops.Code("SEED_FILE_INVALID").With("path", path).
			Errorf("fixture contains no users")
	}

	drafts := make([]user.Draft, 0, len(f.Users))
	for i, entry := range f.Users {
		birthDate, parseErr := time.Parse(birthDateLayout, entry.BirthDate)
		if parseErr != nil {
			return nil, oops.Code("SEED_FILE_INVALID").
				With("path", path).
				With("index", i).
				With("user_id", entry.UserID).
				Wrapf(parseErr, "birth_date must be %s", birthDateLayout)
		}
		drafts = append(drafts, user.Draft{
			UserID:     entry.UserID,
			Name:       entry.Name,
			LastName:   entry.LastName,
			Email:      entry.Email,
			Age:        entry.Age,
			Phone:      entry.Phone,
			Address:    entry.Address,
			PlaceBirth: entry.PlaceBirth,
			BirthDate:  birthDate,
			Secret:     entry.Secret,
		})
	}
	return drafts, nil
}
