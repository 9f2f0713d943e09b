// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"fmt"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/store"
)

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back, and inspect schema migrations on the PostgreSQL database.`,
	}

	config.RegisterDatabaseFlags(cmd.PersistentFlags())

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	cmd.AddCommand(newMigrateVersionCmd())
	cmd.AddCommand(newMigrateForceCmd())

	return cmd
}

// newMigrateUpCmd creates the migrate up subcommand.
func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up [N]",
		Short: "Apply pending migrations",
		Long:  `Apply all pending migrations, or only the next N when a count is given.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd, args, nil)
		},
	}
}

func runMigrateUp(cmd *cobra.Command, args []string, deps *StoreDeps) error {
	if deps == nil {
		deps = &StoreDeps{}
	}
	deps.applyDefaults()

	cfg, err := loadDatabaseConfig(cmd)
	if err != nil {
		return err
	}

	migrator, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer closeMigrator(migrator)

	if len(args) == 1 {
		n, parseErr := parseSteps(args[0])
		if parseErr != nil {
			return parseErr
		}
		if stepErr := migrator.Steps(n); stepErr != nil {
			return stepErr
		}
	} else if upErr := migrator.Up(); upErr != nil {
		return upErr
	}

	schemaVersion, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	if dirty {
		cmd.Println("WARNING: schema is dirty; repair it and run 'warden migrate force'")
	}
	cmd.Printf("Schema at version %d\n", schemaVersion)
	return nil
}

// newMigrateDownCmd creates the migrate down subcommand.
func newMigrateDownCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "down [N]",
		Short: "Roll back migrations",
		Long: `Roll back the last N migrations. Rolling back everything drops all
schema objects and data, and must be requested explicitly with --all.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateDown(cmd, args, all, nil)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "roll back every migration")

	return cmd
}

func runMigrateDown(cmd *cobra.Command, args []string, all bool, deps *StoreDeps) error {
	if deps == nil {
		deps = &StoreDeps{}
	}
	deps.applyDefaults()

	if len(args) == 0 && !all {
		return oops.Code("CONFIG_INVALID").
			Errorf("refusing to roll back every migration without --all; pass a step count or --all")
	}

	cfg, err := loadDatabaseConfig(cmd)
	if err != nil {
		return err
	}

	migrator, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer closeMigrator(migrator)

	if all {
		if downErr := migrator.Down(); downErr != nil {
			return downErr
		}
		cmd.Println("Rolled back all migrations")
		return nil
	}

	n, err := parseSteps(args[0])
	if err != nil {
		return err
	}
	if stepErr := migrator.Steps(-n); stepErr != nil {
		return stepErr
	}

	schemaVersion, _, err := migrator.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Schema at version %d\n", schemaVersion)
	return nil
}

// newMigrateVersionCmd creates the migrate version subcommand.
func newMigrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateVersion(cmd, nil)
		},
	}
}

func runMigrateVersion(cmd *cobra.Command, deps *StoreDeps) error {
	if deps == nil {
		deps = &StoreDeps{}
	}
	deps.applyDefaults()

	cfg, err := loadDatabaseConfig(cmd)
	if err != nil {
		return err
	}

	migrator, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer closeMigrator(migrator)

	schemaVersion, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	if schemaVersion == 0 {
		cmd.Println("No migrations applied")
		return nil
	}

	name, err := store.MigrationName(schemaVersion)
	if err != nil {
		return err
	}
	if name != "" {
		cmd.Printf("Version %d (%s)\n", schemaVersion, name)
	} else {
		cmd.Printf("Version %d\n", schemaVersion)
	}
	if dirty {
		cmd.Println("WARNING: schema is dirty; repair it and run 'warden migrate force'")
	}
	return nil
}

// newMigrateForceCmd creates the migrate force subcommand.
func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the recorded schema version without running migrations",
		Long: `Set the recorded schema version without running any migration. Only for
recovering from a dirty schema after fixing the database by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateForce(cmd, args, nil)
		},
	}
}

func runMigrateForce(cmd *cobra.Command, args []string, deps *StoreDeps) error {
	if deps == nil {
		deps = &StoreDeps{}
	}
	deps.applyDefaults()

	forceVersion, err := parseForceVersion(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadDatabaseConfig(cmd)
	if err != nil {
		return err
	}

	migrator, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer closeMigrator(migrator)

	if forceErr := migrator.Force(forceVersion); forceErr != nil {
		return forceErr
	}

	cmd.Printf("Schema version forced to %d\n", forceVersion)
	return nil
}

// parseForceVersion parses the version argument for migrate force. Sscanf
// semantics apply: scanning stops at the first non-digit, so "3abc" is 3
// and "1.5" is 1.
func parseForceVersion(arg string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(arg, "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", arg).
			Errorf("version must be an integer")
	}
	return version, nil
}

// parseSteps parses the optional step-count argument for up and down.
func parseSteps(arg string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(arg, "%d", &n); err != nil {
		return 0, oops.Code("INVALID_STEPS").With("input", arg).
			Errorf("step count must be an integer")
	}
	if n <= 0 {
		return 0, oops.Code("INVALID_STEPS").With("input", arg).
			Errorf("step count must be positive")
	}
	return n, nil
}

// closeMigrator closes m, logging any error.
func closeMigrator(m Migrator) {
	if err := m.Close(); err != nil {
		slog.Warn("error closing migrator", "error", err)
	}
}
