package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/store"
)

// Default timeout for status queries.
const defaultStatusTimeout = 10 * time.Second

// StoreStatus holds the status information reported by the status command.
type StoreStatus struct {
	Reachable         bool   `json:"reachable"`
	SchemaVersion     uint   `json:"schema_version"`
	SchemaDirty       bool   `json:"schema_dirty,omitempty"`
	MigrationName     string `json:"migration_name,omitempty"`
	AppliedMigrations int    `json:"applied_migrations"`
	PendingMigrations int    `json:"pending_migrations"`
	Users             int64  `json:"users"`
	Error             string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	timeout    time.Duration
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store and schema status",
		Long:  `Show store connectivity, the current schema version, pending migrations, and the user count.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg, nil)
		},
	}

	config.RegisterDatabaseFlags(cmd.Flags())
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultStatusTimeout, "timeout for status queries (e.g., 10s, 1m)")

	return cmd
}

// runStatus executes the status command. An unreachable store is reported,
// not returned as an error; only configuration problems fail the command.
func runStatus(cmd *cobra.Command, cfg *statusConfig, deps *StoreDeps) error {
	if deps == nil {
		deps = &StoreDeps{}
	}
	deps.applyDefaults()

	appCfg, err := loadDatabaseConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	status := gatherStoreStatus(ctx, appCfg, deps)

	var output string
	if cfg.jsonOutput {
		output, err = formatStatusJSON(status)
		if err != nil {
			return err
		}
	} else {
		output = formatStatusTable(status)
	}

	cmd.Println(output)
	return nil
}

// gatherStoreStatus collects connectivity, schema, and row-count facts,
// recording failures in the status instead of aborting on the first one.
func gatherStoreStatus(ctx context.Context, cfg config.Config, deps *StoreDeps) StoreStatus {
	var status StoreStatus

	pool, err := deps.PoolOpener(ctx, store.Config{
		URL:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	})
	if err != nil {
		status.Error = fmt.Sprintf("store unreachable: %v", err)
		return status
	}
	defer pool.Close()
	status.Reachable = true

	migrator, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		status.Error = fmt.Sprintf("migrator: %v", err)
		return status
	}
	defer closeMigrator(migrator)

	schemaVersion, dirty, err := migrator.Version()
	if err != nil {
		status.Error = fmt.Sprintf("schema version: %v", err)
		return status
	}
	status.SchemaVersion = schemaVersion
	status.SchemaDirty = dirty

	if schemaVersion > 0 {
		if name, nameErr := store.MigrationName(schemaVersion); nameErr == nil {
			status.MigrationName = name
		}
	}

	// Applied and pending counts come from the migration source, so they stay
	// meaningful even when version numbers are sparse.
	applied, err := migrator.AppliedMigrations()
	if err != nil {
		status.Error = fmt.Sprintf("applied migrations: %v", err)
		return status
	}
	status.AppliedMigrations = len(applied)

	pending, err := migrator.PendingMigrations()
	if err != nil {
		status.Error = fmt.Sprintf("pending migrations: %v", err)
		return status
	}
	status.PendingMigrations = len(pending)

	// A fresh database has no users table yet; report the schema gap rather
	// than a scary query failure.
	if schemaVersion == 0 || status.PendingMigrations > 0 {
		return status
	}

	var users int64
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM users").Scan(&users); err != nil {
		status.Error = fmt.Sprintf("count users: %v", err)
		return status
	}
	status.Users = users

	return status
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status StoreStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !status.Reachable {
		_, _ = fmt.Fprintf(w, "store\tunreachable\n")
		if status.Error != "" {
			_, _ = fmt.Fprintf(w, "error\t%s\n", status.Error)
		}
		_ = w.Flush()
		return buf.String()
	}

	_, _ = fmt.Fprintf(w, "store\treachable\n")

	schema := fmt.Sprintf("version %d", status.SchemaVersion)
	if status.MigrationName != "" {
		schema = fmt.Sprintf("version %d (%s)", status.SchemaVersion, status.MigrationName)
	}
	if status.SchemaDirty {
		schema += " DIRTY"
	}
	_, _ = fmt.Fprintf(w, "schema\t%s\n", schema)
	_, _ = fmt.Fprintf(w, "applied\t%d\n", status.AppliedMigrations)
	_, _ = fmt.Fprintf(w, "pending\t%d\n", status.PendingMigrations)
	_, _ = fmt.Fprintf(w, "users\t%d\n", status.Users)
	if status.Error != "" {
		_, _ = fmt.Fprintf(w, "error\t%s\n", status.Error)
	}

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status StoreStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}
