package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Warden CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warden",
		Short: "Warden - user authentication and persistence service",
		Long: `Warden manages user accounts backed by PostgreSQL: registration with
argon2id credential hashing, login and authentication with signed
time-bounded tokens, and token-gated profile operations.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/warden/warden.yaml)")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewKeygenCmd())
	cmd.AddCommand(NewTokenCmd())

	return cmd
}

// configPath resolves the config file to load: the --config flag wins, then
// the XDG default if a file exists there, otherwise no file layer at all.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	path := filepath.Join(xdg.ConfigDir(), "warden.yaml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// loadDatabaseConfig loads configuration and validates the database section
// only, for commands that never issue tokens.
func loadDatabaseConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath(), cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Database.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
