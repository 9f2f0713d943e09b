// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package config loads Warden's runtime configuration. Values are layered:
// compiled defaults, then an optional YAML file, then command-line flags.
// The database URL and token secret may also arrive through environment
// variables when no other layer sets them.
package config

import (
	"encoding/hex"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Environment variables consulted for secrets left unset by the file and
// flag layers.
const (
	EnvDatabaseURL = "WARDEN_DATABASE_URL"
	EnvTokenSecret = "WARDEN_TOKEN_SECRET"
)

// MinTokenSecretBytes is the smallest decoded signing key Validate accepts.
const MinTokenSecretBytes = 32

// Config is the full runtime configuration.
type Config struct {
	Log           Log           `koanf:"log"`
	Database      Database      `koanf:"database"`
	Auth          Auth          `koanf:"auth"`
	Observability Observability `koanf:"observability"`
}

// Log controls the slog handler.
type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Database holds PostgreSQL pool settings.
type Database struct {
	URL            string        `koanf:"url"`
	MaxConns       int32         `koanf:"max-conns"`
	ConnectTimeout time.Duration `koanf:"connect-timeout"`
	QueryTimeout   time.Duration `koanf:"query-timeout"`
}

// Auth holds token signing settings. TokenSecret is hex-encoded; it never
// appears in logs.
type Auth struct {
	TokenSecret string        `koanf:"token-secret"`
	TokenTTL    time.Duration `koanf:"token-ttl"`
}

// Observability holds the metrics and health endpoint settings.
type Observability struct {
	Addr string `koanf:"addr"`
}

// Default returns the compiled-in defaults. The database URL and token
// secret have no default; they must come from a file, a flag, or the
// environment.
func Default() Config {
	return Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Database: Database{
			MaxConns:       5,
			ConnectTimeout: 5 * time.Second,
			QueryTimeout:   5 * time.Second,
		},
		Auth: Auth{
			TokenTTL: 24 * time.Hour,
		},
		Observability: Observability{
			Addr: ":9090",
		},
	}
}

// RegisterFlags defines every configuration flag on fs with defaults from
// Default(). Flag names map to config keys by replacing the first dash
// with a dot: --database-url sets database.url.
func RegisterFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String("log-level", def.Log.Level, "log level: debug, info, warn, or error")
	fs.String("log-format", def.Log.Format, "log format: text or json")
	RegisterDatabaseFlags(fs)
	RegisterAuthFlags(fs)
	fs.String("observability-addr", def.Observability.Addr, "listen address for metrics and health endpoints")
}

// RegisterDatabaseFlags defines only the database flags, for commands that
// touch the store but never issue tokens.
func RegisterDatabaseFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.Int32("database-max-conns", def.Database.MaxConns, "maximum connections in the pool")
	fs.Duration("database-connect-timeout", def.Database.ConnectTimeout, "timeout for opening the pool")
	fs.Duration("database-query-timeout", def.Database.QueryTimeout, "per-statement timeout")
}

// RegisterAuthFlags defines only the token signing flags.
func RegisterAuthFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String("auth-token-secret", "", "hex-encoded token signing secret")
	fs.Duration("auth-token-ttl", def.Auth.TokenTTL, "lifetime of issued tokens")
}

// Load builds the effective configuration. path names an optional YAML
// file; empty skips that layer. fs carries flag overrides and may be nil.
// Flags left at their defaults do not override file values.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			return strings.Replace(f.Name, "-", ".", 1), posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}

	// The environment fills secrets only when nothing else set them.
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv(EnvDatabaseURL)
	}
	if cfg.Auth.TokenSecret == "" {
		cfg.Auth.TokenSecret = os.Getenv(EnvTokenSecret)
	}

	return cfg, nil
}

// Validate checks the full configuration for use by serve. Commands that
// only need a slice of it validate the matching section instead.
func (c Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if c.Observability.Addr == "" {
		return oops.Code("CONFIG_INVALID").With("field", "observability.addr").
			Errorf("observability addr is required")
	}
	return nil
}

// Validate checks the log section.
func (l Log) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return oops.Code("CONFIG_INVALID").With("field", "log.level").With("value", l.Level).
			Errorf("log level must be one of debug, info, warn, error")
	}

	switch l.Format {
	case "text", "json":
	default:
		return oops.Code("CONFIG_INVALID").With("field", "log.format").With("value", l.Format).
			Errorf("log format must be text or json")
	}
	return nil
}

// Validate checks the database section.
func (d Database) Validate() error {
	if d.URL == "" {
		return oops.Code("CONFIG_INVALID").With("field", "database.url").
			Errorf("database url is required (set database.url, --database-url, or %s)", EnvDatabaseURL)
	}
	if d.MaxConns <= 0 {
		return oops.Code("CONFIG_INVALID").With("field", "database.max-conns").
			Errorf("database max-conns must be positive")
	}
	if d.ConnectTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").With("field", "database.connect-timeout").
			Errorf("database connect-timeout must be positive")
	}
	if d.QueryTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").With("field", "database.query-timeout").
			Errorf("database query-timeout must be positive")
	}
	return nil
}

// Validate checks the auth section, including that the secret decodes.
func (a Auth) Validate() error {
	if a.TokenSecret == "" {
		return oops.Code("CONFIG_INVALID").With("field", "auth.token-secret").
			Errorf("token secret is required (set auth.token-secret, --auth-token-secret, or %s)", EnvTokenSecret)
	}
	if _, err := a.SecretKey(); err != nil {
		return err
	}
	if a.TokenTTL <= 0 {
		return oops.Code("CONFIG_INVALID").With("field", "auth.token-ttl").
			Errorf("token ttl must be positive")
	}
	return nil
}

// SecretKey decodes the hex token secret and enforces the minimum size for
// HS256 signing.
func (a Auth) SecretKey() ([]byte, error) {
	key, err := hex.DecodeString(a.TokenSecret)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("field", "auth.token-secret").
			Wrapf(err, "token secret must be hex-encoded")
	}
	if len(key) < MinTokenSecretBytes {
		return nil, oops.Code("CONFIG_INVALID").With("field", "auth.token-secret").
			With("min_bytes", MinTokenSecretBytes).
			Errorf("token secret must decode to at least %d bytes", MinTokenSecretBytes)
	}
	return key, nil
}
