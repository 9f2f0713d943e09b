// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"crypto/rand"
	"encoding/hex"
	"io"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
)

// keygenConfig holds configuration for the keygen command.
type keygenConfig struct {
	bytes int
}

// NewKeygenCmd creates the keygen subcommand.
func NewKeygenCmd() *cobra.Command {
	cfg := &keygenConfig{}

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a token signing secret",
		Long: `Generate a cryptographically random token signing secret and print it
as hex. Store it as auth.token-secret in the config file or export it
as WARDEN_TOKEN_SECRET.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKeygen(cmd, cfg, nil)
		},
	}

	cmd.Flags().IntVar(&cfg.bytes, "bytes", config.MinTokenSecretBytes, "number of random bytes in the secret")

	return cmd
}

// runKeygen generates the secret, reading randomness from reader. A nil
// reader means crypto/rand.
func runKeygen(cmd *cobra.Command, cfg *keygenConfig, reader io.Reader) error {
	if cfg.bytes < config.MinTokenSecretBytes {
		return oops.Code("INVALID_KEY_SIZE").With("bytes", cfg.bytes).
			Errorf("secret must be at least %d bytes", config.MinTokenSecretBytes)
	}
	if reader == nil {
		reader = rand.Reader
	}

	buf := make([]byte, cfg.bytes)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return oops.Code("KEYGEN_FAILED").Wrap(err)
	}

	cmd.Println(hex.EncodeToString(buf))
	return nil
}
