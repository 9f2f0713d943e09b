// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/config"
)

// NewTokenCmd creates the token command group.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and inspect bearer tokens",
		Long: `Operator tooling for the token service: issue a token for a user id, or
verify one issued earlier. Uses the configured signing secret and TTL.`,
	}

	config.RegisterAuthFlags(cmd.PersistentFlags())

	cmd.AddCommand(newTokenIssueCmd())
	cmd.AddCommand(newTokenVerifyCmd())

	return cmd
}

// newTokenIssueCmd creates the token issue subcommand.
func newTokenIssueCmd() *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token for a user id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTokenIssue(cmd, subject)
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "user id to issue the token for")
	_ = cmd.MarkFlagRequired("sub")

	return cmd
}

func runTokenIssue(cmd *cobra.Command, subject string) error {
	tokens, err := tokenService(cmd)
	if err != nil {
		return err
	}

	token, err := tokens.Issue(subject)
	if err != nil {
		return err
	}

	// Only the token goes to stdout so the output can be captured directly.
	cmd.Println(token.Value)
	return nil
}

// newTokenVerifyCmd creates the token verify subcommand.
func newTokenVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Verify a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenVerify(cmd, args[0])
		},
	}
}

func runTokenVerify(cmd *cobra.Command, token string) error {
	tokens, err := tokenService(cmd)
	if err != nil {
		return err
	}

	claims, err := tokens.Verify(token)
	if err != nil {
		return err
	}

	cmd.Printf("Subject:    %s\n", claims.Subject)
	if claims.IssuedAt != nil {
		cmd.Printf("Issued at:  %s\n", claims.IssuedAt.Time.UTC().Format(time.RFC3339))
	}
	if claims.ExpiresAt != nil {
		cmd.Printf("Expires at: %s\n", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	}
	return nil
}

// tokenService builds the token service from the auth configuration.
func tokenService(cmd *cobra.Command) (*auth.TokenService, error) {
	cfg, err := config.Load(configPath(), cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Auth.Validate(); err != nil {
		return nil, err
	}

	key, err := cfg.Auth.SecretKey()
	if err != nil {
		return nil, err
	}
	return auth.NewTokenService(key, cfg.Auth.TokenTTL)
}
