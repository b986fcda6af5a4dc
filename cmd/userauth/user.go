// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/userauth/internal/auth"
	"github.com/holomush/userauth/internal/store"
)

// storeOpener opens the identity store for operator commands. Tests replace it.
var storeOpener = store.Open

// NewUserCmd creates the user subcommand for operator actions on identities.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Inspect or remove registered users",
	}
	cmd.PersistentFlags().String("database-url", "", "database URL (sqlite:///path or postgres://...)")
	cmd.PersistentFlags().String("email", "", "email address of the user")
	_ = cmd.MarkPersistentFlagRequired("email")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print a user as JSON",
		Args:  cobra.NoArgs,
		RunE:  runUserShow,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Delete a user",
		Long: `Delete a user by email. Tokens already issued to the user stop resolving
and confirm_token answers 404 for them.`,
		Args: cobra.NoArgs,
		RunE: runUserDelete,
	})

	return cmd
}

func runUserShow(cmd *cobra.Command, _ []string) error {
	return withIdentity(cmd, func(_ context.Context, _ *store.Store, cred *auth.Credential) error {
		out, err := json.MarshalIndent(cred.Public(), "", "  ")
		if err != nil {
			return oops.Code("USER_ENCODE_FAILED").Wrap(err)
		}
		cmd.Println(string(out))
		return nil
	})
}

func runUserDelete(cmd *cobra.Command, _ []string) error {
	return withIdentity(cmd, func(ctx context.Context, s *store.Store, cred *auth.Credential) error {
		if err := s.Identities.Delete(ctx, cred.ID); err != nil {
			return oops.With("operation", "delete user").Wrap(err)
		}
		cmd.Printf("Deleted user %s (%s)\n", cred.Email, cred.ID)
		return nil
	})
}

// withIdentity opens the store, looks up the --email user and calls fn.
func withIdentity(cmd *cobra.Command, fn func(ctx context.Context, s *store.Store, cred *auth.Credential) error) error {
	rawEmail, err := cmd.Flags().GetString("email")
	if err != nil {
		return oops.Code("CLI_FLAG_INVALID").Wrap(err)
	}
	email, err := auth.NormalizeEmail(rawEmail)
	if err != nil {
		return oops.With("flag", "email").Wrap(err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	opts := store.DefaultOptions()
	opts.ConnectAttempts = cfg.Database.ConnectAttempts
	opts.ConnectBackoff = cfg.Database.ConnectBackoff
	opts.AutoMigrate = cfg.Database.AutoMigrate
	s, err := storeOpener(ctx, cfg.Database.URL, opts)
	if err != nil {
		return oops.With("operation", "open identity store").Wrap(err)
	}
	defer s.Close()

	cred, err := s.Identities.GetByEmail(ctx, email)
	if err != nil {
		return oops.With("operation", "look up user").Wrap(err)
	}
	return fn(ctx, s, cred)
}
