// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/userauth/internal/auth"
)

// NewKeygenCmd creates the keygen subcommand.
func NewKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new token signing key",
		Long: `Print a random URL-safe signing key suitable for token.signing_key
(or USERAUTH_TOKEN_SIGNING_KEY).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := auth.GenerateSigningKeyString()
			if err != nil {
				return oops.With("operation", "generate signing key").Wrap(err)
			}
			cmd.Println(key)
			return nil
		},
	}
}
