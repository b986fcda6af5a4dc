// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/userauth/internal/config"
	"github.com/holomush/userauth/internal/logging"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the userauth CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "userauth",
		Short: "userauth - user registration and token authentication",
		Long: `userauth registers users, exchanges email and password for signed
bearer tokens, and resolves those tokens back to the user they were issued for.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/userauth/config.yaml)")
	cmd.PersistentFlags().String("log-format", "json", "log format (json or text)")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewKeygenCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig resolves configuration for cmd and installs the default logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err //nolint:wrapcheck // config errors carry their own codes
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err //nolint:wrapcheck // validated by config.Load
	}
	logging.SetDefault(serviceName, version, cfg.Log.Format, level)
	return cfg, nil
}
