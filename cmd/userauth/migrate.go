// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/userauth/internal/store"
)

// NewMigrateCmd creates the migrate subcommand and its children.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the identity store schema",
		Long: `Apply, roll back and inspect identity store migrations. The database
is taken from --database-url or the database.url configuration key.`,
	}
	cmd.PersistentFlags().String("database-url", "", "database URL (sqlite:///path or postgres://...)")

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	cmd.AddCommand(newMigrateStatusCmd())
	cmd.AddCommand(newMigrateVersionCmd())
	cmd.AddCommand(newMigrateForceCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m MigratorIface) error {
				if err := m.Up(); err != nil {
					return oops.With("operation", "apply migrations").Wrap(err)
				}
				return printVersion(cmd, m)
			})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Long: `Roll back the most recent migration, or every migration with --all.
Rolling back the first migration drops the identities table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m MigratorIface) error {
				var err error
				if all {
					err = m.Down()
				} else {
					err = rollbackOne(m)
				}
				if err != nil {
					return oops.With("operation", "roll back migrations").Wrap(err)
				}
				return printVersion(cmd, m)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "roll back every applied migration")
	return cmd
}

// rollbackOne steps down once unless nothing is applied.
func rollbackOne(m MigratorIface) error {
	current, _, err := m.Version()
	if err != nil {
		return oops.Wrap(err)
	}
	if current == 0 {
		return nil
	}
	return m.Steps(-1) //nolint:wrapcheck // caller wraps
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m MigratorIface) error {
				return printStatus(cmd, m)
			})
		},
	}
}

func newMigrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m MigratorIface) error {
				return printVersion(cmd, m)
			})
		},
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag without running
any migration. Use only after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(m MigratorIface) error {
				if err := m.Force(version); err != nil {
					return oops.With("operation", "force version").Wrap(err)
				}
				return printVersion(cmd, m)
			})
		},
	}
}

// parseForceVersion reads the leading integer of s.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("invalid version %q: must be an integer", s)
	}
	return version, nil
}

// getDatabaseURL resolves the database URL for cmd from configuration.
func getDatabaseURL(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return cfg.Database.URL, nil
}

func withMigrator(cmd *cobra.Command, fn func(m MigratorIface) error) error {
	databaseURL, err := getDatabaseURL(cmd)
	if err != nil {
		return err
	}

	m, err := migratorFactory(databaseURL)
	if err != nil {
		return oops.With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrln("warning: failed to close migrator:", closeErr)
		}
	}()

	return fn(m)
}

func printVersion(cmd *cobra.Command, m MigratorIface) error {
	version, dirty, err := m.Version()
	if err != nil {
		return oops.With("operation", "read version").Wrap(err)
	}
	if version == 0 {
		cmd.Println("Schema version: none (no migrations applied)")
		return nil
	}
	name, err := store.MigrationName(m.Dialect(), version)
	if err != nil {
		return oops.With("operation", "read migration name").Wrap(err)
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	cmd.Printf("Schema version: %s%s\n", displayName(name, version), suffix)
	return nil
}

func printStatus(cmd *cobra.Command, m MigratorIface) error {
	applied, err := m.AppliedMigrations()
	if err != nil {
		return oops.With("operation", "list applied migrations").Wrap(err)
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return oops.With("operation", "list pending migrations").Wrap(err)
	}
	_, dirty, err := m.Version()
	if err != nil {
		return oops.With("operation", "read version").Wrap(err)
	}

	cmd.Printf("Dialect: %s\n", m.Dialect())
	if dirty {
		cmd.Println("WARNING: schema is dirty; repair it and run 'migrate force VERSION'")
	}
	for _, v := range applied {
		name, err := store.MigrationName(m.Dialect(), v)
		if err != nil {
			return oops.With("operation", "read migration name").Wrap(err)
		}
		cmd.Printf("  [applied] %s\n", displayName(name, v))
	}
	for _, v := range pending {
		name, err := store.MigrationName(m.Dialect(), v)
		if err != nil {
			return oops.With("operation", "read migration name").Wrap(err)
		}
		cmd.Printf("  [pending] %s\n", displayName(name, v))
	}
	cmd.Printf("%d applied, %d pending\n", len(applied), len(pending))
	return nil
}

func displayName(name string, version uint) string {
	if name == "" {
		return fmt.Sprintf("%06d", version)
	}
	return name
}
