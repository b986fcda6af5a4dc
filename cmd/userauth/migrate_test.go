// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/userauth/internal/store"
	"github.com/holomush/userauth/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErr     bool
		wantErrCode string
	}{
		{
			name:        "valid integer",
			input:       "2",
			wantVersion: 2,
		},
		{
			name:        "zero is valid",
			input:       "0",
			wantVersion: 0,
		},
		{
			name:        "non-numeric returns error",
			input:       "abc",
			wantErr:     true,
			wantErrCode: "INVALID_VERSION",
		},
		{
			name:        "float parses as integer (Sscanf stops at dot)",
			input:       "1.5",
			wantVersion: 1,
		},
		{
			name:        "trailing chars are ignored (Sscanf stops at non-digit)",
			input:       "3abc",
			wantVersion: 3,
		},
		{
			name:        "negative parses and is rejected by the migrator",
			input:       "-1",
			wantVersion: -1,
		},
		{
			name:        "empty string returns error",
			input:       "",
			wantErr:     true,
			wantErrCode: "INVALID_VERSION",
		},
		{
			name:        "whitespace only returns error",
			input:       "   ",
			wantErr:     true,
			wantErrCode: "INVALID_VERSION",
		},
		{
			name:        "leading whitespace is handled",
			input:       "  42",
			wantVersion: 42,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				assert.Equal(t, 0, version)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantVersion, version)
			}
		})
	}
}

func TestGetDatabaseURL(t *testing.T) {
	tests := []struct {
		name        string
		envValue    string
		args        []string
		wantURL     string
		wantErr     bool
		wantErrCode string
	}{
		{
			name:     "flag wins over environment",
			envValue: "sqlite:///tmp/from-env.db",
			args:     []string{"--database-url", "postgres://localhost:5432/testdb"},
			wantURL:  "postgres://localhost:5432/testdb",
		},
		{
			name:     "environment is used without flag",
			envValue: "sqlite:///tmp/from-env.db",
			wantURL:  "sqlite:///tmp/from-env.db",
		},
		{
			name:        "unsupported scheme is rejected",
			envValue:    "mysql://localhost/testdb",
			wantErr:     true,
			wantErrCode: "CONFIG_INVALID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateCLI(t)
			t.Setenv("USERAUTH_DATABASE_URL", tt.envValue)

			cmd := NewMigrateCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))

			url, err := getDatabaseURL(cmd)

			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				assert.Empty(t, url)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantURL, url)
			}
		})
	}
}

type mockMigrator struct {
	mock.Mock
}

func (m *mockMigrator) Dialect() store.Dialect { return store.DialectSQLite }

func (m *mockMigrator) Up() error { return m.Called().Error(0) }

func (m *mockMigrator) Down() error { return m.Called().Error(0) }

func (m *mockMigrator) Steps(n int) error { return m.Called(n).Error(0) }

func (m *mockMigrator) Version() (uint, bool, error) {
	args := m.Called()
	return args.Get(0).(uint), args.Bool(1), args.Error(2)
}

func (m *mockMigrator) Force(version int) error { return m.Called(version).Error(0) }

func (m *mockMigrator) PendingMigrations() ([]uint, error) {
	args := m.Called()
	return args.Get(0).([]uint), args.Error(1)
}

func (m *mockMigrator) AppliedMigrations() ([]uint, error) {
	args := m.Called()
	return args.Get(0).([]uint), args.Error(1)
}

func (m *mockMigrator) Close() error { return nil }

// useMigrator installs m as the migrator factory for the test.
func useMigrator(t *testing.T, m MigratorIface) {
	t.Helper()
	orig := migratorFactory
	migratorFactory = func(string) (MigratorIface, error) { return m, nil }
	t.Cleanup(func() { migratorFactory = orig })
}

func TestMigrateDown_RollsBackOneStep(t *testing.T) {
	isolateCLI(t)
	m := &mockMigrator{}
	m.On("Version").Return(uint(2), false, nil).Once()
	m.On("Steps", -1).Return(nil).Once()
	m.On("Version").Return(uint(1), false, nil).Once()
	useMigrator(t, m)

	out, err := execute(t, "migrate", "down")

	require.NoError(t, err)
	assert.Contains(t, out, "000001_create_identities")
	m.AssertExpectations(t)
}

func TestMigrateDown_NothingApplied(t *testing.T) {
	isolateCLI(t)
	m := &mockMigrator{}
	m.On("Version").Return(uint(0), false, nil)
	useMigrator(t, m)

	out, err := execute(t, "migrate", "down")

	require.NoError(t, err)
	assert.Contains(t, out, "no migrations applied")
	m.AssertNotCalled(t, "Steps", mock.Anything)
}

func TestMigrateDown_All(t *testing.T) {
	isolateCLI(t)
	m := &mockMigrator{}
	m.On("Down").Return(nil).Once()
	m.On("Version").Return(uint(0), false, nil).Once()
	useMigrator(t, m)

	_, err := execute(t, "migrate", "down", "--all")

	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestMigrateUp_PropagatesFailure(t *testing.T) {
	isolateCLI(t)
	m := &mockMigrator{}
	m.On("Up").Return(oops.Code("MIGRATION_UP_FAILED").Wrap(errors.New("disk full")))
	useMigrator(t, m)

	_, err := execute(t, "migrate", "up")

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_UP_FAILED")
}

func TestMigrateForce(t *testing.T) {
	isolateCLI(t)
	m := &mockMigrator{}
	m.On("Force", 1).Return(nil).Once()
	m.On("Version").Return(uint(1), false, nil).Once()
	useMigrator(t, m)

	out, err := execute(t, "migrate", "force", "1")

	require.NoError(t, err)
	assert.Contains(t, out, "Schema version: 000001_create_identities")
	m.AssertExpectations(t)
}

func TestMigrateForce_InvalidVersion(t *testing.T) {
	isolateCLI(t)
	m := &mockMigrator{}
	useMigrator(t, m)

	_, err := execute(t, "migrate", "force", "latest")

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
	m.AssertNotCalled(t, "Force", mock.Anything)
}

func TestMigrateStatus_Dirty(t *testing.T) {
	isolateCLI(t)
	m := &mockMigrator{}
	m.On("AppliedMigrations").Return([]uint{1}, nil)
	m.On("PendingMigrations").Return([]uint{2}, nil)
	m.On("Version").Return(uint(1), true, nil)
	useMigrator(t, m)

	out, err := execute(t, "migrate", "status")

	require.NoError(t, err)
	assert.Contains(t, out, "dirty")
	assert.Contains(t, out, "[applied] 000001_create_identities")
	assert.Contains(t, out, "[pending] 000002_identities_email_unique")
	assert.Contains(t, out, "1 applied, 1 pending")
}

func TestMigrate_SQLiteLifecycle(t *testing.T) {
	dbURL := isolateCLI(t)

	out, err := execute(t, "migrate", "status", "--database-url", dbURL)
	require.NoError(t, err, out)
	assert.Contains(t, out, "0 applied, 2 pending")

	out, err = execute(t, "migrate", "up", "--database-url", dbURL)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Schema version: 000002_identities_email_unique")

	out, err = execute(t, "migrate", "down", "--database-url", dbURL)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Schema version: 000001_create_identities")

	out, err = execute(t, "migrate", "down", "--all", "--database-url", dbURL)
	require.NoError(t, err, out)
	assert.Contains(t, out, "no migrations applied")

	out, err = execute(t, "migrate", "version", "--database-url", dbURL)
	require.NoError(t, err, out)
	assert.Contains(t, out, "no migrations applied")
}
