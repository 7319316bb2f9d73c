package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/store/sqlite"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestProject(t *testing.T) {
	out, err := run(t, "project", "--principal", "1000", "--category", "savings", "--rate", "4.5", "--horizons", "30")
	require.NoError(t, err, out)

	assert.Contains(t, out, "$1,000.00 savings at 4.5% a year")
	assert.Contains(t, out, "$1,003.71")
	assert.Contains(t, out, "$3.71")
}

func TestProject_ConfiguredRateAndLabels(t *testing.T) {
	out, err := run(t, "project", "--principal", "500", "--category", "investments_balance", "--log-level", "error")
	require.NoError(t, err, out)

	assert.Contains(t, out, "at 10% a year")
	for _, label := range []string{"2w", "30d", "6m", "1y", "5y"} {
		assert.Contains(t, out, label)
	}
}

func TestProject_Rejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing principal", []string{"project"}},
		{"negative principal", []string{"project", "--principal", "-1"}},
		{"unknown category", []string{"project", "--principal", "1", "--category", "gold"}},
		{"rate over 100", []string{"project", "--principal", "1", "--rate", "101"}},
		{"bad horizon", []string{"project", "--principal", "1", "--horizons", "forever"}},
		{"horizon over 100 years", []string{"project", "--principal", "1", "--horizons", "2000000000000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestMigrate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "nested", "savings.db")

	out, err := run(t, "migrate", "--db", db)
	require.NoError(t, err, out)
	assert.Contains(t, out, "schema version 1")
	assert.NotContains(t, out, "dirty")
}

func TestAccrue(t *testing.T) {
	// GIVEN: A database with 1000.00 savings last accrued on March 1st
	db := filepath.Join(t.TempDir(), "savings.db")
	st, err := sqlite.New(db)
	require.NoError(t, err)

	start := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	acc := generic.NewAccount("maya", "Maya", start)
	acc.Balances[generic.CategorySavings] = generic.MustParseDecimal("1000")
	require.NoError(t, st.CreateAccount(context.Background(), acc))
	require.NoError(t, st.Close())

	// WHEN: accrue runs as of 30 days later
	out, err := run(t, "accrue", "--db", db, "--log-level", "error", "--now", "2025-03-31T09:00:00Z")

	// THEN: 3.71 is posted and reported
	require.NoError(t, err, out)
	assert.Contains(t, out, "maya")
	assert.Contains(t, out, "$3.71")
	assert.Contains(t, out, "1 posted, 0 failed, 1 accounts")

	// AND: A second run at the same instant posts nothing
	out, err = run(t, "accrue", "--db", db, "--log-level", "error", "--now", "2025-03-31T09:00:00Z")
	require.NoError(t, err, out)
	assert.Contains(t, out, "nothing due")
	assert.Contains(t, out, "0 posted")
}

func TestAccrue_InvalidNow(t *testing.T) {
	_, err := run(t, "accrue", "--db", ":memory:", "--now", "tomorrow")
	assert.ErrorContains(t, err, "invalid --now")
}

func TestLoad_FlagsOverrideConfig(t *testing.T) {
	opts := &rootOptions{dbPath: "/tmp/flag.db", logLevel: "debug"}
	cfg, err := opts.load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/flag.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)

	opts.logLevel = "shouty"
	_, err = opts.load()
	assert.ErrorContains(t, err, "invalid log level")
}
