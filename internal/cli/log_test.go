package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pgquery/internal/store"
)

// executedDB runs a few queries against a fresh sandbox.
func executedDB(t *testing.T) string {
	t.Helper()
	db := sandboxDB(t)
	for _, args := range [][]string{
		{queriesDir, "active_projects", "--db", db},
		{queriesDir, "archive_project", "--db", db},
		{queriesDir, "active_projects", "--db", db},
		{queriesDir, "purge_projects", "--db", db, "--allow-unbounded"},
	} {
		_, _, err := execute(t, NewExecCommand(&RootOptions{Format: "json"}), args...)
		require.NoError(t, err)
	}
	return db
}

func TestLogJSON(t *testing.T) {
	db := executedDB(t)

	out, _, err := execute(t, NewLogCommand(&RootOptions{Format: "json"}), "--db", db)
	require.NoError(t, err)

	resp := decodeResponse[LogResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Entries, 4)
	for i, e := range resp.Data.Entries {
		assert.Equal(t, int64(i+1), e.Seq)
	}
	assert.Equal(t, "update", resp.Data.Entries[1].Action)
	assert.Equal(t, resp.Data.Entries[0].Fingerprint, resp.Data.Entries[2].Fingerprint)

	stats := resp.Data.Stats
	assert.Equal(t, 4, stats.Statements)
	assert.Equal(t, 1, stats.Unbounded)
	assert.Equal(t, map[string]int{"select": 2, "update": 1, "delete": 1}, stats.ByAction)
	// archive returns its row; the second select sees one active project.
	assert.Equal(t, int64(2+1+1), stats.RowsReturned)
}

func TestLogFilters(t *testing.T) {
	db := executedDB(t)

	out, _, err := execute(t, NewLogCommand(&RootOptions{Format: "json"}), "--db", db, "--action", "delete")
	require.NoError(t, err)
	resp := decodeResponse[LogResult](t, out)
	require.Len(t, resp.Data.Entries, 1)
	assert.True(t, resp.Data.Entries[0].Unbounded)

	all := decodeResponse[LogResult](t, mustRun(t, NewLogCommand(&RootOptions{Format: "json"}), "--db", db))
	fp := all.Data.Entries[0].Fingerprint

	out, _, err = execute(t, NewLogCommand(&RootOptions{Format: "json"}), "--db", db, "--fingerprint", fp)
	require.NoError(t, err)
	resp = decodeResponse[LogResult](t, out)
	require.Len(t, resp.Data.Entries, 2)
	assert.Equal(t, int64(1), resp.Data.Entries[0].Seq)
	assert.Equal(t, int64(3), resp.Data.Entries[1].Seq)
}

func TestLogText(t *testing.T) {
	db := executedDB(t)

	out, _, err := execute(t, NewLogCommand(&RootOptions{Format: "text", Verbose: true}), "--db", db)
	require.NoError(t, err)

	assert.Contains(t, out, "=== Statements ===")
	assert.Contains(t, out, "[4] delete ")
	assert.Contains(t, out, " UNBOUNDED\n")
	assert.Contains(t, out, `DELETE FROM "projects";`)
	assert.Contains(t, out, "affected=")
	assert.Contains(t, out, "  Statements:    4\n")
}

func TestLogEmpty(t *testing.T) {
	db := sandboxDB(t)

	out, _, err := execute(t, NewLogCommand(&RootOptions{Format: "text"}), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "(no statements)")
}

func TestLogRequiresDB(t *testing.T) {
	_, _, err := execute(t, NewLogCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}

func TestBuildLogResult(t *testing.T) {
	entries := []store.LogEntry{
		{Seq: 1, Action: "select", RowCount: 3},
		{Seq: 2, Action: "delete", RowsAffected: 5, Unbounded: true},
		{Seq: 3, Action: "select", RowCount: 1},
	}

	all := buildLogResult(entries, "")
	assert.Equal(t, LogStats{
		Statements:   3,
		RowsAffected: 5,
		RowsReturned: 4,
		Unbounded:    1,
		ByAction:     map[string]int{"select": 2, "delete": 1},
	}, all.Stats)

	selects := buildLogResult(entries, "select")
	assert.Len(t, selects.Entries, 2)
	assert.Zero(t, selects.Stats.Unbounded)

	none := buildLogResult(nil, "")
	assert.NotNil(t, none.Entries)
	assert.Empty(t, none.Entries)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "01234567...89abcdef", truncateID("0123456789abcdef0123456789abcdef"))
}

func mustRun(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	out, _, err := execute(t, cmd, args...)
	require.NoError(t, err)
	return out
}
