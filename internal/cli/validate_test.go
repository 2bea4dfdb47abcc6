package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pgquery/internal/compiler"
)

func TestValidateValidQueries(t *testing.T) {
	out, _, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), queriesDir)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ All queries valid")
	assert.Contains(t, out, "warning E131: purge_projects.filters:")
}

func TestValidateValidQueriesJSON(t *testing.T) {
	out, _, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), queriesDir)
	require.NoError(t, err)

	resp := decodeResponse[ValidationResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Empty(t, resp.Data.Errors)
	require.Len(t, resp.Data.Warnings, 1)
	assert.Equal(t, compiler.ErrUnboundedWarning, resp.Data.Warnings[0].Code)
	assert.Equal(t, "purge_projects", resp.Data.Warnings[0].Query)
}

func TestValidateStrict(t *testing.T) {
	out, _, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), queriesDir, "--strict")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse[ValidationResult](t, out)
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, compiler.ErrUnboundedMutation, resp.Data.Errors[0].Code)
	assert.Equal(t, compiler.ErrUnboundedMutation, resp.Error.Code)
}

func TestValidateCollectsEverything(t *testing.T) {
	dir := writeQueries(t, `package queries

query: broken: {table: "t", action: "upsert"}
query: bad_range: {table: "t", action: "select", range: {from: 3, to: 1}}
query: dup_sort: {
	table:  "t"
	action: "select"
	order: [{column: "id"}, {column: "id", ascending: false}]
}
query: fine: {table: "t", action: "count"}
`)
	out, _, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "validation failed with 2 error(s)", err.Error())

	resp := decodeResponse[ValidationResult](t, out)
	require.Len(t, resp.Data.Errors, 2)
	assert.Equal(t, compiler.ErrInvalidDefinition, resp.Data.Errors[0].Code)
	assert.Equal(t, 3, resp.Data.Errors[0].Line)
	assert.Equal(t, compiler.ErrInvalidRange, resp.Data.Errors[1].Code)
	assert.Equal(t, "bad_range", resp.Data.Errors[1].Query)

	require.Len(t, resp.Data.Warnings, 1)
	assert.Equal(t, compiler.ErrDuplicateSortKey, resp.Data.Warnings[0].Code)
}

func TestValidateTextFailure(t *testing.T) {
	dir := writeQueries(t, `package queries

query: bad_range: {table: "t", action: "select", range: {from: 3, to: 1}}
`)
	out, _, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)

	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "line 3\n")
	assert.Contains(t, out, "error E121: bad_range.range:")
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, _, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), "/nonexistent/queries")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse[any](t, out)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestValidateQueriesHelper(t *testing.T) {
	loadResult, loadErrors := LoadQueries(queriesDir, LoadModeCollectAll)
	require.Empty(t, loadErrors)

	findings := ValidateQueries(loadResult, []error{&LoadError{Code: ErrCodeGeneric, Message: "extra"}}, false)
	require.Len(t, findings, 2)
	assert.Equal(t, "extra", findings[0].Message)
	assert.Equal(t, "definition", findings[0].Field)
	assert.True(t, findings[1].Warning)
}
