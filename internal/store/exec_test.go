package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pgquery/internal/builder"
	"github.com/roach88/pgquery/internal/ir"
	"github.com/roach88/pgquery/internal/queryir"
	"github.com/roach88/pgquery/internal/querysql"
)

var projects = queryir.Table("public", "projects")

// seededStore returns a sandbox with "public"."projects" holding three rows.
func seededStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := createTestStore(t, opts...)
	ctx := context.Background()

	require.NoError(t, s.AttachSchema(ctx, "public"))
	require.NoError(t, s.Setup(ctx,
		`CREATE TABLE "public"."projects" (id INTEGER PRIMARY KEY, name TEXT NOT NULL, status TEXT)`))

	rows := []ir.Row{
		{ir.P("id", ir.Int(1)), ir.P("name", ir.Text("alpha")), ir.P("status", ir.Text("active"))},
		{ir.P("id", ir.Int(2)), ir.P("name", ir.Text("beta")), ir.P("status", ir.Text("archived"))},
		{ir.P("id", ir.Int(3)), ir.P("name", ir.Text("gamma")), ir.P("status", ir.Text("active"))},
	}
	out := execBuilder(t, s, builder.Insert(projects, rows))
	require.Equal(t, int64(3), out.RowsAffected)
	return s
}

func execBuilder(t *testing.T, s *Store, b builder.Builder) *Outcome {
	t.Helper()
	res, err := b.Compile(querysql.DefaultOptions())
	require.NoError(t, err)
	out, err := s.Exec(context.Background(), res)
	require.NoError(t, err)
	return out
}

func project(id int64, name, status string) ir.Row {
	return ir.Row{ir.P("id", ir.Int(id)), ir.P("name", ir.Text(name)), ir.P("status", ir.Text(status))}
}

func TestExec_Select(t *testing.T) {
	s := seededStore(t)

	out := execBuilder(t, s, builder.Select(projects).
		Filter("status", queryir.OpEq, ir.Text("active")).
		Order("public.projects", "id", builder.Descending()))

	assert.Equal(t, []ir.Row{project(3, "gamma", "active"), project(1, "alpha", "active")}, out.Rows)
	assert.Equal(t, int64(2), out.RowsAffected)
}

func TestExec_SelectRange(t *testing.T) {
	s := seededStore(t)

	out := execBuilder(t, s, builder.Select(projects, "name").
		Order("", "id").
		Range(1, 2))

	assert.Equal(t, []ir.Row{
		{ir.P("name", ir.Text("beta"))},
		{ir.P("name", ir.Text("gamma"))},
	}, out.Rows)
}

func TestExec_Count(t *testing.T) {
	s := seededStore(t)

	out := execBuilder(t, s, builder.Count(projects).Match(ir.P("status", ir.Text("active"))))
	require.Len(t, out.Rows, 1)
	v, ok := out.Rows[0].Get("count(*)")
	require.True(t, ok)
	assert.Equal(t, ir.Int(2), v)
}

func TestExec_UpdateReturning(t *testing.T) {
	s := seededStore(t)

	out := execBuilder(t, s, builder.Update(projects,
		ir.Row{ir.P("status", ir.Text("archived"))}, builder.Returning()).
		Match(ir.P("id", ir.Int(1))))

	assert.Equal(t, []ir.Row{project(1, "alpha", "archived")}, out.Rows)
}

func TestExec_Delete(t *testing.T) {
	s := seededStore(t)

	out := execBuilder(t, s, builder.Delete(projects).
		Filter("id", queryir.OpIn, ir.NewList(ir.Int(1), ir.Int(2))))
	assert.Equal(t, int64(2), out.RowsAffected)
	assert.Empty(t, out.Rows)

	rest := execBuilder(t, s, builder.Select(projects))
	assert.Equal(t, []ir.Row{project(3, "gamma", "active")}, rest.Rows)
}

func TestExec_NullsAndLiterals(t *testing.T) {
	s := seededStore(t)

	execBuilder(t, s, builder.Insert(projects, []ir.Row{
		{ir.P("id", ir.Int(4)), ir.P("name", ir.Text("it's")), ir.P("status", ir.Null{})},
	}))

	out := execBuilder(t, s, builder.Select(projects).
		Filter("status", queryir.OpIs, ir.Null{}))
	require.Len(t, out.Rows, 1)
	assert.Equal(t, ir.Row{ir.P("id", ir.Int(4)), ir.P("name", ir.Text("it's")), ir.P("status", ir.Null{})}, out.Rows[0])
}

func TestExec_WithCTE(t *testing.T) {
	s := seededStore(t)

	active := builder.Select(projects).Match(ir.P("status", ir.Text("active"))).As("active")
	res, err := querysql.NewSQLCompiler().CompileWith(
		[]querysql.CTE{active},
		builder.Count(queryir.TableRef{Name: "active"}).Statement(),
		querysql.DefaultOptions())
	require.NoError(t, err)

	out, err := s.Exec(context.Background(), res)
	require.NoError(t, err)
	v, _ := out.Rows[0].Get("count(*)")
	assert.Equal(t, ir.Int(2), v)
}

func TestExec_UnboundedMutationRefused(t *testing.T) {
	s := seededStore(t)

	res, err := builder.Delete(projects).Compile(querysql.DefaultOptions())
	require.NoError(t, err)
	require.True(t, res.UnboundedMutation)

	_, err = s.Exec(context.Background(), res)
	assert.True(t, errors.Is(err, ErrUnboundedMutation), "got %v", err)

	count := execBuilder(t, s, builder.Count(projects))
	v, _ := count.Rows[0].Get("count(*)")
	assert.Equal(t, ir.Int(3), v)
}

func TestExec_UnboundedMutationAllowed(t *testing.T) {
	s := seededStore(t, AllowUnbounded())

	out := execBuilder(t, s, builder.Delete(projects))
	assert.Equal(t, int64(3), out.RowsAffected)

	entries, err := s.History(context.Background())
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.True(t, last.Unbounded)
	assert.Equal(t, "delete", last.Action)
}

func TestExec_TruncateUnsupported(t *testing.T) {
	s := seededStore(t)

	res, err := builder.Truncate(projects).Compile(querysql.DefaultOptions())
	require.NoError(t, err)
	_, err = s.Exec(context.Background(), res)
	assert.True(t, errors.Is(err, ErrUnsupported), "got %v", err)
}

func TestExec_FailedStatementNotLogged(t *testing.T) {
	s := seededStore(t)

	before, err := s.History(context.Background())
	require.NoError(t, err)

	res, err := builder.Select(projects).
		Filter("name", queryir.OpILike, ir.Text("a%")).
		Compile(querysql.DefaultOptions())
	require.NoError(t, err)
	_, err = s.Exec(context.Background(), res)
	require.Error(t, err)

	after, err := s.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestExec_NilResult(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Exec(context.Background(), nil)
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	sel := builder.Select(projects).Match(ir.P("id", ir.Int(2)))
	res, err := sel.Compile(querysql.DefaultOptions())
	require.NoError(t, err)

	first, err := s.Exec(ctx, res)
	require.NoError(t, err)
	second, err := s.Exec(ctx, res)
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)

	entries, err := s.History(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3) // seed insert + two selects
	assert.Equal(t, "insert", entries[0].Action)
	assert.Equal(t, int64(3), entries[0].RowsAffected)
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].Seq, entries[i-1].Seq)
	}

	byFP, err := s.HistoryFor(ctx, res.Fingerprint)
	require.NoError(t, err)
	require.Len(t, byFP, 2)
	for _, e := range byFP {
		assert.Equal(t, res.SQL, e.SQL)
		assert.Equal(t, ir.SQLHash(res.SQL), e.SQLHash)
		assert.Equal(t, int64(1), e.RowCount)
		assert.False(t, e.Unbounded)
	}
	assert.Equal(t, first.Seq, byFP[0].Seq)
}

func TestHistoryFor_Unknown(t *testing.T) {
	s := createTestStore(t)
	entries, err := s.HistoryFor(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQuery_NotLogged(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	res, err := builder.Count(projects).Compile(querysql.DefaultOptions())
	require.NoError(t, err)
	rows, err := s.Query(ctx, res)
	require.NoError(t, err)
	v, _ := rows[0].Get("count(*)")
	assert.Equal(t, ir.Int(3), v)

	entries, err := s.History(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1) // seed insert only
}

func TestQuery_RejectsMutation(t *testing.T) {
	s := seededStore(t)

	res, err := builder.Delete(projects, builder.Returning()).
		Match(ir.P("id", ir.Int(1))).
		Compile(querysql.DefaultOptions())
	require.NoError(t, err)
	_, err = s.Query(context.Background(), res)
	assert.Error(t, err)
}
