package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pgquery/internal/ir"
	"github.com/roach88/pgquery/internal/queryir"
	"github.com/roach88/pgquery/internal/querysql"
)

func compileOne(t *testing.T, src, path string) (*Query, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("queries.cue"))
	require.NoError(t, v.Err())
	return CompileQuery(v.LookupPath(cue.ParsePath(path)))
}

func sqlOf(t *testing.T, q *Query) string {
	t.Helper()
	res, err := q.Compile(querysql.NewSQLCompiler(), querysql.DefaultOptions())
	require.NoError(t, err)
	return res.SQL
}

func TestCompileQuerySelect(t *testing.T) {
	q, err := compileOne(t, `
		query: recent_projects: {
			table:  "public.projects"
			action: "select"
			filters: [{column: "status", op: "=", value: "active"}]
			order: [{table: "public.projects", column: "created_at", ascending: false}]
			range: {from: 0, to: 9}
		}
	`, "query.recent_projects")
	require.NoError(t, err)

	assert.Equal(t, "recent_projects", q.Name)
	assert.True(t, q.Pos.IsValid())
	assert.Equal(t,
		`SELECT * FROM "public"."projects" WHERE "status" = 'active' `+
			`ORDER BY "public"."projects"."created_at" DESC NULLS LAST LIMIT 10 OFFSET 0;`,
		sqlOf(t, q))
}

func TestCompileQueryMatchKeepsDeclarationOrder(t *testing.T) {
	q, err := compileOne(t, `
		query: m: {
			table:  "t"
			action: "select"
			match: {zeta: 1, alpha: "x", mid: true}
		}
	`, "query.m")
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "t" WHERE "zeta" = 1 AND "alpha" = 'x' AND "mid" = TRUE;`, sqlOf(t, q))
}

func TestCompileQueryFilterOperators(t *testing.T) {
	q, err := compileOne(t, `
		query: f: {
			table:  "t"
			action: "count"
			filters: [
				{column: "name", op: "ilike", value: "a%"},
				{column: "deleted_at", op: "IS", value: null},
				{column: "id", op: "not   in", value: [1, 2]},
				{column: "tags", op: "@>", value: ["x"]},
				{column: "score", op: ">=", value: 1.5},
				{column: "meta", op: "@>", value: {k: "v"}},
			]
		}
	`, "query.f")
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT count(*) FROM "t" WHERE "name" ILIKE 'a%' AND "deleted_at" IS NULL `+
			`AND "id" NOT IN (1, 2) AND "tags" @> ARRAY['x'] AND "score" >= 1.5 `+
			`AND "meta" @> '{"k":"v"}'::jsonb;`,
		sqlOf(t, q))
}

func TestCompileQueryUnknownOperatorDeferred(t *testing.T) {
	q, err := compileOne(t, `
		query: f: {
			table:  "t"
			action: "select"
			filters: [{column: "a", op: "~", value: "x"}]
		}
	`, "query.f")
	require.NoError(t, err)

	_, err = q.Compile(querysql.NewSQLCompiler(), querysql.DefaultOptions())
	assert.True(t, queryir.IsKind(err, queryir.ErrKindUnsupportedOperator))
}

func TestCompileQueryInsert(t *testing.T) {
	q, err := compileOne(t, `
		query: add: {
			table:  "public.people"
			action: "insert"
			rows: [
				{name: "a", moods: ["happy"]},
				{name: "b"},
			]
			enum_array_columns: {moods: "public.mood"}
			returning: true
		}
	`, "query.add")
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "public"."people" ("name", "moods") VALUES `+
			`('a', ARRAY['happy']::"public"."mood"[]), ('b', DEFAULT) RETURNING *;`,
		sqlOf(t, q))
}

func TestCompileQueryUpdate(t *testing.T) {
	q, err := compileOne(t, `
		query: rename: {
			table:  "projects"
			action: "update"
			set: {name: "new", archived: false}
			match: {id: 7}
		}
	`, "query.rename")
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "projects" SET "name" = 'new', "archived" = FALSE WHERE "id" = 7;`, sqlOf(t, q))
}

func TestCompileQueryTruncate(t *testing.T) {
	q, err := compileOne(t, `
		query: wipe: {
			table:            "public.audit"
			action:           "truncate"
			cascade:          true
			restart_identity: true
		}
	`, "query.wipe")
	require.NoError(t, err)
	assert.Equal(t, `TRUNCATE "public"."audit" RESTART IDENTITY CASCADE;`, sqlOf(t, q))
}

func TestCompileQueryWith(t *testing.T) {
	q, err := compileOne(t, `
		query: active_count: {
			table:  "active"
			action: "count"
			with: {
				active: {
					table:  "public.projects"
					action: "select"
					match: {status: "active"}
				}
			}
		}
	`, "query.active_count")
	require.NoError(t, err)
	require.Len(t, q.With, 1)
	assert.Equal(t,
		`WITH "active" AS (SELECT * FROM "public"."projects" WHERE "status" = 'active') SELECT count(*) FROM "active";`,
		sqlOf(t, q))
}

func TestCompileQueryModifierErrorDeferred(t *testing.T) {
	q, err := compileOne(t, `
		query: bad: {
			table:  "t"
			action: "truncate"
			match: {id: 1}
		}
	`, "query.bad")
	require.NoError(t, err)

	_, err = q.Compile(querysql.NewSQLCompiler(), querysql.DefaultOptions())
	assert.True(t, queryir.IsKind(err, queryir.ErrKindUnsupportedModifier))
}

func TestCompileQueryDefinitionErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing table", `query: q: {action: "select"}`, "table"},
		{"missing action", `query: q: {table: "t"}`, "action"},
		{"unknown action", `query: q: {table: "t", action: "upsert"}`, "action"},
		{"unknown field", `query: q: {table: "t", action: "select", limit: 5}`, "limit"},
		{"table not string", `query: q: {table: 1, action: "select"}`, "table"},
		{"filter without op", `query: q: {table: "t", action: "select", filters: [{column: "a", value: 1}]}`, "filters[0].op"},
		{"filter without value", `query: q: {table: "t", action: "select", filters: [{column: "a", op: "="}]}`, "filters[0].value"},
		{"order without column", `query: q: {table: "t", action: "select", order: [{table: "t"}]}`, "order[0].column"},
		{"range without to", `query: q: {table: "t", action: "select", range: {from: 0}}`, "range.to"},
		{"rows and set", `query: q: {table: "t", action: "update", rows: [{a: 1}], set: {a: 1}}`, "set"},
		{"nested with", `query: q: {table: "t", action: "select", with: {a: {table: "t", action: "select", with: {}}}}`, "with"},
		{"enum type not string", `query: q: {table: "t", action: "insert", rows: [{a: 1}], enum_array_columns: {a: 1}}`, "enum_array_columns.a"},
		{"columns not strings", `query: q: {table: "t", action: "select", columns: [1]}`, "columns[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileOne(t, tt.src, "query.q")
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.True(t, ce.Pos.IsValid(), "error should carry a position")
		})
	}
}

func TestCompileQueryErrorPosition(t *testing.T) {
	_, err := compileOne(t, `query: q: {
	table: "t"
	action: "upsert"
}`, "query.q")
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "queries.cue", ce.Pos.Filename())
	assert.Equal(t, 3, ce.Pos.Line())
	assert.Contains(t, err.Error(), "queries.cue:3:")
}

func TestCompileQueries(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		query: b_second: {table: "t", action: "count"}
		query: a_first: {table: "t", action: "select"}
	`)
	require.NoError(t, v.Err())

	qs, err := CompileQueries(v)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "b_second", qs[0].Name)
	assert.Equal(t, "a_first", qs[1].Name)
}

func TestCompileQueriesNone(t *testing.T) {
	ctx := cuecontext.New()
	qs, err := CompileQueries(ctx.CompileString(`other: 1`))
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestCompileQueryNonExistentPath(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`query: {}`)
	_, err := CompileQuery(v.LookupPath(cue.ParsePath("query.missing")))
	assert.Error(t, err)
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "table", Message: "table is required"}
	assert.Equal(t, "table: table is required", err.Error())
}

func TestToValue(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`x: {n: null, b: true, i: -3, f: 2.5, s: "hi", l: [1, "a"], o: {k: 1}}`)
	require.NoError(t, v.Err())

	row, err := toRow(v.LookupPath(cue.ParsePath("x")), "x")
	require.NoError(t, err)
	assert.Equal(t, ir.Row{
		ir.P("n", ir.Null{}),
		ir.P("b", ir.Bool(true)),
		ir.P("i", ir.Int(-3)),
		ir.P("f", ir.Float(2.5)),
		ir.P("s", ir.Text("hi")),
		ir.P("l", ir.NewList(ir.Int(1), ir.Text("a"))),
		ir.P("o", ir.Object{"k": ir.Int(1)}),
	}, row)
}

func TestToValueRejectsIncomplete(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`x: int`)
	_, err := toValue(v.LookupPath(cue.ParsePath("x")), "x")
	assert.Error(t, err)
}
