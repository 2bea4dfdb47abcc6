package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pgquery/internal/ir"
	"github.com/roach88/pgquery/internal/queryir"
)

func TestCompileWith(t *testing.T) {
	recent := queryir.Statement{
		Table:   projects,
		Action:  queryir.ActionSelect,
		Filters: []queryir.Filter{{Column: "x", Operator: queryir.OpGt, Value: ir.Int(1)}},
	}
	final := queryir.Statement{Table: queryir.TableRef{Name: "recent"}, Action: queryir.ActionCount}

	res, err := NewSQLCompiler().CompileWith([]CTE{{Name: "recent", Statement: recent}}, final, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t,
		`WITH "recent" AS (SELECT * FROM "public"."projects" WHERE "x" > 1) SELECT count(*) FROM "recent";`,
		res.SQL)
	assert.Equal(t, queryir.ActionCount, res.Action)
	assert.False(t, res.UnboundedMutation)
}

func TestCompileWith_Multiple(t *testing.T) {
	ins := queryir.Statement{
		Table:   projects,
		Action:  queryir.ActionInsert,
		Payload: &queryir.Payload{Rows: []ir.Row{{ir.P("name", ir.Text("a"))}}},
		Options: queryir.ActionOptions{Returning: true},
	}
	sel := queryir.Statement{Table: queryir.TableRef{Name: "inserted"}, Action: queryir.ActionSelect, Columns: []string{"id"}}
	final := queryir.Statement{Table: queryir.TableRef{Name: "ids"}, Action: queryir.ActionSelect}

	res, err := NewSQLCompiler().CompileWith([]CTE{
		{Name: "inserted", Statement: ins},
		{Name: "ids", Statement: sel},
	}, final, Options{})
	require.NoError(t, err)
	assert.Equal(t,
		`WITH "inserted" AS (INSERT INTO "public"."projects" ("name") VALUES ('a') RETURNING *), `+
			`"ids" AS (SELECT "id" FROM "inserted") SELECT * FROM "ids"`,
		res.SQL)
}

func TestCompileWith_NoCTEsMatchesCompile(t *testing.T) {
	s := queryir.Statement{Table: projects, Action: queryir.ActionSelect}

	direct, err := Compile(s, DefaultOptions())
	require.NoError(t, err)
	with, err := NewSQLCompiler().CompileWith(nil, s, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, direct, with)
}

func TestCompileWith_AsBody(t *testing.T) {
	s := queryir.Statement{Table: projects, Action: queryir.ActionSelect}
	res, err := NewSQLCompiler().CompileWith([]CTE{{Name: "a", Statement: s}}, queryir.Statement{
		Table: queryir.TableRef{Name: "a"}, Action: queryir.ActionSelect,
	}, Options{CTE: true, Final: true})
	require.NoError(t, err)
	assert.Equal(t, `WITH "a" AS (SELECT * FROM "public"."projects") SELECT * FROM "a"`, res.SQL)
}

func TestCompileWith_Unbounded(t *testing.T) {
	del := queryir.Statement{Table: projects, Action: queryir.ActionDelete, Options: queryir.ActionOptions{Returning: true}}
	final := queryir.Statement{Table: queryir.TableRef{Name: "gone"}, Action: queryir.ActionCount}

	res, err := NewSQLCompiler().CompileWith([]CTE{{Name: "gone", Statement: del}}, final, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.UnboundedMutation)

	_, err = (&SQLCompiler{RejectUnboundedMutations: true}).CompileWith(
		[]CTE{{Name: "gone", Statement: del}}, final, DefaultOptions())
	ce := requireKind(t, err, queryir.ErrKindUnboundedMutation)
	assert.Equal(t, "with[0].filters", ce.Field)
}

func TestCompileWith_Errors(t *testing.T) {
	ok := queryir.Statement{Table: projects, Action: queryir.ActionSelect}
	badRange := queryir.Statement{Table: projects, Action: queryir.ActionSelect, Range: &queryir.Range{From: 3, To: 1}}

	tests := []struct {
		name  string
		ctes  []CTE
		final queryir.Statement
		kind  queryir.ErrorKind
		field string
	}{
		{"empty name", []CTE{{Name: "", Statement: ok}}, ok, queryir.ErrKindInvalidIdentifier, "with[0].name"},
		{"duplicate name", []CTE{{Name: "a", Statement: ok}, {Name: "a", Statement: ok}}, ok, queryir.ErrKindInvalidIdentifier, "with[1].name"},
		{"bad body", []CTE{{Name: "a", Statement: badRange}}, ok, queryir.ErrKindInvalidRange, "with[0].range"},
		{"bad final", []CTE{{Name: "a", Statement: ok}}, badRange, queryir.ErrKindInvalidRange, "final.range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewSQLCompiler().CompileWith(tt.ctes, tt.final, DefaultOptions())
			assert.Nil(t, res)
			ce := requireKind(t, err, tt.kind)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileWith_FingerprintDependsOnNames(t *testing.T) {
	s := queryir.Statement{Table: projects, Action: queryir.ActionSelect}
	final := queryir.Statement{Table: queryir.TableRef{Name: "a"}, Action: queryir.ActionSelect}

	a, err := NewSQLCompiler().CompileWith([]CTE{{Name: "a", Statement: s}}, final, DefaultOptions())
	require.NoError(t, err)
	b, err := NewSQLCompiler().CompileWith([]CTE{{Name: "b", Statement: s}}, final, DefaultOptions())
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint, b.Fingerprint)
}
