package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pgquery/internal/ir"
	"github.com/roach88/pgquery/internal/queryir"
	"github.com/roach88/pgquery/internal/querysql"
)

var projects = queryir.Table("public", "projects")

func TestSelect_Example(t *testing.T) {
	sql, err := Select(projects).
		Filter("status", queryir.OpEq, ir.Text("active")).
		Order("public.projects", "created_at", Descending()).
		Range(0, 9).
		SQL()
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT * FROM "public"."projects" WHERE "status" = 'active' `+
			`ORDER BY "public"."projects"."created_at" DESC NULLS LAST LIMIT 10 OFFSET 0;`,
		sql)
}

func TestInsert_Example(t *testing.T) {
	b := Insert(projects, []ir.Row{{ir.P("name", ir.Text("a"))}}, Returning())

	sql, err := b.SQL()
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "public"."projects" ("name") VALUES ('a') RETURNING *;`, sql)
	assert.NotContains(t, sql, "WHERE")
	assert.NotContains(t, sql, "ORDER BY")
	assert.NotContains(t, sql, "LIMIT")

	_, err = b.Filter("id", queryir.OpEq, ir.Int(1)).SQL()
	assert.True(t, queryir.IsKind(err, queryir.ErrKindUnsupportedModifier), "got %v", err)
}

func TestBuilder_Immutable(t *testing.T) {
	base := Select(projects).Filter("a", queryir.OpEq, ir.Int(1))

	left := base.Filter("b", queryir.OpEq, ir.Int(2))
	right := base.Filter("c", queryir.OpEq, ir.Int(3)).Order("", "id").Range(0, 4)

	assert.Len(t, base.Statement().Filters, 1)
	assert.Empty(t, base.Statement().Sorts)
	assert.Nil(t, base.Statement().Range)

	require.Len(t, left.Statement().Filters, 2)
	require.Len(t, right.Statement().Filters, 2)
	assert.Equal(t, "b", left.Statement().Filters[1].Column)
	assert.Equal(t, "c", right.Statement().Filters[1].Column)
}

func TestBuilder_StatementIsACopy(t *testing.T) {
	b := Select(projects, "id").Filter("a", queryir.OpEq, ir.Int(1))

	s := b.Statement()
	s.Filters[0].Column = "mutated"
	s.Columns[0] = "mutated"

	assert.Equal(t, "a", b.Statement().Filters[0].Column)
	assert.Equal(t, "id", b.Statement().Columns[0])
}

func TestBuilder_ConstructorCopiesInput(t *testing.T) {
	cols := []string{"id"}
	row := ir.Row{ir.P("name", ir.Text("a"))}
	rows := []ir.Row{row}

	sel := Select(projects, cols...)
	ins := Insert(projects, rows)
	cols[0] = "mutated"
	row[0] = ir.P("mutated", ir.Null{})

	assert.Equal(t, []string{"id"}, sel.Statement().Columns)
	assert.Equal(t, "name", ins.Statement().Payload.Rows[0][0].Key)
}

func TestMatch_EquivalentToFilters(t *testing.T) {
	matched, err := Select(projects).Match(ir.P("a", ir.Int(1)), ir.P("b", ir.Int(2))).SQL()
	require.NoError(t, err)

	filtered, err := Select(projects).
		Filter("a", queryir.OpEq, ir.Int(1)).
		Filter("b", queryir.OpEq, ir.Int(2)).
		SQL()
	require.NoError(t, err)

	assert.Equal(t, filtered, matched)
	assert.Equal(t, `SELECT * FROM "public"."projects" WHERE "a" = 1 AND "b" = 2;`, matched)
}

func TestMatch_PreservesArgumentOrder(t *testing.T) {
	s := Select(projects).Match(ir.P("z", ir.Int(1)), ir.P("a", ir.Int(2))).Statement()
	require.Len(t, s.Filters, 2)
	assert.Equal(t, "z", s.Filters[0].Column)
	assert.Equal(t, "a", s.Filters[1].Column)
}

func TestRange_LastWriteWins(t *testing.T) {
	s := Select(projects).Range(0, 9).Range(20, 29).Statement()
	require.NotNil(t, s.Range)
	assert.Equal(t, queryir.Range{From: 20, To: 29}, *s.Range)
}

func TestOrder_Defaults(t *testing.T) {
	s := Select(projects).
		Order("projects", "a").
		Order("projects", "b", Descending()).
		Order("projects", "c", NullsFirst()).
		Order("projects", "d", Descending(), NullsFirst()).
		Statement()

	assert.Equal(t, []queryir.Sort{
		{Table: "projects", Column: "a", Ascending: true},
		{Table: "projects", Column: "b"},
		{Table: "projects", Column: "c", Ascending: true, NullsFirst: true},
		{Table: "projects", Column: "d", NullsFirst: true},
	}, s.Sorts)
}

func TestCompile_Idempotent(t *testing.T) {
	b := Select(projects).
		Filter("status", queryir.OpIn, ir.NewList(ir.Text("a"), ir.Text("b"))).
		Order("", "id")
	before := b.Statement()

	first, err := b.Compile(querysql.DefaultOptions())
	require.NoError(t, err)
	second, err := b.Compile(querysql.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, first.SQL, second.SQL)
	assert.Equal(t, before, b.Statement())
}

func TestCompile_ErrorLeavesBuilderUsable(t *testing.T) {
	bad := Select(projects).Range(5, 1)
	_, err := bad.SQL()
	require.True(t, queryir.IsKind(err, queryir.ErrKindInvalidRange))

	sql, err := bad.Range(0, 1).SQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "public"."projects" LIMIT 2 OFFSET 0;`, sql)
}

func TestTruncate(t *testing.T) {
	res, err := Truncate(projects).Compile(querysql.Options{})
	require.NoError(t, err)
	assert.Equal(t, `TRUNCATE "public"."projects"`, res.SQL)

	_, err = Truncate(projects).Filter("id", queryir.OpEq, ir.Int(1)).SQL()
	assert.True(t, queryir.IsKind(err, queryir.ErrKindUnsupportedModifier))

	sql, err := Truncate(projects, Cascade(), RestartIdentity()).SQL()
	require.NoError(t, err)
	assert.Equal(t, `TRUNCATE "public"."projects" RESTART IDENTITY CASCADE;`, sql)

	_, err = Truncate(projects, Returning()).SQL()
	assert.True(t, queryir.IsKind(err, queryir.ErrKindUnsupportedModifier))
}

func TestUnboundedMutations(t *testing.T) {
	tests := []struct {
		name    string
		b       Builder
		flagged bool
	}{
		{"update without filter", Update(projects, ir.Row{ir.P("archived", ir.Bool(true))}), true},
		{"update with filter", Update(projects, ir.Row{ir.P("archived", ir.Bool(true))}).Filter("id", queryir.OpEq, ir.Int(1)), false},
		{"delete without filter", Delete(projects), true},
		{"delete with filter", Delete(projects).Match(ir.P("id", ir.Int(1))), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.b.Compile(querysql.DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, tt.flagged, res.UnboundedMutation)

			strict := &querysql.SQLCompiler{RejectUnboundedMutations: true}
			_, err = tt.b.CompileWith(strict, querysql.DefaultOptions())
			if tt.flagged {
				assert.True(t, queryir.IsKind(err, queryir.ErrKindUnboundedMutation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnumArrayOption(t *testing.T) {
	sql, err := Insert(queryir.TableRef{Name: "people"},
		[]ir.Row{{ir.P("moods", ir.NewList(ir.Text("happy")))}},
		EnumArray("moods", "public.mood"), Returning(),
	).SQL()
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "people" ("moods") VALUES (ARRAY['happy']::"public"."mood"[]) RETURNING *;`, sql)
}

func TestAs_CTE(t *testing.T) {
	active := Select(projects).Match(ir.P("status", ir.Text("active")))
	final := Count(queryir.TableRef{Name: "active"})

	res, err := querysql.NewSQLCompiler().CompileWith(
		[]querysql.CTE{active.As("active")}, final.Statement(), querysql.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t,
		`WITH "active" AS (SELECT * FROM "public"."projects" WHERE "status" = 'active') SELECT count(*) FROM "active";`,
		res.SQL)
}

func TestFromStatement(t *testing.T) {
	s := queryir.Statement{Table: projects, Action: queryir.ActionCount}
	b := FromStatement(s).Filter("a", queryir.OpIs, ir.Null{})

	assert.Empty(t, s.Filters)
	sql, err := b.SQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT count(*) FROM "public"."projects" WHERE "a" IS NULL;`, sql)
}
