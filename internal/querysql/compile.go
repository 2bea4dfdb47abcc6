package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/pgquery/internal/ir"
	"github.com/roach88/pgquery/internal/queryir"
)

// Options are per-call rendering switches. They are never stored on a
// statement.
type Options struct {
	// CTE renders only the statement body, for wrapping as name AS (<body>).
	CTE bool

	// Final appends the ";" terminator. Ignored when CTE is set.
	Final bool
}

// DefaultOptions renders a standalone, terminated statement.
func DefaultOptions() Options {
	return Options{Final: true}
}

func (o Options) terminate(sql string) string {
	if o.Final && !o.CTE {
		return sql + ";"
	}
	return sql
}

// Result is a successfully compiled statement.
type Result struct {
	SQL    string         `json:"sql"`
	Action queryir.Action `json:"action"`

	// UnboundedMutation is set for an update or delete without filters.
	// Such a statement affects every row of the table; callers decide
	// whether to run it.
	UnboundedMutation bool `json:"unbounded_mutation"`

	// ReturnsRows is set when running SQL yields a result set: select,
	// count, and mutations with RETURNING.
	ReturnsRows bool `json:"returns_rows"`

	// Fingerprint identifies the statement content independently of Options.
	Fingerprint string `json:"fingerprint"`
}

// SQLCompiler renders statements as PostgreSQL text.
//
// Values are inlined as literals through the quoting functions in quote.go;
// no other code path turns caller data into SQL. The compiler holds only
// policy and is safe for concurrent use.
type SQLCompiler struct {
	// RejectUnboundedMutations turns a filterless update or delete into an
	// UNBOUNDED_MUTATION CompileError instead of a flagged Result.
	RejectUnboundedMutations bool
}

// NewSQLCompiler creates a compiler that flags, but accepts, unbounded
// mutations.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile renders s with a default compiler.
func Compile(s queryir.Statement, opts Options) (*Result, error) {
	return NewSQLCompiler().Compile(s, opts)
}

// Compile validates s and renders it.
//
// Compile is a pure function of (s, opts, c): it never mutates s, and the
// same inputs always yield byte-identical SQL. On error the returned
// *queryir.CompileError describes exactly one violation and no SQL is
// returned.
func (c *SQLCompiler) Compile(s queryir.Statement, opts Options) (*Result, error) {
	body, err := c.compileBody(s)
	if err != nil {
		return nil, err
	}
	fp, err := queryir.Fingerprint(s)
	if err != nil {
		return nil, err
	}
	return &Result{
		SQL:               opts.terminate(body),
		Action:            s.Action,
		UnboundedMutation: s.Unbounded(),
		ReturnsRows:       returnsRows(s),
		Fingerprint:       fp,
	}, nil
}

func returnsRows(s queryir.Statement) bool {
	switch s.Action {
	case queryir.ActionSelect, queryir.ActionCount:
		return true
	case queryir.ActionInsert, queryir.ActionUpdate, queryir.ActionDelete:
		return s.Options.Returning
	}
	return false
}

// compileBody validates s, applies the unbounded-mutation policy and
// renders the unterminated statement text.
func (c *SQLCompiler) compileBody(s queryir.Statement) (string, error) {
	if err := queryir.Validate(s); err != nil {
		return "", err
	}
	if c.RejectUnboundedMutations && s.Unbounded() {
		return "", queryir.NewCompileError(queryir.ErrKindUnboundedMutation, "filters",
			"%s on %s has no filters and would affect every row", s.Action, s.Table)
	}

	table, err := QuoteTable(s.Table)
	if err != nil {
		return "", queryir.NewCompileError(queryir.ErrKindInvalidIdentifier, "table", "%v", err)
	}

	var b strings.Builder
	switch s.Action {
	case queryir.ActionSelect:
		err = c.writeSelect(&b, table, s)
	case queryir.ActionCount:
		b.WriteString("SELECT count(*) FROM ")
		b.WriteString(table)
		err = c.writeWhere(&b, s.Filters)
	case queryir.ActionInsert:
		err = c.writeInsert(&b, table, s)
	case queryir.ActionUpdate:
		err = c.writeUpdate(&b, table, s)
	case queryir.ActionDelete:
		b.WriteString("DELETE FROM ")
		b.WriteString(table)
		err = c.writeWhere(&b, s.Filters)
		writeReturning(&b, s.Options)
	case queryir.ActionTruncate:
		b.WriteString("TRUNCATE ")
		b.WriteString(table)
		if s.Options.RestartIdentity {
			b.WriteString(" RESTART IDENTITY")
		}
		if s.Options.Cascade {
			b.WriteString(" CASCADE")
		}
	default:
		return "", queryir.NewCompileError(queryir.ErrKindUnknownAction, "action", "unknown action %q", s.Action)
	}
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func (c *SQLCompiler) writeSelect(b *strings.Builder, table string, s queryir.Statement) error {
	b.WriteString("SELECT ")
	if err := writeColumns(b, s.Columns); err != nil {
		return err
	}
	b.WriteString(" FROM ")
	b.WriteString(table)
	if err := c.writeWhere(b, s.Filters); err != nil {
		return err
	}
	if err := writeOrderBy(b, s.Sorts); err != nil {
		return err
	}
	if s.Range != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(s.Range.Limit()))
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(s.Range.Offset()))
	}
	return nil
}

// writeColumns writes the select projection. No columns, or a lone "*",
// selects everything.
func writeColumns(b *strings.Builder, cols []string) error {
	if len(cols) == 0 {
		b.WriteString("*")
		return nil
	}
	for i, col := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		if col == "*" {
			b.WriteString("*")
			continue
		}
		q, err := QuoteIdent(col)
		if err != nil {
			return queryir.NewCompileError(queryir.ErrKindInvalidIdentifier, fmt.Sprintf("columns[%d]", i), "%v", err)
		}
		b.WriteString(q)
	}
	return nil
}

// writeWhere writes " WHERE p1 AND p2 ..." in filter order, or nothing.
func (c *SQLCompiler) writeWhere(b *strings.Builder, filters []queryir.Filter) error {
	for i, f := range filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		pred, err := compilePredicate(f)
		if err != nil {
			return queryir.NewCompileError(queryir.ErrKindInvalidOperatorValue,
				fmt.Sprintf("filters[%d].value", i), "%v", err)
		}
		b.WriteString(pred)
	}
	return nil
}

// operatorSQL maps each operator to its SQL spelling.
var operatorSQL = map[queryir.FilterOperator]string{
	queryir.OpEq:          "=",
	queryir.OpNeq:         "<>",
	queryir.OpLt:          "<",
	queryir.OpLte:         "<=",
	queryir.OpGt:          ">",
	queryir.OpGte:         ">=",
	queryir.OpLike:        "LIKE",
	queryir.OpILike:       "ILIKE",
	queryir.OpNotLike:     "NOT LIKE",
	queryir.OpNotILike:    "NOT ILIKE",
	queryir.OpIn:          "IN",
	queryir.OpNotIn:       "NOT IN",
	queryir.OpIs:          "IS",
	queryir.OpIsNot:       "IS NOT",
	queryir.OpContains:    "@>",
	queryir.OpContainedBy: "<@",
	queryir.OpOverlaps:    "&&",
}

// compilePredicate renders one filter as "<column> <operator> <value>".
// The operand was checked by queryir.Validate.
func compilePredicate(f queryir.Filter) (string, error) {
	col, err := QuoteIdent(f.Column)
	if err != nil {
		return "", err
	}
	op, ok := operatorSQL[f.Operator]
	if !ok {
		return "", fmt.Errorf("unsupported operator %q", f.Operator)
	}

	var operand string
	switch f.Operator {
	case queryir.OpIn, queryir.OpNotIn:
		list, _ := f.Value.(ir.List)
		items, err := renderItems(list)
		if err != nil {
			return "", err
		}
		operand = "(" + items + ")"
	default:
		operand, err = RenderValue(f.Value)
		if err != nil {
			return "", err
		}
	}
	return col + " " + op + " " + operand, nil
}

// writeOrderBy writes " ORDER BY k1, k2 ..." in sort order, or nothing.
// Null placement is always explicit so output does not depend on the
// server's per-direction default.
func writeOrderBy(b *strings.Builder, sorts []queryir.Sort) error {
	for i, srt := range sorts {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		ref, err := QuoteQualified(append(queryir.SplitQualifier(srt.Table), srt.Column)...)
		if err != nil {
			return queryir.NewCompileError(queryir.ErrKindInvalidIdentifier, fmt.Sprintf("sorts[%d]", i), "%v", err)
		}
		b.WriteString(ref)
		if srt.Ascending {
			b.WriteString(" ASC")
		} else {
			b.WriteString(" DESC")
		}
		if srt.NullsFirst {
			b.WriteString(" NULLS FIRST")
		} else {
			b.WriteString(" NULLS LAST")
		}
	}
	return nil
}

// insertColumns returns the union of row keys in first-seen order.
func insertColumns(rows []ir.Row) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for _, p := range row {
			if !seen[p.Key] {
				seen[p.Key] = true
				cols = append(cols, p.Key)
			}
		}
	}
	return cols
}

func (c *SQLCompiler) writeInsert(b *strings.Builder, table string, s queryir.Statement) error {
	rows := s.Payload.Rows
	cols := insertColumns(rows)

	quoted := make([]string, len(cols))
	for i, col := range cols {
		q, err := QuoteIdent(col)
		if err != nil {
			return queryir.NewCompileError(queryir.ErrKindInvalidIdentifier, "payload", "%v", err)
		}
		quoted[i] = q
	}

	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES ")
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		cells := make([]string, len(cols))
		for j, col := range cols {
			v, ok := row.Get(col)
			if !ok {
				cells[j] = "DEFAULT"
				continue
			}
			cell, err := renderCell(col, v, s.Options)
			if err != nil {
				return queryir.NewCompileError(queryir.ErrKindInvalidPayload,
					fmt.Sprintf("payload.rows[%d].%s", i, col), "%v", err)
			}
			cells[j] = cell
		}
		b.WriteString("(")
		b.WriteString(strings.Join(cells, ", "))
		b.WriteString(")")
	}
	writeReturning(b, s.Options)
	return nil
}

func (c *SQLCompiler) writeUpdate(b *strings.Builder, table string, s queryir.Statement) error {
	row := s.Payload.Rows[0]

	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")
	for i, p := range row {
		if i > 0 {
			b.WriteString(", ")
		}
		col, err := QuoteIdent(p.Key)
		if err != nil {
			return queryir.NewCompileError(queryir.ErrKindInvalidIdentifier, "payload", "%v", err)
		}
		cell, err := renderCell(p.Key, p.Value, s.Options)
		if err != nil {
			return queryir.NewCompileError(queryir.ErrKindInvalidPayload,
				fmt.Sprintf("payload.rows[0].%s", p.Key), "%v", err)
		}
		b.WriteString(col)
		b.WriteString(" = ")
		b.WriteString(cell)
	}
	if err := c.writeWhere(b, s.Filters); err != nil {
		return err
	}
	writeReturning(b, s.Options)
	return nil
}

// renderCell renders a payload value, applying the enum array cast for
// columns listed in opts.EnumArrayColumns.
func renderCell(col string, v ir.Value, opts queryir.ActionOptions) (string, error) {
	if typ, ok := opts.EnumArrayColumns[col]; ok {
		return RenderEnumArray(v, typ)
	}
	return RenderValue(v)
}

func writeReturning(b *strings.Builder, opts queryir.ActionOptions) {
	if opts.Returning {
		b.WriteString(" RETURNING *")
	}
}
