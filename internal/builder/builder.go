// Package builder is the fluent front end of the query compiler.
//
// A Builder is an immutable value. Every method returns a new Builder and
// leaves the receiver untouched, so a partially built query can be shared,
// branched and compiled from several goroutines without locking:
//
//	base := builder.Select(queryir.Table("public", "projects")).
//		Filter("status", queryir.OpEq, ir.Text("active"))
//
//	page1 := base.Order("public.projects", "created_at", builder.Descending()).Range(0, 9)
//	total := base.Statement() // unaffected by page1
//
// Accumulation never fails. Every invariant is checked when the builder is
// compiled; see queryir.Validate.
package builder

import (
	"slices"

	"github.com/roach88/pgquery/internal/ir"
	"github.com/roach88/pgquery/internal/queryir"
	"github.com/roach88/pgquery/internal/querysql"
)

// Builder accumulates filters, sorts and a range over a fixed table,
// action and payload.
type Builder struct {
	stmt queryir.Statement
}

// Option sets an action option at construction time.
type Option func(*queryir.ActionOptions)

// Returning appends RETURNING * to an insert, update or delete.
func Returning() Option {
	return func(o *queryir.ActionOptions) { o.Returning = true }
}

// EnumArray marks column as an array of enumType ("mood" or "public.mood").
// An empty enumType renders an untyped array literal.
func EnumArray(column, enumType string) Option {
	return func(o *queryir.ActionOptions) {
		if o.EnumArrayColumns == nil {
			o.EnumArrayColumns = make(map[string]string)
		}
		o.EnumArrayColumns[column] = enumType
	}
}

// Cascade appends CASCADE to a truncate.
func Cascade() Option {
	return func(o *queryir.ActionOptions) { o.Cascade = true }
}

// RestartIdentity appends RESTART IDENTITY to a truncate.
func RestartIdentity() Option {
	return func(o *queryir.ActionOptions) { o.RestartIdentity = true }
}

func newBuilder(table queryir.TableRef, action queryir.Action, opts []Option) Builder {
	s := queryir.Statement{Table: table, Action: action}
	for _, opt := range opts {
		opt(&s.Options)
	}
	return Builder{stmt: s}
}

// Select starts a read of columns from table. No columns selects *.
func Select(table queryir.TableRef, columns ...string) Builder {
	b := newBuilder(table, queryir.ActionSelect, nil)
	b.stmt.Columns = slices.Clone(columns)
	return b
}

// Count starts a row count of table.
func Count(table queryir.TableRef) Builder {
	return newBuilder(table, queryir.ActionCount, nil)
}

// Insert starts an insert of rows into table.
func Insert(table queryir.TableRef, rows []ir.Row, opts ...Option) Builder {
	b := newBuilder(table, queryir.ActionInsert, opts)
	b.stmt.Payload = &queryir.Payload{Rows: cloneRows(rows)}
	return b
}

// Update starts an update of table setting the columns of row.
func Update(table queryir.TableRef, row ir.Row, opts ...Option) Builder {
	b := newBuilder(table, queryir.ActionUpdate, opts)
	b.stmt.Payload = &queryir.Payload{Rows: cloneRows([]ir.Row{row})}
	return b
}

// Delete starts a delete from table.
func Delete(table queryir.TableRef, opts ...Option) Builder {
	return newBuilder(table, queryir.ActionDelete, opts)
}

// Truncate starts a truncate of table.
func Truncate(table queryir.TableRef, opts ...Option) Builder {
	return newBuilder(table, queryir.ActionTruncate, opts)
}

// FromStatement wraps an existing statement. The statement is copied.
func FromStatement(s queryir.Statement) Builder {
	return Builder{stmt: s.Clone()}
}

func cloneRows(rows []ir.Row) []ir.Row {
	if rows == nil {
		return nil
	}
	out := make([]ir.Row, len(rows))
	for i, r := range rows {
		out[i] = slices.Clone(r)
	}
	return out
}

// Filter appends one predicate. Filters combine with AND in call order.
func (b Builder) Filter(column string, op queryir.FilterOperator, value ir.Value) Builder {
	b.stmt.Filters = append(slices.Clip(b.stmt.Filters), queryir.Filter{
		Column:   column,
		Operator: op,
		Value:    value,
	})
	return b
}

// Match appends one equality filter per pair, in argument order.
// Match(ir.P("a", x), ir.P("b", y)) is Filter("a", =, x).Filter("b", =, y).
func (b Builder) Match(criteria ...ir.Pair) Builder {
	for _, p := range criteria {
		b = b.Filter(p.Key, queryir.OpEq, p.Value)
	}
	return b
}

// SortOption adjusts one ORDER BY key.
type SortOption func(*queryir.Sort)

// Descending sorts high to low.
func Descending() SortOption {
	return func(s *queryir.Sort) { s.Ascending = false }
}

// NullsFirst places NULLs before non-null values.
func NullsFirst() SortOption {
	return func(s *queryir.Sort) { s.NullsFirst = true }
}

// Order appends one sort key, ascending with NULLs last unless adjusted.
// table qualifies column ("public.projects", "projects" or "" for none).
// Keys are emitted in call order; repeated keys are not deduplicated.
func (b Builder) Order(table, column string, opts ...SortOption) Builder {
	s := queryir.Sort{Table: table, Column: column, Ascending: true}
	for _, opt := range opts {
		opt(&s)
	}
	b.stmt.Sorts = append(slices.Clip(b.stmt.Sorts), s)
	return b
}

// Range sets the zero-based inclusive row window, replacing any earlier one.
func (b Builder) Range(from, to int) Builder {
	b.stmt.Range = &queryir.Range{From: from, To: to}
	return b
}

// Statement returns a copy of the accumulated statement.
func (b Builder) Statement() queryir.Statement {
	return b.stmt.Clone()
}

// Compile renders the builder with a default compiler.
func (b Builder) Compile(opts querysql.Options) (*querysql.Result, error) {
	return querysql.Compile(b.stmt, opts)
}

// CompileWith renders the builder with c, which carries the caller's
// unbounded-mutation policy.
func (b Builder) CompileWith(c *querysql.SQLCompiler, opts querysql.Options) (*querysql.Result, error) {
	return c.Compile(b.stmt, opts)
}

// SQL renders a terminated standalone statement.
func (b Builder) SQL() (string, error) {
	res, err := b.Compile(querysql.DefaultOptions())
	if err != nil {
		return "", err
	}
	return res.SQL, nil
}

// As names the builder for use in a WITH list.
func (b Builder) As(name string) querysql.CTE {
	return querysql.CTE{Name: name, Statement: b.Statement()}
}
