package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/pgquery/internal/builder"
	"github.com/roach88/pgquery/internal/ir"
	"github.com/roach88/pgquery/internal/queryir"
	"github.com/roach88/pgquery/internal/querysql"
)

// Query is one named query definition read from CUE.
type Query struct {
	Name    string
	Builder builder.Builder
	With    []querysql.CTE
	Pos     token.Pos
}

// Compile renders the query, wrapping it in a WITH list when the
// definition declares one.
func (q *Query) Compile(c *querysql.SQLCompiler, opts querysql.Options) (*querysql.Result, error) {
	if len(q.With) == 0 {
		return q.Builder.CompileWith(c, opts)
	}
	return c.CompileWith(q.With, q.Builder.Statement(), opts)
}

// knownFields lists every field a query definition may carry.
var knownFields = []string{
	"table", "action", "columns", "filters", "match", "order", "range",
	"rows", "set", "returning", "enum_array_columns", "cascade",
	"restart_identity", "with",
}

// CompileQuery parses a CUE query definition.
//
// The CUE value should be the definition struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`query: active: { table: "public.projects", action: "select" }`)
//	q, err := CompileQuery(v.LookupPath(cue.ParsePath("query.active")))
//
// Only the definition's shape is checked here. Whether the resulting
// statement is valid for its action is decided when it is compiled to SQL.
func CompileQuery(v cue.Value) (*Query, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	q := &Query{Pos: v.Pos()}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		q.Name = labels[len(labels)-1].String()
	}

	b, err := parseDefinition(v, true)
	if err != nil {
		return nil, err
	}
	q.Builder = b

	withVal := v.LookupPath(cue.ParsePath("with"))
	if withVal.Exists() {
		iter, err := withVal.Fields()
		if err != nil {
			return nil, &CompileError{Field: "with", Message: "must be a struct of query definitions", Pos: withVal.Pos()}
		}
		for iter.Next() {
			cte, err := parseDefinition(iter.Value(), false)
			if err != nil {
				return nil, err
			}
			q.With = append(q.With, cte.As(iter.Label()))
		}
	}

	return q, nil
}

// CompileQueries parses every definition under the top-level "query" field,
// in declaration order. It stops at the first error.
func CompileQueries(v cue.Value) ([]Query, error) {
	queriesVal := v.LookupPath(cue.ParsePath("query"))
	if !queriesVal.Exists() {
		return nil, nil
	}
	iter, err := queriesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []Query
	for iter.Next() {
		q, err := CompileQuery(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, nil
}

// parseDefinition reads one definition into a builder. Nested "with"
// lists are only allowed at the top level.
func parseDefinition(v cue.Value, topLevel bool) (builder.Builder, error) {
	var zero builder.Builder

	iter, err := v.Fields()
	if err != nil {
		return zero, &CompileError{Field: "query", Message: "definition must be a struct", Pos: v.Pos()}
	}
	for iter.Next() {
		label := iter.Label()
		if !slices.Contains(knownFields, label) {
			return zero, &CompileError{
				Field:   label,
				Message: fmt.Sprintf("unknown field %q", label),
				Pos:     iter.Value().Pos(),
			}
		}
		if label == "with" && !topLevel {
			return zero, &CompileError{Field: "with", Message: "WITH definitions cannot be nested", Pos: iter.Value().Pos()}
		}
	}

	table, ok, err := lookupString(v, "table", "table")
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, &CompileError{Field: "table", Message: "table is required", Pos: v.Pos()}
	}

	actionName, ok, err := lookupString(v, "action", "action")
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, &CompileError{Field: "action", Message: "action is required", Pos: v.Pos()}
	}
	action, err := queryir.ParseAction(actionName)
	if err != nil {
		return zero, &CompileError{
			Field:   "action",
			Message: err.Error(),
			Pos:     v.LookupPath(cue.ParsePath("action")).Pos(),
		}
	}

	stmt := queryir.Statement{Table: queryir.ParseTableRef(table), Action: action}

	if f := v.LookupPath(cue.ParsePath("columns")); f.Exists() {
		if stmt.Columns, err = toStrings(f, "columns"); err != nil {
			return zero, err
		}
	}
	if err := parsePayload(v, &stmt); err != nil {
		return zero, err
	}
	if err := parseOptions(v, &stmt.Options); err != nil {
		return zero, err
	}

	b := builder.FromStatement(stmt)

	if b, err = parseFilters(v, b); err != nil {
		return zero, err
	}
	if f := v.LookupPath(cue.ParsePath("match")); f.Exists() {
		row, err := toRow(f, "match")
		if err != nil {
			return zero, err
		}
		b = b.Match(row...)
	}
	if b, err = parseOrder(v, b); err != nil {
		return zero, err
	}
	if f := v.LookupPath(cue.ParsePath("range")); f.Exists() {
		from, err := lookupInt(f, "from", "range.from")
		if err != nil {
			return zero, err
		}
		to, err := lookupInt(f, "to", "range.to")
		if err != nil {
			return zero, err
		}
		b = b.Range(from, to)
	}

	return b, nil
}

// parsePayload reads "rows" (a list of structs) or "set" (one struct).
func parsePayload(v cue.Value, stmt *queryir.Statement) error {
	rowsVal := v.LookupPath(cue.ParsePath("rows"))
	setVal := v.LookupPath(cue.ParsePath("set"))
	if rowsVal.Exists() && setVal.Exists() {
		return &CompileError{Field: "set", Message: "rows and set are mutually exclusive", Pos: setVal.Pos()}
	}

	switch {
	case rowsVal.Exists():
		iter, err := rowsVal.List()
		if err != nil {
			return &CompileError{Field: "rows", Message: "must be a list of structs", Pos: rowsVal.Pos()}
		}
		payload := &queryir.Payload{}
		for i := 0; iter.Next(); i++ {
			row, err := toRow(iter.Value(), fmt.Sprintf("rows[%d]", i))
			if err != nil {
				return err
			}
			payload.Rows = append(payload.Rows, row)
		}
		stmt.Payload = payload
	case setVal.Exists():
		row, err := toRow(setVal, "set")
		if err != nil {
			return err
		}
		stmt.Payload = &queryir.Payload{Rows: []ir.Row{row}}
	}
	return nil
}

func parseOptions(v cue.Value, opts *queryir.ActionOptions) error {
	var err error
	if opts.Returning, err = lookupBool(v, "returning", "returning"); err != nil {
		return err
	}
	if opts.Cascade, err = lookupBool(v, "cascade", "cascade"); err != nil {
		return err
	}
	if opts.RestartIdentity, err = lookupBool(v, "restart_identity", "restart_identity"); err != nil {
		return err
	}

	enumVal := v.LookupPath(cue.ParsePath("enum_array_columns"))
	if !enumVal.Exists() {
		return nil
	}
	iter, err := enumVal.Fields()
	if err != nil {
		return &CompileError{Field: "enum_array_columns", Message: "must map column names to enum type names", Pos: enumVal.Pos()}
	}
	opts.EnumArrayColumns = make(map[string]string)
	for iter.Next() {
		typ, err := iter.Value().String()
		if err != nil {
			return &CompileError{
				Field:   "enum_array_columns." + iter.Label(),
				Message: "enum type name must be a string",
				Pos:     iter.Value().Pos(),
			}
		}
		opts.EnumArrayColumns[iter.Label()] = typ
	}
	return nil
}

// parseFilters reads "filters": [{column, op, value}, ...]. Operator
// spellings are resolved with queryir.ParseOperator; an unknown spelling is
// kept verbatim and rejected when the statement is compiled.
func parseFilters(v cue.Value, b builder.Builder) (builder.Builder, error) {
	f := v.LookupPath(cue.ParsePath("filters"))
	if !f.Exists() {
		return b, nil
	}
	iter, err := f.List()
	if err != nil {
		return b, &CompileError{Field: "filters", Message: "must be a list", Pos: f.Pos()}
	}
	for i := 0; iter.Next(); i++ {
		item := iter.Value()
		field := fmt.Sprintf("filters[%d]", i)

		column, ok, err := lookupString(item, "column", field+".column")
		if err != nil {
			return b, err
		}
		if !ok {
			return b, &CompileError{Field: field + ".column", Message: "column is required", Pos: item.Pos()}
		}
		opName, ok, err := lookupString(item, "op", field+".op")
		if err != nil {
			return b, err
		}
		if !ok {
			return b, &CompileError{Field: field + ".op", Message: "op is required", Pos: item.Pos()}
		}
		op, known := queryir.ParseOperator(opName)
		if !known {
			op = queryir.FilterOperator(opName)
		}

		valueVal := item.LookupPath(cue.ParsePath("value"))
		if !valueVal.Exists() {
			return b, &CompileError{Field: field + ".value", Message: "value is required (use null for NULL)", Pos: item.Pos()}
		}
		value, err := toValue(valueVal, field+".value")
		if err != nil {
			return b, err
		}
		b = b.Filter(column, op, value)
	}
	return b, nil
}

// parseOrder reads "order": [{table?, column, ascending?, nulls_first?}].
// ascending defaults to true.
func parseOrder(v cue.Value, b builder.Builder) (builder.Builder, error) {
	f := v.LookupPath(cue.ParsePath("order"))
	if !f.Exists() {
		return b, nil
	}
	iter, err := f.List()
	if err != nil {
		return b, &CompileError{Field: "order", Message: "must be a list", Pos: f.Pos()}
	}
	for i := 0; iter.Next(); i++ {
		item := iter.Value()
		field := fmt.Sprintf("order[%d]", i)

		column, ok, err := lookupString(item, "column", field+".column")
		if err != nil {
			return b, err
		}
		if !ok {
			return b, &CompileError{Field: field + ".column", Message: "column is required", Pos: item.Pos()}
		}
		table, _, err := lookupString(item, "table", field+".table")
		if err != nil {
			return b, err
		}

		var opts []builder.SortOption
		if asc := item.LookupPath(cue.ParsePath("ascending")); asc.Exists() {
			up, err := asc.Bool()
			if err != nil {
				return b, &CompileError{Field: field + ".ascending", Message: "must be a bool", Pos: asc.Pos()}
			}
			if !up {
				opts = append(opts, builder.Descending())
			}
		}
		nullsFirst, err := lookupBool(item, "nulls_first", field+".nulls_first")
		if err != nil {
			return b, err
		}
		if nullsFirst {
			opts = append(opts, builder.NullsFirst())
		}
		b = b.Order(table, column, opts...)
	}
	return b, nil
}

// CompileError represents a definition error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
