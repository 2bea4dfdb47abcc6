package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/pgquery/internal/builder"
	"github.com/roach88/pgquery/internal/ir"
	"github.com/roach88/pgquery/internal/queryir"
	"github.com/roach88/pgquery/internal/querysql"
	"github.com/roach88/pgquery/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	SQL      string // Statement the assertion ran, if any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if e.SQL != "" {
		fmt.Fprintf(&buf, "  SQL: %s\n", e.SQL)
	}

	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store    *store.Store
	Compiler *querysql.SQLCompiler
	Ctx      context.Context
}

// EvaluateAssertions evaluates all assertions against the sandbox.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		if actx == nil || actx.Store == nil {
			err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
		} else {
			switch assertion.Type {
			case AssertFinalState:
				err = assertFinalState(actx, assertion)
			case AssertRowCount:
				err = assertRowCount(actx, assertion)
			case AssertLogCount:
				err = assertLogCount(actx, assertion)
			default:
				err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
			}
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertFinalState checks that exactly one row of the table matches Where
// and that it contains the Expect values (subset semantics).
//
// The lookup is itself built and compiled with the query builder, so
// identifiers and values are quoted the same way as in every case.
func assertFinalState(actx *AssertionContext, assertion Assertion) error {
	b, err := whereBuilder(builder.Select(queryir.ParseTableRef(assertion.Table)), assertion.Where)
	if err != nil {
		return err
	}
	rows, sql, err := runAssertion(actx, b)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
			SQL:      sql,
		}
	}

	whereDesc := formatWhereClause(assertion.Where)
	switch len(rows) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
			SQL:      sql,
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
			SQL:      sql,
		}
	}

	row := rows[0]
	for _, key := range sortedKeys(assertion.Expect) {
		expected := assertion.Expect[key]
		actual, exists := row.Get(key)
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, row.Keys()),
				SQL:      sql,
			}
		}
		if !stateValuesEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v", key, expected),
				Actual:   fmt.Sprintf("field %q = %s", key, describeValue(actual)),
				SQL:      sql,
			}
		}
	}

	return nil
}

// assertRowCount counts the rows of the table matching Where.
func assertRowCount(actx *AssertionContext, assertion Assertion) error {
	b, err := whereBuilder(builder.Count(queryir.ParseTableRef(assertion.Table)), assertion.Where)
	if err != nil {
		return err
	}
	rows, sql, err := runAssertion(actx, b)
	if err != nil {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("count rows of %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
			SQL:      sql,
		}
	}

	var got int64
	if len(rows) == 1 && len(rows[0]) == 1 {
		if n, ok := rows[0][0].Value.(ir.Int); ok {
			got = int64(n)
		}
	}
	if got != int64(*assertion.Count) {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s where %s", *assertion.Count, assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   fmt.Sprintf("%d rows", got),
			SQL:      sql,
		}
	}
	return nil
}

// assertLogCount counts executed statements, optionally of one action.
func assertLogCount(actx *AssertionContext, assertion Assertion) error {
	entries, err := actx.Store.History(actx.Ctx)
	if err != nil {
		return err
	}

	count := 0
	for _, e := range entries {
		if assertion.Action == "" || e.Action == assertion.Action {
			count++
		}
	}
	if count != *assertion.Count {
		what := "executed statements"
		if assertion.Action != "" {
			what = fmt.Sprintf("executed %s statements", assertion.Action)
		}
		return &AssertionError{
			Type:     AssertLogCount,
			Expected: fmt.Sprintf("%d %s", *assertion.Count, what),
			Actual:   fmt.Sprintf("%d", count),
		}
	}
	return nil
}

// whereBuilder adds one equality filter per Where key. Keys are sorted for
// deterministic SQL.
func whereBuilder(b builder.Builder, where map[string]any) (builder.Builder, error) {
	for _, key := range sortedKeys(where) {
		v, err := ir.FromGo(where[key])
		if err != nil {
			return b, fmt.Errorf("where %q: %w", key, err)
		}
		op := queryir.OpEq
		if _, ok := v.(ir.Null); ok {
			op = queryir.OpIs
		}
		b = b.Filter(key, op, v)
	}
	return b, nil
}

func runAssertion(actx *AssertionContext, b builder.Builder) ([]ir.Row, string, error) {
	c := actx.Compiler
	if c == nil {
		c = querysql.NewSQLCompiler()
	}
	res, err := b.CompileWith(c, querysql.DefaultOptions())
	if err != nil {
		return nil, "", err
	}
	rows, err := actx.Store.Query(actx.Ctx, res)
	return rows, res.SQL, err
}

// matchRows compares executed rows against expected rows, in order.
// Each expected row is a subset of the actual row.
func matchRows(expected []map[string]any, actual []ir.Row) error {
	if len(expected) != len(actual) {
		return fmt.Errorf("expected %d rows, got %d", len(expected), len(actual))
	}
	for i, exp := range expected {
		for _, key := range sortedKeys(exp) {
			v, ok := actual[i].Get(key)
			if !ok {
				return fmt.Errorf("row %d: field %q not present in result columns: %v", i, key, actual[i].Keys())
			}
			if !stateValuesEqual(exp[key], v) {
				return fmt.Errorf("row %d: field %q = %s, expected %v", i, key, describeValue(v), exp[key])
			}
		}
	}
	return nil
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares an expected YAML value with a sandbox value.
// SQLite has no boolean type, so true/false match 1/0, and integral
// floats match integers.
func stateValuesEqual(expected any, actual ir.Value) bool {
	exp, err := ir.FromGo(expected)
	if err != nil {
		return false
	}

	switch e := exp.(type) {
	case ir.Bool:
		switch a := actual.(type) {
		case ir.Bool:
			return e == a
		case ir.Int:
			return bool(e) == (a != 0)
		}
		return false
	case ir.Int:
		switch a := actual.(type) {
		case ir.Int:
			return e == a
		case ir.Float:
			return float64(e) == float64(a)
		}
		return false
	case ir.Float:
		switch a := actual.(type) {
		case ir.Float:
			return e == a
		case ir.Int:
			return float64(e) == float64(a)
		}
		return false
	}

	return reflect.DeepEqual(exp, actual)
}

func describeValue(v ir.Value) string {
	data, err := ir.MarshalValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
