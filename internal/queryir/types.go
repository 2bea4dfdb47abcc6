package queryir

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/pgquery/internal/ir"
)

// TableRef identifies the schema-qualified table or view a statement targets.
// Schema may be empty, in which case the name is rendered unqualified and
// resolved through the session search_path.
type TableRef struct {
	Schema string `json:"schema,omitempty"`
	Name   string `json:"name"`
}

// Table creates a TableRef.
func Table(schema, name string) TableRef {
	return TableRef{Schema: schema, Name: name}
}

// ParseTableRef splits "schema.name" at the first dot.
// A string without a dot yields an unqualified TableRef.
func ParseTableRef(s string) TableRef {
	schema, name, ok := strings.Cut(s, ".")
	if !ok {
		return TableRef{Name: s}
	}
	return TableRef{Schema: schema, Name: name}
}

// String returns the unquoted dotted form, e.g. "public.projects".
func (t TableRef) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Action is the single database operation a statement performs.
type Action string

const (
	ActionSelect   Action = "select"
	ActionInsert   Action = "insert"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionTruncate Action = "truncate"
	ActionCount    Action = "count"
)

// Actions lists every Action in a stable order.
var Actions = []Action{ActionSelect, ActionInsert, ActionUpdate, ActionDelete, ActionTruncate, ActionCount}

// ParseAction resolves a case-insensitive action name.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown action %q: must be one of %v", s, Actions)
	}
	return a, nil
}

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool {
	return slices.Contains(Actions, a)
}

// IsMutation reports whether a rewrites or removes existing rows selected
// by the WHERE clause. Such statements without filters touch every row.
func (a Action) IsMutation() bool {
	return a == ActionUpdate || a == ActionDelete
}

// FilterOperator is the closed vocabulary of predicate operators.
//
// The string values are the PostgreSQL operator spellings (LIKE is ~~,
// ILIKE is ~~*). Adding an operator is a compatible change; removing or
// renaming one breaks callers that persist definitions.
type FilterOperator string

const (
	OpEq          FilterOperator = "="
	OpNeq         FilterOperator = "<>"
	OpLt          FilterOperator = "<"
	OpLte         FilterOperator = "<="
	OpGt          FilterOperator = ">"
	OpGte         FilterOperator = ">="
	OpLike        FilterOperator = "~~"
	OpILike       FilterOperator = "~~*"
	OpNotLike     FilterOperator = "!~~"
	OpNotILike    FilterOperator = "!~~*"
	OpIn          FilterOperator = "in"
	OpNotIn       FilterOperator = "not in"
	OpIs          FilterOperator = "is"
	OpIsNot       FilterOperator = "is not"
	OpContains    FilterOperator = "@>"
	OpContainedBy FilterOperator = "<@"
	OpOverlaps    FilterOperator = "&&"
)

// Operators lists every FilterOperator in a stable order.
var Operators = []FilterOperator{
	OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte,
	OpLike, OpILike, OpNotLike, OpNotILike,
	OpIn, OpNotIn, OpIs, OpIsNot,
	OpContains, OpContainedBy, OpOverlaps,
}

// operatorAliases maps alternate spellings accepted by ParseOperator.
var operatorAliases = map[string]FilterOperator{
	"!=":        OpNeq,
	"like":      OpLike,
	"ilike":     OpILike,
	"not like":  OpNotLike,
	"not ilike": OpNotILike,
}

// ParseOperator resolves an operator spelling. Keyword operators are
// case-insensitive and tolerate repeated inner whitespace.
func ParseOperator(s string) (FilterOperator, bool) {
	key := strings.ToLower(strings.Join(strings.Fields(s), " "))
	if op := FilterOperator(key); op.Valid() {
		return op, true
	}
	op, ok := operatorAliases[key]
	return op, ok
}

// Valid reports whether op is part of the vocabulary.
func (op FilterOperator) Valid() bool {
	return slices.Contains(Operators, op)
}

// Filter is one column-operator-value predicate.
// Filters on a statement are combined with AND in append order.
type Filter struct {
	Column   string         `json:"column"`
	Operator FilterOperator `json:"operator"`
	Value    ir.Value       `json:"value"`
}

// Sort is one ORDER BY key.
// Table qualifies the column ("public.projects" or "projects"); empty
// means the column is rendered unqualified.
type Sort struct {
	Table      string `json:"table,omitempty"`
	Column     string `json:"column"`
	Ascending  bool   `json:"ascending"`
	NullsFirst bool   `json:"nulls_first"`
}

// Range is a zero-based inclusive row window.
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Limit returns the LIMIT value the range maps to.
func (r Range) Limit() int {
	return r.To - r.From + 1
}

// Offset returns the OFFSET value the range maps to.
func (r Range) Offset() int {
	return r.From
}

// Payload carries the row data of an insert or update.
type Payload struct {
	Rows []ir.Row `json:"rows"`
}

// ActionOptions holds per-action switches.
type ActionOptions struct {
	// Returning appends RETURNING * (insert, update, delete).
	Returning bool `json:"returning,omitempty"`

	// EnumArrayColumns marks payload columns holding arrays of an enum type.
	// The value is the enum type name ("mood" or "public.mood"). An empty
	// type name renders an untyped array literal that PostgreSQL coerces to
	// the column type.
	EnumArrayColumns map[string]string `json:"enum_array_columns,omitempty"`

	// Cascade appends CASCADE (truncate).
	Cascade bool `json:"cascade,omitempty"`

	// RestartIdentity appends RESTART IDENTITY (truncate).
	RestartIdentity bool `json:"restart_identity,omitempty"`
}

// Statement is the complete description of one single-table operation.
//
// It is the snapshot a builder hands to the compiler. Compilation never
// mutates a Statement, so one snapshot may be compiled any number of times
// and from multiple goroutines.
type Statement struct {
	Table   TableRef      `json:"table"`
	Action  Action        `json:"action"`
	Columns []string      `json:"columns,omitempty"` // select projection; empty = *
	Payload *Payload      `json:"payload,omitempty"` // insert/update rows
	Options ActionOptions `json:"options"`
	Filters []Filter      `json:"filters,omitempty"`
	Sorts   []Sort        `json:"sorts,omitempty"`
	Range   *Range        `json:"range,omitempty"`
}

// Clone returns a deep copy of s. Values inside rows and filters are
// shared; ir values are never mutated in place.
func (s Statement) Clone() Statement {
	out := s
	out.Columns = slices.Clone(s.Columns)
	out.Filters = slices.Clone(s.Filters)
	out.Sorts = slices.Clone(s.Sorts)
	out.Options.EnumArrayColumns = maps.Clone(s.Options.EnumArrayColumns)
	if s.Payload != nil {
		rows := make([]ir.Row, len(s.Payload.Rows))
		for i, r := range s.Payload.Rows {
			rows[i] = slices.Clone(r)
		}
		out.Payload = &Payload{Rows: rows}
	}
	if s.Range != nil {
		r := *s.Range
		out.Range = &r
	}
	return out
}

// Unbounded reports whether s is an update or delete without filters,
// i.e. one that affects every row of the table.
func (s Statement) Unbounded() bool {
	return s.Action.IsMutation() && len(s.Filters) == 0
}
