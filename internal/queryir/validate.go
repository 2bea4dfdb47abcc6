package queryir

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/roach88/pgquery/internal/ir"
)

// modifier is a bit set of the statement parts an action may carry.
type modifier uint16

const (
	modColumns modifier = 1 << iota
	modPayload
	modFilters
	modSorts
	modRange
	modReturning
	modEnumArrays
	modTruncateOpts
)

// allowedModifiers is the per-action clause shape.
var allowedModifiers = map[Action]modifier{
	ActionSelect:   modColumns | modFilters | modSorts | modRange,
	ActionCount:    modFilters,
	ActionInsert:   modPayload | modReturning | modEnumArrays,
	ActionUpdate:   modPayload | modFilters | modReturning | modEnumArrays,
	ActionDelete:   modFilters | modReturning,
	ActionTruncate: modTruncateOpts,
}

// Validate checks every structural invariant of a statement and returns the
// first violation as a *CompileError, or nil.
//
// Checks run in a fixed order (table, action, modifiers, range, payload,
// columns, filters, sorts) so the same statement always reports the same
// error. Unbounded mutations are not errors here; see Statement.Unbounded.
//
// Validate is a pure function with no side effects.
func Validate(s Statement) error {
	if err := validateTable(s.Table); err != nil {
		return err
	}
	allowed, ok := allowedModifiers[s.Action]
	if !ok {
		return NewCompileError(ErrKindUnknownAction, "action", "unknown action %q", s.Action)
	}
	if err := validateModifiers(s, allowed); err != nil {
		return err
	}
	if s.Range != nil {
		if err := validateRange(*s.Range); err != nil {
			return err
		}
	}
	if allowed&modPayload != 0 {
		if err := validatePayload(s); err != nil {
			return err
		}
	}
	for i, col := range s.Columns {
		if col == "*" {
			continue
		}
		if err := CheckIdentifier(col); err != nil {
			return NewCompileError(ErrKindInvalidIdentifier, fmt.Sprintf("columns[%d]", i), "%v", err)
		}
	}
	for i, f := range s.Filters {
		if err := validateFilter(i, f); err != nil {
			return err
		}
	}
	for i, srt := range s.Sorts {
		if err := CheckIdentifier(srt.Column); err != nil {
			return NewCompileError(ErrKindInvalidIdentifier, fmt.Sprintf("sorts[%d].column", i), "%v", err)
		}
		for _, part := range SplitQualifier(srt.Table) {
			if err := CheckIdentifier(part); err != nil {
				return NewCompileError(ErrKindInvalidIdentifier, fmt.Sprintf("sorts[%d].table", i), "%v", err)
			}
		}
	}
	return nil
}

func validateTable(t TableRef) error {
	if err := CheckIdentifier(t.Name); err != nil {
		return NewCompileError(ErrKindInvalidIdentifier, "table.name", "%v", err)
	}
	if t.Schema != "" {
		if err := CheckIdentifier(t.Schema); err != nil {
			return NewCompileError(ErrKindInvalidIdentifier, "table.schema", "%v", err)
		}
	}
	return nil
}

// validateModifiers rejects every part the action's clause shape excludes.
func validateModifiers(s Statement, allowed modifier) error {
	present := []struct {
		mod   modifier
		set   bool
		field string
		what  string
	}{
		{modColumns, len(s.Columns) > 0, "columns", "a column projection"},
		{modPayload, s.Payload != nil, "payload", "row data"},
		{modFilters, len(s.Filters) > 0, "filters", "filters"},
		{modSorts, len(s.Sorts) > 0, "sorts", "sorts"},
		{modRange, s.Range != nil, "range", "a range"},
		{modReturning, s.Options.Returning, "options.returning", "RETURNING"},
		{modEnumArrays, len(s.Options.EnumArrayColumns) > 0, "options.enum_array_columns", "enum array columns"},
		{modTruncateOpts, s.Options.Cascade || s.Options.RestartIdentity, "options", "CASCADE/RESTART IDENTITY"},
	}
	for _, p := range present {
		if p.set && allowed&p.mod == 0 {
			return NewCompileError(ErrKindUnsupportedModifier, p.field,
				"%s does not accept %s", s.Action, p.what)
		}
	}
	return nil
}

func validateRange(r Range) error {
	if r.From < 0 || r.To < 0 {
		return NewCompileError(ErrKindInvalidRange, "range", "bounds must be non-negative, got (%d, %d)", r.From, r.To)
	}
	if r.To < r.From {
		return NewCompileError(ErrKindInvalidRange, "range", "to (%d) is less than from (%d)", r.To, r.From)
	}
	if r.To-r.From == math.MaxInt {
		return NewCompileError(ErrKindInvalidRange, "range", "range (%d, %d) spans more rows than LIMIT can express", r.From, r.To)
	}
	return nil
}

// validatePayload checks insert/update row data.
func validatePayload(s Statement) error {
	if s.Payload == nil || len(s.Payload.Rows) == 0 {
		return NewCompileError(ErrKindEmptyPayload, "payload", "%s requires row data", s.Action)
	}
	if s.Action == ActionUpdate && len(s.Payload.Rows) != 1 {
		return NewCompileError(ErrKindInvalidPayload, "payload",
			"update takes exactly one row, got %d", len(s.Payload.Rows))
	}

	for _, col := range slices.Sorted(maps.Keys(s.Options.EnumArrayColumns)) {
		typ := s.Options.EnumArrayColumns[col]
		if err := CheckIdentifier(col); err != nil {
			return NewCompileError(ErrKindInvalidIdentifier, "options.enum_array_columns", "%v", err)
		}
		for _, part := range SplitQualifier(typ) {
			if err := CheckIdentifier(part); err != nil {
				return NewCompileError(ErrKindInvalidIdentifier, "options.enum_array_columns",
					"enum type for %q: %v", col, err)
			}
		}
	}

	nonEmpty := false
	for i, row := range s.Payload.Rows {
		if len(row) > 0 {
			nonEmpty = true
		}
		seen := make(map[string]bool, len(row))
		for _, p := range row {
			field := fmt.Sprintf("payload.rows[%d].%s", i, p.Key)
			if err := CheckIdentifier(p.Key); err != nil {
				return NewCompileError(ErrKindInvalidIdentifier, field, "%v", err)
			}
			if seen[p.Key] {
				return NewCompileError(ErrKindInvalidPayload, field, "column %q appears more than once in the row", p.Key)
			}
			seen[p.Key] = true
			if p.Value == nil {
				return NewCompileError(ErrKindInvalidPayload, field, "missing value (use ir.Null{} for NULL)")
			}
			if _, isEnum := s.Options.EnumArrayColumns[p.Key]; isEnum {
				if err := checkEnumArray(p.Value); err != nil {
					return NewCompileError(ErrKindInvalidPayload, field, "%v", err)
				}
			}
		}
	}
	if !nonEmpty {
		return NewCompileError(ErrKindEmptyPayload, "payload", "%s rows have no columns", s.Action)
	}
	return nil
}

// checkEnumArray accepts NULL or a list of text labels.
func checkEnumArray(v ir.Value) error {
	switch val := v.(type) {
	case ir.Null:
		return nil
	case ir.List:
		for i, elem := range val {
			switch elem.(type) {
			case ir.Text, ir.Null:
			default:
				return fmt.Errorf("enum array element %d is %s, want text", i, ir.KindOf(elem))
			}
		}
		return nil
	default:
		return fmt.Errorf("enum array column holds %s, want list", ir.KindOf(v))
	}
}

func validateFilter(i int, f Filter) error {
	if err := CheckIdentifier(f.Column); err != nil {
		return NewCompileError(ErrKindInvalidIdentifier, fmt.Sprintf("filters[%d].column", i), "%v", err)
	}
	if !f.Operator.Valid() {
		return NewCompileError(ErrKindUnsupportedOperator, fmt.Sprintf("filters[%d].operator", i),
			"unsupported operator %q", f.Operator)
	}
	if err := CheckOperand(f.Operator, f.Value); err != nil {
		return NewCompileError(ErrKindInvalidOperatorValue, fmt.Sprintf("filters[%d].value", i),
			"%s on %q: %v", f.Operator, f.Column, err)
	}
	return nil
}

// CheckOperand reports whether v can be rendered as the right-hand side of op.
//
//   - comparisons take a non-null scalar
//   - pattern operators take text
//   - in / not in take a non-empty list of non-null scalars
//   - is / is not take NULL or a boolean
//   - containment and overlap take a list, an object, or text
func CheckOperand(op FilterOperator, v ir.Value) error {
	if v == nil {
		return fmt.Errorf("missing value")
	}
	switch op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		if _, isNull := v.(ir.Null); isNull {
			return fmt.Errorf("NULL never compares equal; use %q or %q", OpIs, OpIsNot)
		}
		if !ir.IsScalar(v) {
			return fmt.Errorf("want a scalar, got %s", ir.KindOf(v))
		}
	case OpLike, OpILike, OpNotLike, OpNotILike:
		if _, ok := v.(ir.Text); !ok {
			return fmt.Errorf("pattern must be text, got %s", ir.KindOf(v))
		}
	case OpIn, OpNotIn:
		list, ok := v.(ir.List)
		if !ok {
			return fmt.Errorf("want a list, got %s", ir.KindOf(v))
		}
		if len(list) == 0 {
			return fmt.Errorf("list must not be empty")
		}
		for i, elem := range list {
			if !ir.IsScalar(elem) {
				return fmt.Errorf("element %d is %s, want a non-null scalar", i, ir.KindOf(elem))
			}
		}
	case OpIs, OpIsNot:
		switch v.(type) {
		case ir.Null, ir.Bool:
		default:
			return fmt.Errorf("only NULL, TRUE or FALSE allowed, got %s", ir.KindOf(v))
		}
	case OpContains, OpContainedBy, OpOverlaps:
		switch v.(type) {
		case ir.List, ir.Object, ir.Text:
		default:
			return fmt.Errorf("want a list, object or text, got %s", ir.KindOf(v))
		}
	default:
		return fmt.Errorf("unsupported operator %q", op)
	}
	return nil
}

// CheckIdentifier rejects names PostgreSQL cannot represent as a quoted
// identifier: empty strings and strings containing NUL.
func CheckIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier must not be empty")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("identifier %q contains NUL", name)
	}
	return nil
}

// SplitQualifier splits a dotted qualifier such as "public.projects".
// Empty input yields no parts.
func SplitQualifier(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}
