package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/pgquery/internal/queryir"
	"github.com/roach88/pgquery/internal/querysql"
)

// Validation error codes (E100-E199)
const (
	ErrDuplicateName     = "E105" // duplicate query name
	ErrInvalidDefinition = "E110" // malformed query definition

	// Statement errors (E120-E129), one per queryir.ErrorKind
	ErrUnsupportedModifier   = "E120"
	ErrInvalidRange          = "E121"
	ErrInvalidOperatorValue  = "E122"
	ErrEmptyPayload          = "E123"
	ErrUnboundedMutation     = "E124"
	ErrUnsupportedOperator   = "E125"
	ErrInvalidIdentifier     = "E126"
	ErrInvalidPayload        = "E127"
	ErrUnknownAction         = "E128"
	ErrStatementUnclassified = "E129"

	// Advisory findings (E130-E139)
	ErrDuplicateSortKey = "E130" // same column sorted twice
	ErrUnboundedWarning = "E131" // unbounded mutation allowed by policy
)

var kindCodes = map[queryir.ErrorKind]string{
	queryir.ErrKindUnsupportedModifier:  ErrUnsupportedModifier,
	queryir.ErrKindInvalidRange:         ErrInvalidRange,
	queryir.ErrKindInvalidOperatorValue: ErrInvalidOperatorValue,
	queryir.ErrKindEmptyPayload:         ErrEmptyPayload,
	queryir.ErrKindUnboundedMutation:    ErrUnboundedMutation,
	queryir.ErrKindUnsupportedOperator:  ErrUnsupportedOperator,
	queryir.ErrKindInvalidIdentifier:    ErrInvalidIdentifier,
	queryir.ErrKindInvalidPayload:       ErrInvalidPayload,
	queryir.ErrKindUnknownAction:        ErrUnknownAction,
}

// CodeForKind maps a statement error kind to its validation code.
func CodeForKind(kind queryir.ErrorKind) string {
	if code, ok := kindCodes[kind]; ok {
		return code
	}
	return ErrStatementUnclassified
}

// ValidationError represents one finding about a query definition.
type ValidationError struct {
	Query   string `json:"query"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
	Warning bool   `json:"warning,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] %s line %d: %s: %s", e.Code, e.Query, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Query, e.Field, e.Message)
}

// Validate checks every query and returns all findings (does not fail-fast).
//
// Each query is compiled with c, so c's unbounded-mutation policy decides
// whether a filterless update or delete is an error (E124) or a warning
// (E131). Findings within one query are ordered: compile error first, then
// advisories.
func Validate(queries []Query, c *querysql.SQLCompiler) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)

	for _, q := range queries {
		line := q.Pos.Line()

		if seen[q.Name] {
			errs = append(errs, ValidationError{
				Query:   q.Name,
				Field:   "name",
				Message: fmt.Sprintf("duplicate query name: %q", q.Name),
				Code:    ErrDuplicateName,
				Line:    line,
			})
		}
		seen[q.Name] = true

		res, err := q.Compile(c, querysql.DefaultOptions())
		if err != nil {
			errs = append(errs, statementError(q.Name, line, err))
			continue
		}

		if res.UnboundedMutation {
			errs = append(errs, ValidationError{
				Query:   q.Name,
				Field:   "filters",
				Message: fmt.Sprintf("%s without filters affects every row", res.Action),
				Code:    ErrUnboundedWarning,
				Line:    line,
				Warning: true,
			})
		}
		errs = append(errs, duplicateSorts(q, line)...)
	}

	return errs
}

// HasErrors reports whether any finding is not a warning.
func HasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if !e.Warning {
			return true
		}
	}
	return false
}

func statementError(query string, line int, err error) ValidationError {
	var ce *queryir.CompileError
	if errors.As(err, &ce) {
		return ValidationError{
			Query:   query,
			Field:   ce.Field,
			Message: ce.Message,
			Code:    CodeForKind(ce.Kind),
			Line:    line,
		}
	}
	return ValidationError{
		Query:   query,
		Field:   "query",
		Message: err.Error(),
		Code:    ErrStatementUnclassified,
		Line:    line,
	}
}

// duplicateSorts reports every sort key that repeats an earlier one.
// PostgreSQL accepts the repeat; it is reported because the later key
// can never change the order.
func duplicateSorts(q Query, line int) []ValidationError {
	var errs []ValidationError
	seen := make(map[queryir.Sort]bool)
	for i, s := range q.Builder.Statement().Sorts {
		key := queryir.Sort{Table: s.Table, Column: s.Column}
		if seen[key] {
			errs = append(errs, ValidationError{
				Query:   q.Name,
				Field:   fmt.Sprintf("order[%d]", i),
				Message: fmt.Sprintf("column %q is already sorted by an earlier key", s.Column),
				Code:    ErrDuplicateSortKey,
				Line:    line,
				Warning: true,
			})
		}
		seen[key] = true
	}
	return errs
}
