package queryir

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes compile errors.
type ErrorKind string

const (
	// ErrKindUnsupportedModifier indicates a filter, sort, range, payload or
	// option was supplied for an action that structurally forbids it.
	ErrKindUnsupportedModifier ErrorKind = "UNSUPPORTED_MODIFIER_FOR_ACTION"

	// ErrKindInvalidRange indicates to < from or a negative bound.
	ErrKindInvalidRange ErrorKind = "INVALID_RANGE"

	// ErrKindInvalidOperatorValue indicates an operator/value pairing that
	// cannot be rendered, e.g. IS with a text value.
	ErrKindInvalidOperatorValue ErrorKind = "INVALID_OPERATOR_VALUE"

	// ErrKindEmptyPayload indicates an insert or update without row data.
	ErrKindEmptyPayload ErrorKind = "EMPTY_ACTION_PAYLOAD"

	// ErrKindUnboundedMutation indicates an update or delete without filters.
	// Only returned when the compiler is configured to reject them; otherwise
	// it is reported through Result.UnboundedMutation.
	ErrKindUnboundedMutation ErrorKind = "UNBOUNDED_MUTATION"

	// ErrKindUnsupportedOperator indicates an operator outside the vocabulary.
	ErrKindUnsupportedOperator ErrorKind = "UNSUPPORTED_OPERATOR"

	// ErrKindInvalidIdentifier indicates an empty or unrepresentable
	// table, column or type name.
	ErrKindInvalidIdentifier ErrorKind = "INVALID_IDENTIFIER"

	// ErrKindInvalidPayload indicates row data the action cannot take,
	// e.g. several rows for an update.
	ErrKindInvalidPayload ErrorKind = "INVALID_ACTION_PAYLOAD"

	// ErrKindUnknownAction indicates an action outside the enumeration.
	ErrKindUnknownAction ErrorKind = "UNKNOWN_ACTION"
)

// CompileError describes exactly one violated precondition of a statement.
// When compilation returns a CompileError no SQL was produced.
type CompileError struct {
	// Kind identifies the error category.
	Kind ErrorKind

	// Message is a human-readable description.
	Message string

	// Field locates the offending part of the statement,
	// e.g. "filters[1].value" or "range". Empty for statement-level errors.
	Field string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewCompileError creates a CompileError with a formatted message.
func NewCompileError(kind ErrorKind, field, format string, args ...any) *CompileError {
	return &CompileError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Field:   field,
	}
}

// IsKind returns true if err is a CompileError of the given kind.
// Uses errors.As to handle wrapped errors.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// KindOf extracts the ErrorKind from err.
func KindOf(err error) (ErrorKind, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
