package queryir

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompileErrorMessage(t *testing.T) {
	err := NewCompileError(ErrKindInvalidRange, "range", "to (%d) is less than from (%d)", 1, 5)
	assert.Equal(t, "INVALID_RANGE: to (1) is less than from (5) (field=range)", err.Error())

	err = NewCompileError(ErrKindUnknownAction, "", "unknown action %q", "upsert")
	assert.Equal(t, `UNKNOWN_ACTION: unknown action "upsert"`, err.Error())
}

func TestIsKindUnwraps(t *testing.T) {
	base := NewCompileError(ErrKindEmptyPayload, "payload", "insert requires row data")
	wrapped := fmt.Errorf("compile users: %w", base)

	assert.True(t, IsKind(wrapped, ErrKindEmptyPayload))
	assert.False(t, IsKind(wrapped, ErrKindInvalidRange))
	assert.False(t, IsKind(errors.New("plain"), ErrKindEmptyPayload))
	assert.False(t, IsKind(nil, ErrKindEmptyPayload))
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(NewCompileError(ErrKindUnsupportedOperator, "", "x"))
	assert.True(t, ok)
	assert.Equal(t, ErrKindUnsupportedOperator, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}
