package querysql

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/pgquery/internal/ir"
	"github.com/roach88/pgquery/internal/queryir"
)

// This file is the only place caller-supplied names and values become SQL
// text. Everything else in the package concatenates the strings returned
// here with fixed keywords.

// QuoteIdent renders name as a PostgreSQL quoted identifier.
// Embedded double quotes are doubled. Empty names and names containing
// NUL are rejected.
func QuoteIdent(name string) (string, error) {
	if err := queryir.CheckIdentifier(name); err != nil {
		return "", err
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`, nil
}

// QuoteQualified quotes each part and joins them with dots.
func QuoteQualified(parts ...string) (string, error) {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		q, err := QuoteIdent(p)
		if err != nil {
			return "", err
		}
		quoted[i] = q
	}
	return strings.Join(quoted, "."), nil
}

// QuoteTable renders a TableRef as "schema"."name", or "name" when the
// schema is empty.
func QuoteTable(t queryir.TableRef) (string, error) {
	if t.Schema == "" {
		return QuoteIdent(t.Name)
	}
	return QuoteQualified(t.Schema, t.Name)
}

// QuoteLiteral renders s as a PostgreSQL string constant.
//
// Single quotes are doubled. Text containing a backslash uses the escape
// string form E'...' with backslashes doubled, so the result means the same
// thing whatever standard_conforming_strings is set to. PostgreSQL text
// cannot hold NUL, so it is rejected.
func QuoteLiteral(s string) (string, error) {
	if strings.ContainsRune(s, 0) {
		return "", fmt.Errorf("text contains NUL byte")
	}
	escaped := strings.ReplaceAll(s, `'`, `''`)
	if strings.Contains(s, `\`) {
		return `E'` + strings.ReplaceAll(escaped, `\`, `\\`) + `'`, nil
	}
	return `'` + escaped + `'`, nil
}

// RenderValue renders any ir.Value as a SQL literal.
//
//	Null   NULL
//	Bool   TRUE | FALSE
//	Int    42
//	Float  1.5 | 'NaN'::float8 | 'Infinity'::float8 | '-Infinity'::float8
//	Text   'text' | E'with \\ backslash'
//	List   ARRAY[a, b] | '{}' when empty
//	Object '{"k":1}'::jsonb
func RenderValue(v ir.Value) (string, error) {
	switch val := v.(type) {
	case ir.Null:
		return "NULL", nil
	case ir.Bool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case ir.Int:
		return strconv.FormatInt(int64(val), 10), nil
	case ir.Float:
		return renderFloat(float64(val)), nil
	case ir.Text:
		return QuoteLiteral(string(val))
	case ir.List:
		if len(val) == 0 {
			return "'{}'", nil
		}
		items, err := renderItems(val)
		if err != nil {
			return "", err
		}
		return "ARRAY[" + items + "]", nil
	case ir.Object:
		doc, err := ir.MarshalValue(val)
		if err != nil {
			return "", err
		}
		lit, err := QuoteLiteral(string(doc))
		if err != nil {
			return "", err
		}
		return lit + "::jsonb", nil
	case nil:
		return "", fmt.Errorf("missing value")
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// renderItems renders list elements separated by ", ".
func renderItems(list ir.List) (string, error) {
	parts := make([]string, len(list))
	for i, elem := range list {
		s, err := RenderValue(elem)
		if err != nil {
			return "", fmt.Errorf("element %d: %w", i, err)
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), nil
}

func renderFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "'NaN'::float8"
	case math.IsInf(f, 1):
		return "'Infinity'::float8"
	case math.IsInf(f, -1):
		return "'-Infinity'::float8"
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

// RenderEnumArray renders a list of enum labels for an enum-array column.
//
// With a type name the labels become ARRAY['a', 'b']::"schema"."type"[];
// the cast is required because PostgreSQL types a bare ARRAY[...] of
// string constants as text[], which does not assign to an enum array.
// Without a type name the labels become the untyped array literal
// '{"a","b"}', which PostgreSQL coerces to the target column's type.
func RenderEnumArray(v ir.Value, enumType string) (string, error) {
	list, ok := v.(ir.List)
	if !ok {
		if _, isNull := v.(ir.Null); isNull {
			return "NULL", nil
		}
		return "", fmt.Errorf("enum array value is %s, want list", ir.KindOf(v))
	}

	if enumType == "" {
		return renderArrayLiteral(list)
	}

	typ, err := QuoteQualified(queryir.SplitQualifier(enumType)...)
	if err != nil {
		return "", fmt.Errorf("enum type: %w", err)
	}
	if len(list) == 0 {
		return "'{}'::" + typ + "[]", nil
	}
	items, err := renderItems(list)
	if err != nil {
		return "", err
	}
	return "ARRAY[" + items + "]::" + typ + "[]", nil
}

// renderArrayLiteral renders text labels as a PostgreSQL array input string
// ('{"a","b"}') and quotes the result as a literal.
func renderArrayLiteral(list ir.List) (string, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, elem := range list {
		if i > 0 {
			b.WriteByte(',')
		}
		switch val := elem.(type) {
		case ir.Null:
			b.WriteString("NULL")
		case ir.Text:
			b.WriteByte('"')
			b.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(string(val)))
			b.WriteByte('"')
		default:
			return "", fmt.Errorf("enum array element %d is %s, want text", i, ir.KindOf(elem))
		}
	}
	b.WriteByte('}')
	return QuoteLiteral(b.String())
}
