package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/pgquery/internal/ir"
)

// toValue converts a concrete CUE value into an ir.Value.
// Struct fields keep their declaration order when read through toRow;
// as an ir.Object they are unordered.
func toValue(v cue.Value, field string) (ir.Value, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if !v.IsConcrete() {
		return nil, &CompileError{
			Field:   field,
			Message: "value must be concrete",
			Pos:     v.Pos(),
		}
	}

	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		return ir.Int(i), nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		return ir.Float(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Text(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		list := ir.List{}
		for i := 0; iter.Next(); i++ {
			elem, err := toValue(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
		}
		return list, nil
	case cue.StructKind:
		row, err := toRow(v, field)
		if err != nil {
			return nil, err
		}
		return row.Object(), nil
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// toRow reads a CUE struct as an ordered row, in field declaration order.
func toRow(v cue.Value, field string) (ir.Row, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var row ir.Row
	for iter.Next() {
		key := iter.Label()
		val, err := toValue(iter.Value(), field+"."+key)
		if err != nil {
			return nil, err
		}
		row = append(row, ir.P(key, val))
	}
	return row, nil
}

// toStrings reads a CUE list of strings.
func toStrings(v cue.Value, field string) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: v.Pos()}
	}
	var out []string
	for i := 0; iter.Next(); i++ {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: "must be a string",
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func lookupString(v cue.Value, name, field string) (string, bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return "", false, nil
	}
	s, err := f.String()
	if err != nil {
		return "", true, &CompileError{Field: field, Message: "must be a string", Pos: f.Pos()}
	}
	return s, true, nil
}

func lookupBool(v cue.Value, name, field string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, &CompileError{Field: field, Message: "must be a bool", Pos: f.Pos()}
	}
	return b, nil
}

func lookupInt(v cue.Value, name, field string) (int, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return 0, &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	i, err := f.Int64()
	if err != nil {
		return 0, &CompileError{Field: field, Message: "must be an integer", Pos: f.Pos()}
	}
	return int(i), nil
}
