package queryir

import (
	"fmt"
	"math"

	"github.com/roach88/pgquery/internal/ir"
)

// Fingerprint returns the content-addressed identity of a statement.
//
// Two statements with equal content share a fingerprint regardless of how
// they were built. Compile options are not part of the identity: the same
// statement rendered standalone or as a CTE body has one fingerprint.
func Fingerprint(s Statement) (string, error) {
	desc, err := describe(s)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return ir.StatementHash(desc)
}

// describe converts a statement into an ir.Object for canonical hashing.
// Ordered parts (filters, sorts, rows) become lists so their order counts.
func describe(s Statement) (ir.Object, error) {
	desc := ir.Object{
		"ir_version": ir.Text(ir.IRVersion),
		"schema":     ir.Text(s.Table.Schema),
		"table":      ir.Text(s.Table.Name),
		"action":     ir.Text(s.Action),
	}

	if len(s.Columns) > 0 {
		cols := make(ir.List, len(s.Columns))
		for i, c := range s.Columns {
			cols[i] = ir.Text(c)
		}
		desc["columns"] = cols
	}

	if s.Payload != nil {
		rows := make(ir.List, len(s.Payload.Rows))
		for i, r := range s.Payload.Rows {
			cells := make(ir.List, len(r))
			for j, p := range r {
				if p.Value == nil {
					return nil, fmt.Errorf("payload row %d column %q has no value", i, p.Key)
				}
				cells[j] = ir.List{ir.Text(p.Key), hashable(p.Value)}
			}
			rows[i] = cells
		}
		desc["rows"] = rows
	}

	opts := ir.Object{
		"returning":        ir.Bool(s.Options.Returning),
		"cascade":          ir.Bool(s.Options.Cascade),
		"restart_identity": ir.Bool(s.Options.RestartIdentity),
	}
	if len(s.Options.EnumArrayColumns) > 0 {
		enums := make(ir.Object, len(s.Options.EnumArrayColumns))
		for col, typ := range s.Options.EnumArrayColumns {
			enums[col] = ir.Text(typ)
		}
		opts["enum_array_columns"] = enums
	}
	desc["options"] = opts

	filters := make(ir.List, len(s.Filters))
	for i, f := range s.Filters {
		if f.Value == nil {
			return nil, fmt.Errorf("filter %d on %q has no value", i, f.Column)
		}
		filters[i] = ir.Object{
			"column":   ir.Text(f.Column),
			"operator": ir.Text(f.Operator),
			"value":    hashable(f.Value),
		}
	}
	desc["filters"] = filters

	sorts := make(ir.List, len(s.Sorts))
	for i, srt := range s.Sorts {
		sorts[i] = ir.Object{
			"table":       ir.Text(srt.Table),
			"column":      ir.Text(srt.Column),
			"ascending":   ir.Bool(srt.Ascending),
			"nulls_first": ir.Bool(srt.NullsFirst),
		}
	}
	desc["sorts"] = sorts

	if s.Range != nil {
		desc["range"] = ir.List{ir.Int(s.Range.From), ir.Int(s.Range.To)}
	}

	return desc, nil
}

// hashable replaces floats canonical JSON cannot carry (NaN, ±Inf) with a
// tagged object so every valid statement has a fingerprint.
func hashable(v ir.Value) ir.Value {
	switch val := v.(type) {
	case ir.Float:
		f := float64(val)
		switch {
		case math.IsNaN(f):
			return ir.Object{"$float": ir.Text("NaN")}
		case math.IsInf(f, 1):
			return ir.Object{"$float": ir.Text("Infinity")}
		case math.IsInf(f, -1):
			return ir.Object{"$float": ir.Text("-Infinity")}
		}
		return val
	case ir.List:
		out := make(ir.List, len(val))
		for i, elem := range val {
			out[i] = hashable(elem)
		}
		return out
	case ir.Object:
		out := make(ir.Object, len(val))
		for k, elem := range val {
			out[k] = hashable(elem)
		}
		return out
	default:
		return v
	}
}
