package ir

import "slices"

// Pair is one column/value cell of a Row.
type Pair struct {
	Key   string
	Value Value
}

// P is a shorthand for Pair for ergonomic construction.
// Example: NewRow(P("name", Text("cart")), P("count", Int(5)))
func P(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// Row is an ordered mapping from column name to value.
//
// Order is significant: it decides the INSERT column list and the SET
// clause order, so a Row compiles the same way every time. A later Pair
// with the same Key replaces the earlier one in place (see Set).
type Row []Pair

// NewRow creates a Row from pairs, collapsing duplicate keys.
func NewRow(pairs ...Pair) Row {
	var r Row
	for _, p := range pairs {
		r = r.Set(p.Key, p.Value)
	}
	return r
}

// RowFromMap creates a Row from a map. Keys are sorted (RFC 8785 order)
// because map iteration order is random.
func RowFromMap(m map[string]Value) Row {
	keys := Object(m).SortedKeys()
	r := make(Row, 0, len(keys))
	for _, k := range keys {
		r = append(r, Pair{Key: k, Value: m[k]})
	}
	return r
}

// Set returns a Row with key set to v. An existing key keeps its position.
// The receiver is not modified.
func (r Row) Set(key string, v Value) Row {
	out := slices.Clone(r)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = v
			return out
		}
	}
	return append(out, Pair{Key: key, Value: v})
}

// Get returns the value stored under key.
func (r Row) Get(key string) (Value, bool) {
	for _, p := range r {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Keys returns the column names in row order.
func (r Row) Keys() []string {
	keys := make([]string, len(r))
	for i, p := range r {
		keys[i] = p.Key
	}
	return keys
}

// Object converts the row to an Object, dropping order.
func (r Row) Object() Object {
	obj := make(Object, len(r))
	for _, p := range r {
		obj[p.Key] = p.Value
	}
	return obj
}
