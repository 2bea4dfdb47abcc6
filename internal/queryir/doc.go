// Package queryir defines the statement model that sits between the fluent
// builder and the SQL compiler.
//
// ARCHITECTURE:
//
//	[builder / CUE definitions / YAML scenarios] → [Statement] → [querysql]
//
// A Statement describes one single-table operation: its Action, the target
// TableRef, an optional projection or row payload, and the accumulated
// Filters, Sorts and Range. It is plain data. Producing one never fails;
// every invariant is checked by Validate, which the compiler runs before
// rendering anything.
//
// CLAUSE SHAPE PER ACTION:
//
//	Action    columns  payload  filters  sorts  range  returning  enum arrays  truncate opts
//	select    yes      -        yes      yes    yes    -          -            -
//	count     -        -        yes      -      -      -          -            -
//	insert    -        required -        -      -      yes        yes          -
//	update    -        one row  yes      -      -      yes        yes          -
//	delete    -        -        yes      -      -      yes        -            -
//	truncate  -        -        -        -      -      -          -            yes
//
// Anything outside an action's shape is an UNSUPPORTED_MODIFIER_FOR_ACTION
// CompileError.
//
// FILTERS:
//
// Filters combine with AND in append order. OR and grouping are not part of
// the model. FilterOperator is a closed vocabulary and CheckOperand defines
// which ir.Value variants each operator accepts.
//
// UNBOUNDED MUTATIONS:
//
// An update or delete without filters is valid (Statement.Unbounded reports
// it). Whether that is acceptable is a caller policy; the compiler surfaces
// it on every result.
package queryir
