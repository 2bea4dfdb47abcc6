// Package harness runs compiler conformance scenarios.
//
// A scenario compiles a list of query definitions, checks each result
// against its expectations and, where asked, runs the SQL in a SQLite
// sandbox (internal/store) to check the rows it returns.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schemas: [public]
//	setup:
//	  - CREATE TABLE "public"."projects" (id INTEGER PRIMARY KEY, name TEXT)
//	cases:
//	  - name: by_name
//	    query:
//	      table: public.projects
//	      action: select
//	      match: { name: "alpha" }
//	    execute: true
//	    expect:
//	      sql: SELECT * FROM "public"."projects" WHERE "name" = 'alpha';
//	      rows: [{ id: 1, name: alpha }]
//	  - name: bad_range
//	    query: { table: t, action: select, range: { from: 5, to: 1 } }
//	    expect: { error: INVALID_RANGE, field: range }
//	assertions:
//	  - type: row_count
//	    table: public.projects
//	    count: 1
//
// The query mapping uses the same fields as a .cue query definition and is
// read by the same parser (internal/compiler).
//
// # Assertion Types
//
//   - final_state: exactly one row matches where, and it contains expect
//   - row_count: the number of rows matching where
//   - log_count: the number of executed statements, optionally per action
//
// # Deterministic Testing
//
// Every scenario runs in a fresh in-memory database and cases run in file
// order, so the trace (and the sandbox seq numbers in it) is identical
// across runs. Traces are compared with golden files in canonical JSON.
package harness
