// Package store runs compiled statements against a SQLite sandbox.
//
// The sandbox exists for tests, scenario runs and the exec command: it
// executes the SQL the compiler produced and keeps an append-only
// statement log (statement_log) keyed by the statement fingerprint and the
// SHA-256 of the exact SQL text.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The log is ordered by seq only. Schema-qualified names work after
// AttachSchema; PostgreSQL-only syntax surfaces as a driver error.
package store
