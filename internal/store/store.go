package store

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/pgquery/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on statement_log.fingerprint
const currentSchemaVersion = 1

// Store is a SQLite sandbox for running compiled statements.
//
// SQLite accepts most of the SQL the compiler emits for plain tables:
// quoted identifiers, schema-qualified names (through attached databases),
// NULLS FIRST/LAST, LIMIT/OFFSET, RETURNING and WITH. PostgreSQL-only
// syntax (ILIKE, ARRAY[...], jsonb, E'' strings, DEFAULT in VALUES,
// TRUNCATE) fails with the driver's error.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger

	allowUnbounded bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for executed statements.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// AllowUnbounded lets Exec run update and delete statements without
// filters. By default they are refused with ErrUnboundedMutation.
func AllowUnbounded() Option {
	return func(s *Store) {
		s.allowUnbounded = true
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Use ":memory:" for a throwaway sandbox. The pool is limited to one
// connection, so in-memory and attached databases live as long as the Store.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and every attached
	// database belongs to a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sqlx.DB for direct queries.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// AttachSchema attaches an empty in-memory database under name, so that
// schema-qualified table names such as "public"."projects" resolve.
// Attaching "main" or "temp" is rejected by SQLite.
func (s *Store) AttachSchema(ctx context.Context, name string) error {
	return s.AttachDatabase(ctx, name, ":memory:")
}

// AttachDatabase attaches the database file at path under name.
// The file is created if it does not exist.
func (s *Store) AttachDatabase(ctx context.Context, name, path string) error {
	ident, err := querysql.QuoteIdent(name)
	if err != nil {
		return fmt.Errorf("attach schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "ATTACH DATABASE ? AS "+ident, path); err != nil {
		return fmt.Errorf("attach schema %q: %w", name, err)
	}
	return nil
}

// Setup runs DDL or fixture statements verbatim. They are not logged.
func (s *Store) Setup(ctx context.Context, statements ...string) error {
	for i, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("setup statement %d: %w", i, err)
		}
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sqlx.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sqlx.DB) error {
	var version int
	if err := db.Get(&version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes the log by fingerprint for History lookups.
func migrateToV1(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_statement_log_fingerprint
		ON statement_log(fingerprint, seq)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.Get(&value, fmt.Sprintf("PRAGMA %s", name)); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
