package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// LogEntry is one executed statement.
type LogEntry struct {
	Seq          int64  `db:"seq" json:"seq"`
	Fingerprint  string `db:"fingerprint" json:"fingerprint"`
	SQLHash      string `db:"sql_hash" json:"sql_hash"`
	Action       string `db:"action" json:"action"`
	SQL          string `db:"sql" json:"sql"`
	RowsAffected int64  `db:"rows_affected" json:"rows_affected"`
	RowCount     int64  `db:"row_count" json:"row_count"`
	Unbounded    bool   `db:"unbounded" json:"unbounded"`
}

func appendLog(ctx context.Context, tx *sqlx.Tx, e LogEntry) (int64, error) {
	r, err := tx.NamedExecContext(ctx, `
		INSERT INTO statement_log
			(fingerprint, sql_hash, action, sql, rows_affected, row_count, unbounded)
		VALUES
			(:fingerprint, :sql_hash, :action, :sql, :rows_affected, :row_count, :unbounded)
	`, e)
	if err != nil {
		return 0, fmt.Errorf("append statement log: %w", err)
	}
	seq, err := r.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append statement log: %w", err)
	}
	return seq, nil
}

// History returns the statement log in execution order.
func (s *Store) History(ctx context.Context) ([]LogEntry, error) {
	var entries []LogEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT seq, fingerprint, sql_hash, action, sql, rows_affected, row_count, unbounded
		FROM statement_log
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read statement log: %w", err)
	}
	return entries, nil
}

// HistoryFor returns the log entries of one statement fingerprint, in
// execution order.
func (s *Store) HistoryFor(ctx context.Context, fingerprint string) ([]LogEntry, error) {
	var entries []LogEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT seq, fingerprint, sql_hash, action, sql, rows_affected, row_count, unbounded
		FROM statement_log
		WHERE fingerprint = ?
		ORDER BY seq ASC
	`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("read statement log: %w", err)
	}
	return entries, nil
}
