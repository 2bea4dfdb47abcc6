package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/pgquery/internal/ir"
	"github.com/roach88/pgquery/internal/queryir"
	"github.com/roach88/pgquery/internal/querysql"
)

var (
	// ErrUnboundedMutation is returned by Exec for a filterless update or
	// delete unless the Store was opened with AllowUnbounded.
	ErrUnboundedMutation = errors.New("refusing to run unbounded mutation")

	// ErrUnsupported is returned for statements SQLite cannot run.
	ErrUnsupported = errors.New("statement not supported by the sqlite sandbox")
)

// Outcome is what running one compiled statement produced.
type Outcome struct {
	Seq          int64    `json:"seq"`
	Rows         []ir.Row `json:"rows,omitempty"`
	RowsAffected int64    `json:"rows_affected"`
}

// Exec runs a compiled statement and records it in the statement log.
//
// Statements whose Result reports ReturnsRows are run as queries and their
// rows are returned in column order; everything else reports the number of
// affected rows. The log entry and the statement share one transaction, so
// a failed statement leaves no trace.
func (s *Store) Exec(ctx context.Context, res *querysql.Result) (*Outcome, error) {
	if res == nil {
		return nil, errors.New("exec: nil result")
	}
	if res.Action == queryir.ActionTruncate {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, res.Action)
	}
	if res.UnboundedMutation && !s.allowUnbounded {
		return nil, fmt.Errorf("%w: %s %s", ErrUnboundedMutation, res.Action, res.Fingerprint)
	}

	start := time.Now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	out := &Outcome{}
	if res.ReturnsRows {
		out.Rows, err = queryRows(ctx, tx, res.SQL)
		out.RowsAffected = int64(len(out.Rows))
	} else {
		out.RowsAffected, err = execStatement(ctx, tx, res.SQL)
	}
	if err != nil {
		s.logger.Debug("statement failed",
			"fingerprint", res.Fingerprint,
			"action", res.Action,
			"error", err)
		return nil, fmt.Errorf("exec %s: %w", res.Action, err)
	}

	entry := LogEntry{
		Fingerprint:  res.Fingerprint,
		SQLHash:      ir.SQLHash(res.SQL),
		Action:       string(res.Action),
		SQL:          res.SQL,
		RowsAffected: out.RowsAffected,
		RowCount:     int64(len(out.Rows)),
		Unbounded:    res.UnboundedMutation,
	}
	if out.Seq, err = appendLog(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("statement executed",
		"seq", out.Seq,
		"fingerprint", res.Fingerprint,
		"action", res.Action,
		"rows", out.RowsAffected,
		"duration", time.Since(start))
	return out, nil
}

// Query runs a compiled select or count without recording it in the
// statement log. Statements that do not return rows, or that mutate, are
// rejected.
func (s *Store) Query(ctx context.Context, res *querysql.Result) ([]ir.Row, error) {
	if res == nil {
		return nil, errors.New("query: nil result")
	}
	if res.Action != queryir.ActionSelect && res.Action != queryir.ActionCount {
		return nil, fmt.Errorf("query: %s is not a read", res.Action)
	}
	rows, err := queryRows(ctx, s.db, res.SQL)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", res.Action, err)
	}
	return rows, nil
}

func execStatement(ctx context.Context, tx *sqlx.Tx, sql string) (int64, error) {
	r, err := tx.ExecContext(ctx, sql)
	if err != nil {
		return 0, err
	}
	return r.RowsAffected()
}

// queryRows reads every row as an ir.Row whose keys follow the column
// order of the result set.
func queryRows(ctx context.Context, q sqlx.QueryerContext, sql string) ([]ir.Row, error) {
	rows, err := q.QueryxContext(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []ir.Row
	for rows.Next() {
		cells, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		row := make(ir.Row, len(cols))
		for i, col := range cols {
			v, err := fromDriver(cells[i])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col, err)
			}
			row[i] = ir.P(col, v)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// fromDriver converts a go-sqlite3 cell into an ir.Value.
// TEXT can arrive as []byte and DATETIME columns as time.Time.
func fromDriver(cell any) (ir.Value, error) {
	switch v := cell.(type) {
	case []byte:
		return ir.Text(string(v)), nil
	case time.Time:
		return ir.Text(v.UTC().Format(time.RFC3339Nano)), nil
	}
	return ir.FromGo(cell)
}
