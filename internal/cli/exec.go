package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/pgquery/internal/compiler"
	"github.com/roach88/pgquery/internal/ir"
	"github.com/roach88/pgquery/internal/querysql"
	"github.com/roach88/pgquery/internal/store"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Database       string
	Attach         map[string]string // schema name -> database file
	AllowUnbounded bool
}

// ExecResult is the outcome of one executed query.
type ExecResult struct {
	Query        string      `json:"query"`
	SQL          string      `json:"sql"`
	Fingerprint  string      `json:"fingerprint"`
	Seq          int64       `json:"seq"`
	RowsAffected int64       `json:"rows_affected"`
	Columns      []string    `json:"columns,omitempty"`
	Rows         []ir.Object `json:"rows"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <queries-dir> <query>",
		Short: "Run one query against a SQLite sandbox",
		Long: `Compile one query and run it against a SQLite sandbox database.

The sandbox accepts the portable subset of the generated SQL: quoting,
WHERE, ORDER BY with NULLS placement, LIMIT/OFFSET, RETURNING and WITH.
PostgreSQL-only constructs (ILIKE, ARRAY, jsonb, TRUNCATE) fail at run
time. Every statement that commits is appended to the database's
statement log; see "pgquery log".

Schema-qualified tables need the schema attached:

  pgquery exec ./queries active_projects --db sandbox.db --attach public=public.db

Update and delete without filters are refused unless --allow-unbounded
is given.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringToStringVar(&opts.Attach, "attach", nil, "attach a database file as a schema (schema=path)")
	cmd.Flags().BoolVar(&opts.AllowUnbounded, "allow-unbounded", false, "run update/delete without filters")

	return cmd
}

func runExec(opts *ExecOptions, queriesDir, name string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd)

	loadResult, loadErrors := LoadQueries(queriesDir, LoadModeFailFast)
	if loadResult == nil || len(loadErrors) > 0 {
		code, message := firstLoadError(loadErrors)
		return outputCompileError(formatter, code, message, nil)
	}
	q, ok := loadResult.Find(name)
	if !ok {
		return outputCompileError(formatter, ErrCodeNoQuery, fmt.Sprintf("query %q not defined in %s", name, queriesDir), nil)
	}

	res, err := q.Compile(querysql.NewSQLCompiler(), querysql.DefaultOptions())
	if err != nil {
		return outputCompileErrors(formatter, []error{&queryError{query: q, err: err}})
	}
	formatter.VerboseLog("Compiled %s: %s", q.Name, res.SQL)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storeOpts := []store.Option{store.WithLogger(logger)}
	if opts.AllowUnbounded {
		storeOpts = append(storeOpts, store.AllowUnbounded())
	}
	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database, storeOpts...)
	if err != nil {
		return outputDatabaseError(formatter, "failed to open database", err)
	}
	defer st.Close()

	if err := attachAll(ctx, st, opts.Attach); err != nil {
		return outputDatabaseError(formatter, "failed to attach schema", err)
	}

	out, err := st.Exec(ctx, res)
	if err != nil {
		if errors.Is(err, store.ErrUnboundedMutation) {
			_ = formatter.Error(compiler.ErrUnboundedMutation, err.Error()+" (pass --allow-unbounded to run it)", nil)
			return NewExitError(ExitFailure, err.Error())
		}
		return outputDatabaseError(formatter, "statement failed", err)
	}

	result := ExecResult{
		Query:        q.Name,
		SQL:          res.SQL,
		Fingerprint:  res.Fingerprint,
		Seq:          out.Seq,
		RowsAffected: out.RowsAffected,
		Rows:         make([]ir.Object, len(out.Rows)),
	}
	if len(out.Rows) > 0 {
		result.Columns = out.Rows[0].Keys()
	}
	for i, row := range out.Rows {
		result.Rows[i] = row.Object()
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return outputExecText(formatter, result, res.ReturnsRows, out.Rows)
}

// attachAll attaches schemas in name order so failures are reproducible.
func attachAll(ctx context.Context, st *store.Store, attach map[string]string) error {
	names := make([]string, 0, len(attach))
	for name := range attach {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := st.AttachDatabase(ctx, name, attach[name]); err != nil {
			return err
		}
	}
	return nil
}

func outputDatabaseError(formatter *OutputFormatter, message string, err error) error {
	_ = formatter.Error(ErrCodeDatabase, fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(ExitCommandError, message, err)
}

func outputExecText(formatter *OutputFormatter, result ExecResult, returnsRows bool, rows []ir.Row) error {
	w := formatter.Writer
	fmt.Fprintf(w, "-- %s [%d]\n%s\n\n", result.Query, result.Seq, result.SQL)

	if !returnsRows {
		fmt.Fprintf(w, "%d row(s) affected\n", result.RowsAffected)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(result.Columns) > 0 {
		fmt.Fprintln(tw, strings.Join(result.Columns, "\t"))
	}
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, p := range row {
			cells[i] = cellText(p.Value)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "(%d row(s))\n", len(rows))
	return nil
}

// cellText renders a value for a text table: text unquoted, NULL spelled out.
func cellText(v ir.Value) string {
	switch val := v.(type) {
	case ir.Null:
		return "NULL"
	case ir.Text:
		return string(val)
	}
	data, err := ir.MarshalValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
