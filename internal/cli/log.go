package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/pgquery/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database    string
	Fingerprint string // optional - only this statement
	Action      string // optional - only this action
}

// LogResult holds the statement log output.
type LogResult struct {
	Entries []store.LogEntry `json:"entries"`
	Stats   LogStats         `json:"stats"`
}

// LogStats holds summary statistics for the log.
type LogStats struct {
	Statements   int            `json:"statements"`
	RowsAffected int64          `json:"rows_affected"`
	RowsReturned int64          `json:"rows_returned"`
	Unbounded    int            `json:"unbounded"`
	ByAction     map[string]int `json:"by_action"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show statements executed in a sandbox database",
		Long: `Show the statement log of a sandbox database, in execution order.

Every statement run by "pgquery exec" that committed is listed with its
sequence number, action, row counts and fingerprint. The fingerprint
identifies the statement's content, so --fingerprint shows every run of
one query.

Examples:
  pgquery log --db sandbox.db
  pgquery log --db sandbox.db --action delete
  pgquery log --db sandbox.db --fingerprint 3f9a... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Fingerprint, "fingerprint", "", "only statements with this fingerprint")
	cmd.Flags().StringVar(&opts.Action, "action", "", "only statements with this action")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := context.Background()

	st, err := store.Open(opts.Database, store.WithLogger(opts.logger(cmd)))
	if err != nil {
		return outputDatabaseError(formatter, "failed to open database", err)
	}
	defer st.Close()

	var entries []store.LogEntry
	if opts.Fingerprint != "" {
		entries, err = st.HistoryFor(ctx, opts.Fingerprint)
	} else {
		entries, err = st.History(ctx)
	}
	if err != nil {
		return outputDatabaseError(formatter, "failed to read statement log", err)
	}

	result := buildLogResult(entries, opts.Action)

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	outputLogText(formatter.Writer, result, opts.Verbose)
	return nil
}

// buildLogResult filters entries by action and summarizes them.
func buildLogResult(entries []store.LogEntry, action string) LogResult {
	result := LogResult{
		Entries: []store.LogEntry{},
		Stats:   LogStats{ByAction: map[string]int{}},
	}
	for _, e := range entries {
		if action != "" && e.Action != action {
			continue
		}
		result.Entries = append(result.Entries, e)
		result.Stats.Statements++
		result.Stats.RowsAffected += e.RowsAffected
		result.Stats.RowsReturned += e.RowCount
		result.Stats.ByAction[e.Action]++
		if e.Unbounded {
			result.Stats.Unbounded++
		}
	}
	return result
}

// outputLogText outputs the statement log as text.
func outputLogText(w io.Writer, result LogResult, verbose bool) {
	fmt.Fprintln(w, "=== Statements ===")
	if len(result.Entries) == 0 {
		fmt.Fprintln(w, "  (no statements)")
	}
	for _, e := range result.Entries {
		flag := ""
		if e.Unbounded {
			flag = " UNBOUNDED"
		}
		fmt.Fprintf(w, "  [%d] %s %s%s\n", e.Seq, e.Action, truncateID(e.Fingerprint), flag)
		fmt.Fprintf(w, "       %s\n", e.SQL)
		if verbose {
			fmt.Fprintf(w, "       affected=%d returned=%d sql_hash=%s\n", e.RowsAffected, e.RowCount, truncateID(e.SQLHash))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Statements:    %d\n", result.Stats.Statements)
	fmt.Fprintf(w, "  Rows affected: %d\n", result.Stats.RowsAffected)
	fmt.Fprintf(w, "  Rows returned: %d\n", result.Stats.RowsReturned)
	fmt.Fprintf(w, "  Unbounded:     %d\n", result.Stats.Unbounded)
}

// truncateID truncates a long hash for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
