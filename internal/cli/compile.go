package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/pgquery/internal/compiler"
	"github.com/roach88/pgquery/internal/queryir"
	"github.com/roach88/pgquery/internal/querysql"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output  string // output file path
	Query   string // compile only this query
	CTE     bool   // render statement bodies for use inside WITH
	NoFinal bool   // omit the ";" terminator
	Strict  bool   // reject filterless update/delete
}

// CompiledQuery is one query's compiled form.
type CompiledQuery struct {
	Name string `json:"name"`
	querysql.Result
}

// CompilationResult holds every compiled query.
type CompilationResult struct {
	Queries []CompiledQuery `json:"queries"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <queries-dir>",
		Short: "Compile query definitions to SQL",
		Long: `Compile the CUE query definitions in a directory to PostgreSQL.

Each definition is rendered with its action's SQL shape. Filterless
update and delete statements compile with a warning; --strict turns
them into errors.

Examples:
  pgquery compile ./queries
  pgquery compile ./queries --query active_projects --cte
  pgquery compile ./queries --format json -o compiled.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "compile a single query by name")
	cmd.Flags().BoolVar(&opts.CTE, "cte", false, "render bodies for use inside a WITH list")
	cmd.Flags().BoolVar(&opts.NoFinal, "no-final", false, "omit the statement terminator")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "reject update/delete without filters")

	return cmd
}

func runCompile(opts *CompileOptions, queriesDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd)

	loadResult, loadErrors := LoadQueries(queriesDir, LoadModeCollectAll)
	if loadResult == nil {
		code, message := firstLoadError(loadErrors)
		return outputCompileError(formatter, code, message, nil)
	}
	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, queriesDir)

	queries := loadResult.Queries
	if opts.Query != "" {
		q, ok := loadResult.Find(opts.Query)
		if !ok {
			return outputCompileError(formatter, ErrCodeNoQuery, fmt.Sprintf("query %q not defined in %s", opts.Query, queriesDir), nil)
		}
		queries = []compiler.Query{*q}
	}

	c := &querysql.SQLCompiler{RejectUnboundedMutations: opts.Strict}
	compileOpts := querysql.Options{CTE: opts.CTE, Final: !opts.NoFinal}

	result := &CompilationResult{Queries: make([]CompiledQuery, 0, len(queries))}
	var errs []error
	for i := range queries {
		q := &queries[i]
		formatter.VerboseLog("Compiling query: %s", q.Name)

		res, err := q.Compile(c, compileOpts)
		if err != nil {
			errs = append(errs, &queryError{query: q, err: err})
			continue
		}
		if res.UnboundedMutation {
			logger.Warn("unbounded mutation", "query", q.Name, "action", res.Action)
		}
		result.Queries = append(result.Queries, CompiledQuery{Name: q.Name, Result: *res})
	}
	if len(errs) > 0 {
		return outputCompileErrors(formatter, errs)
	}

	if opts.Output != "" {
		if err := writeCompiledToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// queryError attaches the failing query to a statement compile error.
type queryError struct {
	query *compiler.Query
	err   error
}

func (e *queryError) Error() string { return fmt.Sprintf("%s: %v", e.query.Name, e.err) }

func (e *queryError) Unwrap() error { return e.err }

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d query(s)\n\n", len(result.Queries))
	for _, q := range result.Queries {
		fmt.Fprintf(w, "-- %s (%s)\n", q.Name, q.Action)
		if q.UnboundedMutation {
			fmt.Fprintln(w, "-- warning: affects every row")
		}
		fmt.Fprintln(w, q.SQL)
		fmt.Fprintln(w)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote compiled queries to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		if err := formatter.Respond(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Compilation failed")
	fmt.Fprintln(w)

	for _, err := range errs {
		code, message := parseCompileError(err)
		if pos := errorPos(err); pos != "" {
			fmt.Fprintln(w, pos)
		}
		fmt.Fprintf(w, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var qe *queryError
	if errors.As(err, &qe) {
		var ce *queryir.CompileError
		if errors.As(qe.err, &ce) {
			return compiler.CodeForKind(ce.Kind), fmt.Sprintf("%s: %s: %s", qe.query.Name, ce.Field, ce.Message)
		}
		return compiler.ErrStatementUnclassified, qe.Error()
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// errorPos renders the CUE source position of err, if it has one.
func errorPos(err error) string {
	var loadErr *LoadError
	if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
	}
	var qe *queryError
	if errors.As(err, &qe) && qe.query.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d", qe.query.Pos.Filename(), qe.query.Pos.Line(), qe.query.Pos.Column())
	}
	return ""
}

// writeCompiledToFile writes the compilation result to a file as indented JSON.
func writeCompiledToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling queries: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
