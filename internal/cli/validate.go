package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pgquery/internal/compiler"
	"github.com/roach88/pgquery/internal/querysql"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool // report filterless update/delete as errors
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.ValidationError `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <queries-dir>",
		Short: "Check query definitions without printing SQL",
		Long: `Check every CUE query definition in a directory.

Unlike compile, validate does not stop at a failing query: it reports
every definition error, every statement error (invalid range, operator
value, payload, modifier) and advisory warnings such as duplicate sort
keys or unbounded mutations.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "report update/delete without filters as errors")

	return cmd
}

func runValidate(opts *ValidateOptions, queriesDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := LoadQueries(queriesDir, LoadModeCollectAll)
	if loadResult == nil {
		code, message := firstLoadError(loadErrors)
		return outputValidateError(formatter, code, message, nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, queriesDir)

	findings := ValidateQueries(loadResult, loadErrors, opts.Strict)
	for _, q := range loadResult.Queries {
		formatter.VerboseLog("Validated query: %s", q.Name)
	}

	var result ValidationResult
	for _, f := range findings {
		if f.Warning {
			result.Warnings = append(result.Warnings, f)
		} else {
			result.Errors = append(result.Errors, f)
		}
	}
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// ValidateQueries merges definition errors from loading with the
// compiler's findings for every definition that loaded.
func ValidateQueries(loadResult *LoadResult, loadErrors []error, strict bool) []compiler.ValidationError {
	var findings []compiler.ValidationError
	for _, err := range loadErrors {
		finding := compiler.ValidationError{
			Field:   "definition",
			Message: err.Error(),
			Code:    ErrCodeGeneric,
		}
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			finding.Message = loadErr.Message
			finding.Code = loadErr.Code
			if loadErr.Pos.IsValid() {
				finding.Line = loadErr.Pos.Line()
			}
		}
		findings = append(findings, finding)
	}

	c := &querysql.SQLCompiler{RejectUnboundedMutations: strict}
	return append(findings, compiler.Validate(loadResult.Queries, c)...)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	printFindings(formatter, result.Warnings, "warning")
	fmt.Fprintln(w, "✓ All queries valid")
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every finding of a failed validation.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		if err := formatter.Respond(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    result.Errors[0].Code,
				Message: result.Errors[0].Message,
			},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	printFindings(formatter, result.Errors, "error")
	printFindings(formatter, result.Warnings, "warning")

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}

func printFindings(formatter *OutputFormatter, findings []compiler.ValidationError, severity string) {
	w := formatter.Writer
	for _, f := range findings {
		where := f.Query
		if where == "" {
			where = f.Field
		} else if f.Field != "" {
			where += "." + f.Field
		}
		if f.Line > 0 {
			fmt.Fprintf(w, "line %d\n", f.Line)
		}
		fmt.Fprintf(w, "  %s %s: %s: %s\n\n", severity, f.Code, where, f.Message)
	}
}
