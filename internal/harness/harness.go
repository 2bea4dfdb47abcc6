package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pgquery/internal/compiler"
	"github.com/roach88/pgquery/internal/queryir"
	"github.com/roach88/pgquery/internal/querysql"
	"github.com/roach88/pgquery/internal/store"
)

// Harness is the scenario execution engine.
// One Harness serves one scenario run.
type Harness struct {
	store    *store.Store
	compiler *querysql.SQLCompiler
	cue      *cue.Context
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and attach schemas
// 2. Run setup statements
// 3. For each case: read the definition, compile, check, optionally execute
// 4. Evaluate assertions against the sandbox
//
// An error is returned only when the scenario itself cannot run (bad setup,
// malformed query definition); mismatched expectations are reported in
// Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with statement logging sent to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	opts := []store.Option{store.WithLogger(logger)}
	if scenario.AllowUnbounded {
		opts = append(opts, store.AllowUnbounded())
	}
	st, err := store.Open(":memory:", opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:    st,
		compiler: &querysql.SQLCompiler{RejectUnboundedMutations: scenario.Strict},
		cue:      cuecontext.New(),
		logger:   logger,
	}

	ctx := context.Background()

	for _, schema := range scenario.Schemas {
		if err := st.AttachSchema(ctx, schema); err != nil {
			return nil, fmt.Errorf("failed to execute setup: %w", err)
		}
	}
	if err := st.Setup(ctx, scenario.Setup...); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, c := range scenario.Cases {
		ev, err := h.runCase(ctx, i, c, result)
		if err != nil {
			return nil, fmt.Errorf("case %q: %w", c.Name, err)
		}
		result.AddTrace(ev)
	}

	actx := &AssertionContext{
		Store:    st,
		Compiler: h.compiler,
		Ctx:      ctx,
	}
	for _, errMsg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// runCase compiles one case, records its trace event and reports every
// unmet expectation on result.
func (h *Harness) runCase(ctx context.Context, index int, c Case, result *Result) (TraceEvent, error) {
	ev := TraceEvent{Case: c.Name}

	q, err := h.readQuery(index, c)
	if err != nil {
		return ev, err
	}

	opts := querysql.Options{CTE: c.Options.CTE, Final: true}
	if c.Options.Final != nil {
		opts.Final = *c.Options.Final
	}

	res, err := q.Compile(h.compiler, opts)
	if err != nil {
		var ce *queryir.CompileError
		if !errors.As(err, &ce) {
			return ev, err
		}
		ev.Error = string(ce.Kind)
		ev.Field = ce.Field
	} else {
		ev.SQL = res.SQL
		ev.Unbounded = res.UnboundedMutation
	}

	h.logger.Debug("case compiled",
		"case", c.Name,
		"error", ev.Error,
		"sql", ev.SQL)

	if res != nil && c.Execute {
		ev.Executed = true
		out, err := h.store.Exec(ctx, res)
		if err != nil {
			ev.ExecError = err.Error()
		} else {
			ev.Seq = out.Seq
			ev.Rows = out.Rows
			ev.RowsAffected = out.RowsAffected
		}
	}

	checkExpect(c, ev, result)
	return ev, nil
}

// readQuery converts the case's YAML query definition to CUE and reads it
// with the same parser the CLI uses for .cue files.
func (h *Harness) readQuery(index int, c Case) (*compiler.Query, error) {
	data, err := yaml.Marshal(&c.Query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	file, err := cueyaml.Extract(fmt.Sprintf("cases[%d].query", index), data)
	if err != nil {
		return nil, fmt.Errorf("read query: %w", err)
	}
	v := h.cue.BuildFile(file)
	q, err := compiler.CompileQuery(v)
	if err != nil {
		return nil, err
	}
	q.Name = c.Name
	return q, nil
}

func checkExpect(c Case, ev TraceEvent, result *Result) {
	fail := func(format string, args ...any) {
		result.AddError(fmt.Sprintf("case %q: ", c.Name) + fmt.Sprintf(format, args...))
	}

	exp := c.Expect
	if exp == nil {
		if ev.Error != "" {
			fail("unexpected compile error %s at %s", ev.Error, ev.Field)
		}
		if ev.ExecError != "" {
			fail("unexpected exec error: %s", ev.ExecError)
		}
		return
	}

	switch {
	case exp.Error != "" && ev.Error == "":
		fail("expected compile error %s, got SQL %s", exp.Error, ev.SQL)
	case exp.Error != "" && ev.Error != exp.Error:
		fail("expected compile error %s, got %s", exp.Error, ev.Error)
	case exp.Error == "" && ev.Error != "":
		fail("unexpected compile error %s at %s", ev.Error, ev.Field)
	}
	if exp.Field != "" && ev.Field != exp.Field {
		fail("expected error field %q, got %q", exp.Field, ev.Field)
	}
	if exp.SQL != "" && ev.SQL != exp.SQL {
		fail("SQL mismatch\n  expected: %s\n  actual:   %s", exp.SQL, ev.SQL)
	}
	if exp.Unbounded != nil && ev.Unbounded != *exp.Unbounded {
		fail("expected unbounded=%t, got %t", *exp.Unbounded, ev.Unbounded)
	}

	switch {
	case exp.ExecError != "" && ev.ExecError == "":
		fail("expected exec error containing %q", exp.ExecError)
	case exp.ExecError != "" && !strings.Contains(ev.ExecError, exp.ExecError):
		fail("expected exec error containing %q, got %q", exp.ExecError, ev.ExecError)
	case exp.ExecError == "" && ev.ExecError != "":
		fail("unexpected exec error: %s", ev.ExecError)
	}
	if exp.RowsAffected != nil && ev.RowsAffected != *exp.RowsAffected {
		fail("expected %d rows affected, got %d", *exp.RowsAffected, ev.RowsAffected)
	}
	if exp.Rows != nil {
		if err := matchRows(exp.Rows, ev.Rows); err != nil {
			fail("%v", err)
		}
	}
}
