package harness

import (
	"github.com/roach88/pgquery/internal/ir"
)

// TraceEvent records what one case produced.
type TraceEvent struct {
	Case string `json:"case"`

	// SQL is the compiled statement; empty when compilation failed.
	SQL string `json:"sql,omitempty"`

	// Error and Field describe a CompileError.
	Error string `json:"error,omitempty"`
	Field string `json:"field,omitempty"`

	Unbounded bool `json:"unbounded"`

	// Executed is set when the SQL ran in the sandbox.
	Executed     bool     `json:"executed"`
	Rows         []ir.Row `json:"rows,omitempty"`
	RowsAffected int64    `json:"rows_affected,omitempty"`
	ExecError    string   `json:"exec_error,omitempty"`

	// Seq is the statement log sequence number of an executed case.
	Seq int64 `json:"seq,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains one event per case, in case order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a case outcome.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
