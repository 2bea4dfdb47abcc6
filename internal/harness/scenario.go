package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pgquery/internal/queryir"
)

// Scenario defines a compiler conformance scenario.
// Each case compiles one query definition, compares the SQL or error with
// its expectations and optionally runs the SQL against a SQLite sandbox.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schemas are attached as empty databases before setup, so that
	// schema-qualified tables such as public.projects resolve.
	Schemas []string `yaml:"schemas,omitempty"`

	// Setup contains SQLite statements run verbatim before the cases
	// (CREATE TABLE, fixture INSERTs). They are not part of the trace.
	Setup []string `yaml:"setup,omitempty"`

	// Strict rejects update and delete definitions without filters at
	// compile time.
	Strict bool `yaml:"strict,omitempty"`

	// AllowUnbounded lets the sandbox execute unbounded mutations.
	AllowUnbounded bool `yaml:"allow_unbounded,omitempty"`

	// Cases run in order against one sandbox.
	Cases []Case `yaml:"cases"`

	// Assertions validate the sandbox after all cases ran.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Case is one query definition and what compiling it should produce.
type Case struct {
	Name string `yaml:"name"`

	// Query is a query definition in the same shape as a CUE query file
	// entry (table, action, filters, match, order, range, rows, set, ...).
	Query yaml.Node `yaml:"query"`

	Options CaseOptions `yaml:"options,omitempty"`

	// Execute runs the compiled SQL in the sandbox.
	Execute bool `yaml:"execute,omitempty"`

	Expect *CaseExpect `yaml:"expect,omitempty"`
}

// CaseOptions map to querysql.Options. Final defaults to true.
type CaseOptions struct {
	CTE   bool  `yaml:"cte,omitempty"`
	Final *bool `yaml:"final,omitempty"`
}

// CaseExpect lists the expected outcome. Unset fields are not checked.
type CaseExpect struct {
	// SQL is the exact expected statement text.
	SQL string `yaml:"sql,omitempty"`

	// Error is the expected CompileError kind, e.g. INVALID_RANGE.
	Error string `yaml:"error,omitempty"`

	// Field is the expected CompileError field, e.g. "filters[0].value".
	Field string `yaml:"field,omitempty"`

	Unbounded *bool `yaml:"unbounded,omitempty"`

	// Rows are the expected result rows of an executed case, in order.
	Rows []map[string]any `yaml:"rows,omitempty"`

	RowsAffected *int64 `yaml:"rows_affected,omitempty"`

	// ExecError is a substring of the expected sandbox error.
	ExecError string `yaml:"exec_error,omitempty"`
}

// Assertion validates the final sandbox state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_state": first row matching Where contains Expect
	// - "row_count": Count rows of Table match Where
	// - "log_count": Count executed statements, optionally of one Action
	Type string `yaml:"type"`

	// Table is a table name, optionally schema-qualified.
	Table string `yaml:"table,omitempty"`

	// Where holds equality criteria. All fields must match.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (subset match).
	Expect map[string]any `yaml:"expect,omitempty"`

	Count *int `yaml:"count,omitempty"`

	// Action restricts log_count to one statement action.
	Action string `yaml:"action,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState = "final_state"
	AssertRowCount   = "row_count"
	AssertLogCount   = "log_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files under dir, sorted by path.
// A non-empty filter is a glob matched against the file name without its
// extension.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}

	for i, schema := range s.Schemas {
		if err := queryir.CheckIdentifier(schema); err != nil {
			return fmt.Errorf("schemas[%d]: %w", i, err)
		}
	}

	seen := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("cases[%d]: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("cases[%d]: duplicate case name %q", i, c.Name)
		}
		seen[c.Name] = true

		if c.Query.Kind != yaml.MappingNode {
			return fmt.Errorf("cases[%d]: query is required and must be a mapping", i)
		}
		if c.Expect == nil {
			continue
		}
		if c.Expect.Error != "" && c.Expect.SQL != "" {
			return fmt.Errorf("cases[%d].expect: sql and error are mutually exclusive", i)
		}
		if c.Expect.Error != "" && c.Execute {
			return fmt.Errorf("cases[%d]: a case expecting a compile error cannot execute", i)
		}
		if !c.Execute && (c.Expect.Rows != nil || c.Expect.RowsAffected != nil || c.Expect.ExecError != "") {
			return fmt.Errorf("cases[%d].expect: rows, rows_affected and exec_error require execute", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertLogCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for log_count", index)
		}
		if a.Action != "" {
			if _, err := queryir.ParseAction(a.Action); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
