package querysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/pgquery/internal/ir"
	"github.com/roach88/pgquery/internal/queryir"
)

// CTE is one named statement of a WITH list.
type CTE struct {
	Name      string
	Statement queryir.Statement
}

// CompileWith renders
//
//	WITH "a" AS (<body a>), "b" AS (<body b>) <final body>
//
// Each CTE body and the final statement are compiled under the same policy
// as Compile. Names must be valid identifiers and unique within the list.
// opts applies to the whole document: with opts.CTE the composite is
// itself a body for further nesting.
//
// UnboundedMutation is set when any part is an unbounded mutation.
func (c *SQLCompiler) CompileWith(ctes []CTE, final queryir.Statement, opts Options) (*Result, error) {
	var b strings.Builder
	unbounded := final.Unbounded()
	seen := make(map[string]bool, len(ctes))
	parts := make(ir.List, 0, len(ctes))

	for i, cte := range ctes {
		field := fmt.Sprintf("with[%d]", i)
		name, err := QuoteIdent(cte.Name)
		if err != nil {
			return nil, queryir.NewCompileError(queryir.ErrKindInvalidIdentifier, field+".name", "%v", err)
		}
		if seen[cte.Name] {
			return nil, queryir.NewCompileError(queryir.ErrKindInvalidIdentifier, field+".name",
				"duplicate CTE name %q", cte.Name)
		}
		seen[cte.Name] = true

		body, err := c.compileBody(cte.Statement)
		if err != nil {
			return nil, withField(err, field)
		}
		fp, err := queryir.Fingerprint(cte.Statement)
		if err != nil {
			return nil, err
		}
		parts = append(parts, ir.Object{"name": ir.Text(cte.Name), "fingerprint": ir.Text(fp)})
		unbounded = unbounded || cte.Statement.Unbounded()

		if i == 0 {
			b.WriteString("WITH ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteString(" AS (")
		b.WriteString(body)
		b.WriteString(")")
	}

	body, err := c.compileBody(final)
	if err != nil {
		return nil, withField(err, "final")
	}
	if b.Len() > 0 {
		b.WriteString(" ")
	}
	b.WriteString(body)

	finalFP, err := queryir.Fingerprint(final)
	if err != nil {
		return nil, err
	}
	fp := finalFP
	if len(ctes) > 0 {
		fp, err = ir.StatementHash(ir.Object{"with": parts, "final": ir.Text(finalFP)})
		if err != nil {
			return nil, err
		}
	}

	return &Result{
		SQL:               opts.terminate(b.String()),
		Action:            final.Action,
		UnboundedMutation: unbounded,
		ReturnsRows:       returnsRows(final),
		Fingerprint:       fp,
	}, nil
}

// withField prefixes the Field of a CompileError with the part it came from.
func withField(err error, prefix string) error {
	var ce *queryir.CompileError
	if !errors.As(err, &ce) {
		return err
	}
	out := *ce
	if out.Field == "" {
		out.Field = prefix
	} else {
		out.Field = prefix + "." + out.Field
	}
	return &out
}
