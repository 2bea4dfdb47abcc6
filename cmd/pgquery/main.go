// Command pgquery compiles CUE query definitions to PostgreSQL statements.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/pgquery/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pgquery: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
