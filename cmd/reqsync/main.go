// Package main provides the entry point for the reqsync binary, which keeps
// ClearCompany requisitions and Paylocity headcount plans in step.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/atlet99/requisition-sync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
