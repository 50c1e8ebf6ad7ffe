// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"

	"github.com/spf13/cobra"
)

// newPristineRootCmd returns a fresh root command so tests never share flag
// state with each other or with the package-level instance.
func newPristineRootCmd() *cobra.Command {
	return newRootCmd()
}

// runCommand executes a pristine root command with the given args and
// returns its combined output.
func runCommand(args ...string) (string, error) {
	root := newPristineRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}
