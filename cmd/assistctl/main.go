// Command assistctl is the operator CLI for the AI gateway. It talks to the
// configured vendor directly, using the same configuration as the server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "assistctl",
		Short:         "Operator CLI for the blog AI gateway",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newCompleteCmd(),
		newSummarizeCmd(),
		newModelsCmd(),
		newHistoryCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
