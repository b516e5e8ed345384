package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nulpointcorp/blog-ai-gateway/internal/catalog"
)

func newModelsCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List known models per provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load()
			if err != nil {
				return err
			}

			models := cat.Models(provider)
			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No models found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\tREGION\tCAPABILITIES")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					m.Provider, m.Name, m.MaxContextTokens, m.Region, strings.Join(m.Capabilities, ", "))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "only list models of this provider")
	return cmd
}
