package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nulpointcorp/blog-ai-gateway/internal/config"
	"github.com/nulpointcorp/blog-ai-gateway/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent generations from the SQLite history store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.History.Backend != "sqlite" {
				return fmt.Errorf("history: only the sqlite backend can be listed, got %q", cfg.History.Backend)
			}

			ctx := context.Background()
			store, err := history.OpenSQLite(ctx, cfg.History.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No generations recorded.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tUSER\tPROVIDER\tMODEL\tTOKENS")
			for _, e := range entries {
				user := e.UserID
				if user == "" {
					user = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
					e.CreatedAt.Format("2006-01-02T15:04:05"), e.Type, user, e.Provider, e.Model, e.TokensUsed)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}
