package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List journaled runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeJournal, err := a.openJournal()
			if err != nil {
				return err
			}
			defer closeJournal()

			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTARTED\tCALLS\tUNMATCHED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", r.ID, r.StartedAt.Local().Format(time.DateTime), r.Entries, r.Unmatched)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}
