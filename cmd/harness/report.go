package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"yogastudio/internal/adapters/email"
	"yogastudio/internal/application/orchestrators"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		runID string
		out   string
		to    []string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render or email the report of a journaled run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				return errors.New("--run is required")
			}
			store, closeJournal, err := a.openJournal()
			if err != nil {
				return err
			}
			defer closeJournal()

			if len(to) > 0 {
				res, err := orchestrators.ExecuteSendReport(cmd.Context(),
					orchestrators.SendReportInput{RunID: runID, To: to},
					orchestrators.SendReportDeps{
						Journal:     store,
						EmailSender: email.NewSender(a.cfg.ResendKey, a.cfg.ReportFrom),
						FromAddress: a.cfg.ReportFrom,
					})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent report %s (%s)\n", runID, res.MessageID)
				return nil
			}

			rep, err := orchestrators.ExecuteRenderReport(cmd.Context(),
				orchestrators.RenderReportInput{RunID: runID},
				orchestrators.RenderReportDeps{Journal: store})
			if err != nil {
				return err
			}
			if out == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), rep.Markdown)
				return err
			}
			body := rep.Markdown
			if strings.EqualFold(filepath.Ext(out), ".html") {
				body = rep.HTML
			}
			if err := os.WriteFile(out, []byte(body), 0o644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id to report on")
	cmd.Flags().StringVar(&out, "out", "", "write to FILE (.html renders HTML, anything else markdown)")
	cmd.Flags().StringSliceVar(&to, "email", nil, "email the report to ADDR instead")
	return cmd
}
