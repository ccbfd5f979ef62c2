package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"yogastudio/internal/application/scenario"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE",
		Short: "Validate a scenario file without serving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			rules, err := sc.Build()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d rules\n", sc.Name, len(rules))
			for _, ac := range sc.Aliases() {
				name := "(unaliased)"
				if ac.Alias != "" {
					name = "@" + ac.Alias
				}
				fmt.Fprintf(out, "  %s\t%d\n", name, ac.Rules)
			}
			return nil
		},
	}
}
