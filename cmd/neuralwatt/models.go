package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List registered models and their aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := loadRegistry(a.v)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tUPSTREAM\tALIASES")
			for _, m := range registry.Models() {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.Name, strings.Join(m.Aliases, ", "))
			}
			return tw.Flush()
		},
	}
}
