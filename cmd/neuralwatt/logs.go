package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/logstore"
)

type logsCommander struct {
	app *app

	limit  int
	total  bool
	asJSON bool
}

func newLogsCmd(a *app) *cobra.Command {
	c := &logsCommander{app: a}

	cmd := &cobra.Command{
		Use:   "logs [id]",
		Short: "Show logged requests and accumulated energy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := logstore.Open(a.v.GetString(keyLogDB))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			switch {
			case len(args) == 1:
				return c.show(cmd, store, args[0])
			case c.total:
				return c.showTotal(cmd, store)
			default:
				return c.list(cmd, store)
			}
		},
	}

	cmd.Flags().IntVarP(&c.limit, "count", "n", 10, "Number of records to show (0 for all)")
	cmd.Flags().BoolVar(&c.total, "total", false, "Show accumulated energy across all records")
	cmd.Flags().BoolVar(&c.asJSON, "json", false, "Print records as JSON")

	return cmd
}

func (c *logsCommander) list(cmd *cobra.Command, store *logstore.Store) error {
	records, err := store.List(cmd.Context(), c.limit)
	if err != nil {
		return err
	}
	if c.asJSON {
		return writeJSON(cmd, records)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTIME\tMODEL\tJOULES\tPROMPT")
	for _, r := range records {
		joules := "-"
		if v, ok := r.Joules(); ok {
			joules = fmt.Sprintf("%.4f", v)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Time.Format("2006-01-02 15:04:05"), r.Model, joules, truncate(r.Prompt, 40))
	}
	return tw.Flush()
}

func (c *logsCommander) show(cmd *cobra.Command, store *logstore.Store, id string) error {
	rec, err := store.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(cmd, rec)
}

func (c *logsCommander) showTotal(cmd *cobra.Command, store *logstore.Store) error {
	total, err := store.TotalEnergy(cmd.Context())
	if err != nil {
		return err
	}
	if c.asJSON {
		return writeJSON(cmd, total)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d requests, %d with energy data, %.4f J (%.3g kWh)\n",
		total.Requests, total.Measured, total.Joules, total.Joules/3.6e6)
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
