package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/vhist/internal/ledger"
)

func newRunsCmd(g *globalOpts) *cobra.Command {
	var (
		user  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent account runs from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load()
			if err != nil {
				return err
			}
			l, err := ledger.Open(ledgerPath(cfg))
			if err != nil {
				return err
			}
			defer l.Close()

			runs, err := l.Recent(cmd.Context(), user, limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "only this account")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	return cmd
}

func printRuns(w io.Writer, runs []ledger.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tUSER\tDATE\tATTEMPT\tSTATUS\tNEW\tDOWNLOADED\tERROR")
	for _, r := range runs {
		status := r.Status
		if r.Mismatch {
			status += " (mismatch)"
		}
		if r.Truncated {
			status += " (truncated)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\t%d\t%s\n",
			time.UnixMilli(r.StartedAt).Format(time.DateTime),
			r.Username, r.RunDate, r.Attempt, status, r.New, r.Downloaded, r.Error)
	}
	tw.Flush()
}
