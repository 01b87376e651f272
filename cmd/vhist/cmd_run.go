package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/vhist"
	"github.com/hazyhaar/vhist/internal/config"
)

func newRunCmd(g *globalOpts) *cobra.Command {
	var (
		user       string
		date       string
		duplicates bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the batch once",
		Long: `Run signs in to every account (or --user), filters history from --date,
and downloads recordings not retrieved by an earlier run. Account failures
are written to that account's errors.json; the command still succeeds.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("download-duplicates") {
				cfg.DownloadDuplicates = duplicates
			}
			// Configuration faults surface before any browser starts.
			creds, err := config.LoadCredentials(cfg.Credentials, user)
			if err != nil {
				return err
			}
			start, err := config.ParseStartDate(date)
			if err != nil {
				return err
			}

			runner, l, err := newRunner(cfg, logger)
			if err != nil {
				return err
			}
			defer l.Close()

			outcomes := runner.RunAll(cmd.Context(), start, creds)
			printOutcomes(cmd.OutOrStdout(), outcomes)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "only run this account")
	cmd.Flags().StringVar(&date, "date", "", `history start, "YYYY/MM/DD HH:MM:SS"`)
	cmd.Flags().BoolVar(&duplicates, "download-duplicates", false, "download recordings already retrieved by an earlier run")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func printOutcomes(w io.Writer, outcomes []vhist.Outcome) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tATTEMPT\tENTRIES\tNEW\tDOWNLOADED\tSTATUS\tPATH")
	for _, o := range outcomes {
		status := "ok"
		switch {
		case o.Err != nil:
			status = "failed: " + o.Err.Error()
		case o.Mismatch:
			status = "ok (audio skipped: event mismatch)"
		}
		if o.Err == nil && o.Truncated {
			status += " (list truncated)"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			o.Username, o.Attempt, o.Entries, o.New, o.Downloaded, status, o.Path)
	}
	tw.Flush()
}
