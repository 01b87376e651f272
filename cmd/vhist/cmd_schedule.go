package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/vhist/internal/config"
	"github.com/hazyhaar/vhist/internal/schedule"
)

func newScheduleCmd(g *globalOpts) *cobra.Command {
	var (
		user     string
		spec     string
		lookback time.Duration
		now      bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the batch on a cron schedule",
		Long: `Schedule runs the batch at every --cron activation with the history
filtered from --lookback before the activation time. The credentials file
is re-read on every run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			if spec != "" {
				cfg.Schedule.Cron = spec
			}
			if lookback > 0 {
				cfg.Schedule.Lookback = lookback
			}
			if _, err := config.LoadCredentials(cfg.Credentials, user); err != nil {
				return err
			}

			runner, l, err := newRunner(cfg, logger)
			if err != nil {
				return err
			}
			defer l.Close()

			job := func(ctx context.Context, start time.Time) error {
				creds, err := config.LoadCredentials(cfg.Credentials, user)
				if err != nil {
					return err
				}
				printOutcomes(cmd.OutOrStdout(), runner.RunAll(ctx, start, creds))
				return nil
			}
			s, err := schedule.New(cfg.Schedule.Cron, cfg.Schedule.Lookback, job, logger)
			if err != nil {
				return err
			}
			if now {
				_ = s.Trigger(cmd.Context())
			}
			return s.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "only run this account")
	cmd.Flags().StringVar(&spec, "cron", "", `cron spec, e.g. "0 3 * * *" or "@daily" (overrides config)`)
	cmd.Flags().DurationVar(&lookback, "lookback", 0, "history window before each activation (overrides config)")
	cmd.Flags().BoolVar(&now, "now", false, "also run once immediately")
	return cmd
}
