// Command vhist retrieves voice-assistant history and recordings for the
// accounts in a credentials file.
//
// Usage:
//
//	vhist run --date "2024/04/01 00:00:00"            # every account
//	vhist run --user alice --date "2024/04/01 00:00:00"
//	vhist schedule --cron "0 3 * * *" --lookback 720h
//	vhist runs --user alice
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/vhist"
	"github.com/hazyhaar/vhist/internal/browser"
	"github.com/hazyhaar/vhist/internal/config"
	"github.com/hazyhaar/vhist/internal/ledger"
	"github.com/hazyhaar/vhist/internal/operator"
	"github.com/hazyhaar/vhist/internal/store"
)

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalOpts struct {
	configPath  string
	logLevel    string
	output      string
	credentials string
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}
	root := &cobra.Command{
		Use:   "vhist",
		Short: "Retrieve voice-assistant history and recordings",
		Long: `vhist signs in to each account, filters the voice history from a start
date, records every entry's metadata and downloads the recordings it has
not downloaded before. Each run writes to
{output}/{username}/{YYYY-MM-DD}/{attempt}/.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to vhist.yaml")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&opts.output, "output", "", "output root (overrides config)")
	pf.StringVar(&opts.credentials, "credentials", "", "credentials JSON file (overrides config)")

	root.AddCommand(
		newRunCmd(opts),
		newScheduleCmd(opts),
		newRunsCmd(opts),
	)
	return root
}

// load reads the configuration and applies the global flag overrides.
func (o *globalOpts) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.output != "" {
		cfg.Output = o.output
	}
	if o.credentials != "" {
		cfg.Credentials = o.credentials
	}
	return cfg, newLogger(o.logLevel), nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func ledgerPath(cfg *config.Config) string {
	if cfg.Ledger != "" {
		return cfg.Ledger
	}
	return filepath.Join(cfg.Output, "ledger.db")
}

// newRunner wires the production collaborators. The caller closes the
// returned ledger.
func newRunner(cfg *config.Config, logger *slog.Logger) (*vhist.Runner, *ledger.Ledger, error) {
	l, err := ledger.Open(ledgerPath(cfg))
	if err != nil {
		return nil, nil, err
	}
	settings := cfg.BrowserSettings()
	settings.Logger = logger

	return &vhist.Runner{
		Config:   cfg,
		Store:    store.NewOS(cfg.Output),
		Launcher: browser.NewLauncher(settings),
		Operator: operator.Stdio(logger),
		Ledger:   l,
		Logger:   logger,
	}, l, nil
}
