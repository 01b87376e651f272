// Package navigate prepares the activity log for extraction: it applies a
// custom start-date filter and expands the list until every entry is
// rendered.
package navigate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/vhist/internal/browser"
	"github.com/hazyhaar/vhist/internal/config"
)

// ErrRevealLimit is returned when "show more" controls are still present
// after MaxRevealRounds. The list on the page is usable but may be
// missing older entries.
var ErrRevealLimit = errors.New("navigate: reveal round limit reached")

// DateLayout is the form the filter's start-date field accepts.
const DateLayout = "01/02/2006"

// Navigator drives the history page.
type Navigator struct {
	HistoryURL string
	Selectors  config.SelectorConfig
	// SelectAll empties the date field with a select-all keystroke instead
	// of a direct clear.
	SelectAll       bool
	MaxRevealRounds int
	Logger          *slog.Logger
}

// New builds a Navigator from the loaded configuration.
func New(cfg *config.Config, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{
		HistoryURL:      cfg.Site.HistoryURL,
		Selectors:       cfg.Selectors,
		SelectAll:       cfg.UseSelectAll(),
		MaxRevealRounds: cfg.Timing.MaxRevealRounds,
		Logger:          logger,
	}
}

// Prepare opens the history page, filters it from start and reveals every
// entry. A transient fault triggers exactly one fresh attempt; a second
// fault is returned.
func (n *Navigator) Prepare(ctx context.Context, s browser.Surface, start time.Time) error {
	err := n.prepareOnce(ctx, s, start)
	if err == nil || !browser.IsTransient(err) {
		return err
	}
	n.logger().Warn("navigate: transient fault, retrying once", "error", err)
	if err := n.prepareOnce(ctx, s, start); err != nil {
		return fmt.Errorf("navigate: after retry: %w", err)
	}
	return nil
}

func (n *Navigator) prepareOnce(ctx context.Context, s browser.Surface, start time.Time) error {
	if err := s.Navigate(ctx, n.HistoryURL); err != nil {
		return fmt.Errorf("navigate: open history: %w", err)
	}
	if err := n.SetDateFilter(ctx, s, start); err != nil {
		return err
	}
	return n.RevealAll(ctx, s)
}

// SetDateFilter opens the filter menu, picks a custom range and types the
// start date. The end of the range stays at today.
func (n *Navigator) SetDateFilter(ctx context.Context, s browser.Surface, start time.Time) error {
	steps := []struct {
		name string
		sel  browser.Selector
	}{
		{"filter menu", n.Selectors.FilterMenu},
		{"date range", n.Selectors.DateRange},
		{"custom range", n.Selectors.CustomRange},
	}
	for _, st := range steps {
		if err := click(ctx, s, st.sel); err != nil {
			return fmt.Errorf("navigate: %s: %w", st.name, err)
		}
	}

	field, err := s.Find(ctx, n.Selectors.StartDate)
	if err != nil {
		return fmt.Errorf("navigate: start date field: %w", err)
	}
	if n.SelectAll {
		err = field.SelectAll(ctx)
	} else {
		err = field.Clear(ctx)
	}
	if err != nil {
		return fmt.Errorf("navigate: empty start date: %w", err)
	}
	value := start.Format(DateLayout)
	if err := field.Input(ctx, value); err != nil {
		return fmt.Errorf("navigate: type start date: %w", err)
	}
	if err := click(ctx, s, n.Selectors.ApplyFilter); err != nil {
		return fmt.Errorf("navigate: apply filter: %w", err)
	}
	n.logger().Info("navigate: date filter applied", "start", value)
	return nil
}

// RevealAll clicks every "show more" control until none is left. A control
// that never goes away is stopped by the round limit, reported as
// ErrRevealLimit.
func (n *Navigator) RevealAll(ctx context.Context, s browser.Surface) error {
	clicks := 0
	for round := 0; ; round++ {
		if n.MaxRevealRounds > 0 && round >= n.MaxRevealRounds {
			return fmt.Errorf("%w: %d rounds, %d clicks", ErrRevealLimit, round, clicks)
		}
		if _, err := s.Find(ctx, n.Selectors.ShowMore); err != nil {
			if browser.IsNotFound(err) {
				break
			}
			return fmt.Errorf("navigate: show more: %w", err)
		}
		buttons, err := s.FindAll(ctx, n.Selectors.ShowMore)
		if err != nil {
			return fmt.Errorf("navigate: show more: %w", err)
		}
		for _, b := range buttons {
			if err := b.Click(ctx); err != nil {
				return fmt.Errorf("navigate: click show more: %w", err)
			}
			clicks++
		}
	}
	n.logger().Info("navigate: list fully revealed", "clicks", clicks)
	return nil
}

func (n *Navigator) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

func click(ctx context.Context, s browser.Surface, sel browser.Selector) error {
	el, err := s.Find(ctx, sel)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}
