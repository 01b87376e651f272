// Package extract reads history entries off the revealed activity list and
// separates already-known entries from new ones.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/vhist/history"
	"github.com/hazyhaar/vhist/internal/browser"
	"github.com/hazyhaar/vhist/internal/config"
)

// ErrLayoutChanged is returned when an entry lacks the fields the
// extractor depends on. The run cannot continue reliably.
var ErrLayoutChanged = errors.New("extract: page layout changed")

// infoFields is the number of positional sub-fields: date, time, device.
const infoFields = 3

// Extractor turns entry elements into metadata records.
type Extractor struct {
	Selectors config.SelectorConfig
	Logger    *slog.Logger
}

// New builds an Extractor from the loaded configuration.
func New(cfg *config.Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{Selectors: cfg.Selectors, Logger: logger}
}

// Entries returns the entry elements currently on the page, most recent
// first.
func (x *Extractor) Entries(ctx context.Context, s browser.Surface) ([]browser.Element, error) {
	els, err := s.FindAll(ctx, x.Selectors.Entry)
	if err != nil {
		return nil, fmt.Errorf("extract: list entries: %w", err)
	}
	return els, nil
}

// Result is one extraction pass over the page.
type Result struct {
	// Entries is the run's metadata in page order.
	Entries []history.Entry
	// New holds the ascending indices of entries that were not carried
	// forward from the previous run.
	New []int
	// Expanded is the subset of New whose expand control was clicked.
	// Only these fire an audio request, so they are what the correlator
	// aligns against the network log.
	Expanded []int
}

// Extract builds the run's metadata in page order. Entries whose div_id is
// in old are carried forward unchanged unless downloadDuplicates is set;
// every other entry is scraped and expanded. An entry without an expand
// control stays in New but not in Expanded and keeps an empty audio_id.
func (x *Extractor) Extract(ctx context.Context, entries []browser.Element, old []history.Entry, downloadDuplicates bool) (Result, error) {
	log := x.logger()
	known := history.Index(old)

	res := Result{Entries: make([]history.Entry, 0, len(entries))}
	for i, el := range entries {
		divID, _, err := el.Attribute(ctx, "id")
		if err != nil {
			return Result{}, fmt.Errorf("extract: entry %d id: %w", i, err)
		}

		if !downloadDuplicates && divID != "" {
			if prev, ok := known[divID]; ok {
				res.Entries = append(res.Entries, prev)
				continue
			}
		}

		e, err := x.read(ctx, i, el)
		if err != nil {
			return Result{}, err
		}
		e.DivID = divID
		res.Entries = append(res.Entries, e)
		idx := len(res.Entries) - 1
		res.New = append(res.New, idx)

		expanded, err := x.expand(ctx, i, el, log)
		if err != nil {
			return Result{}, err
		}
		if expanded {
			res.Expanded = append(res.Expanded, idx)
		}
	}

	log.Info("extract: entries read",
		"total", len(res.Entries), "new", len(res.New), "expanded", len(res.Expanded),
		"known", len(res.Entries)-len(res.New))
	return res, nil
}

func (x *Extractor) read(ctx context.Context, i int, el browser.Element) (history.Entry, error) {
	msg, err := x.message(ctx, el)
	if err != nil {
		return history.Entry{}, fmt.Errorf("extract: entry %d message: %w", i, err)
	}

	fields, err := el.FindAll(ctx, x.Selectors.InfoField)
	if err != nil {
		return history.Entry{}, fmt.Errorf("extract: entry %d fields: %w", i, err)
	}
	if len(fields) < infoFields {
		return history.Entry{}, fmt.Errorf("%w: entry %d has %d info fields, want %d", ErrLayoutChanged, i, len(fields), infoFields)
	}
	var vals [infoFields]string
	for k := range vals {
		t, err := fields[k].Text(ctx)
		if err != nil {
			return history.Entry{}, fmt.Errorf("extract: entry %d field %d: %w", i, k, err)
		}
		vals[k] = strings.TrimSpace(t)
	}

	return history.Entry{Message: msg, Date: vals[0], Time: vals[1], Device: vals[2]}, nil
}

// message prefers the transcript and falls back to the "not understood"
// container, then to the fixed placeholder.
func (x *Extractor) message(ctx context.Context, el browser.Element) (string, error) {
	for _, sel := range []browser.Selector{x.Selectors.Transcript, x.Selectors.NotUnderstood} {
		node, err := el.Find(ctx, sel)
		if browser.IsNotFound(err) {
			continue
		}
		if err != nil {
			return "", err
		}
		t, err := node.Text(ctx)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(t), nil
	}
	return history.NotUnderstood, nil
}

// expand clicks the entry's expand control. A missing control is reported
// as false, not as an error.
func (x *Extractor) expand(ctx context.Context, i int, el browser.Element, log *slog.Logger) (bool, error) {
	btn, err := el.Find(ctx, x.Selectors.Expand)
	if browser.IsNotFound(err) {
		log.Warn("extract: entry has no expand control, audio will be unavailable", "index", i)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("extract: entry %d expand: %w", i, err)
	}
	if err := btn.Click(ctx); err != nil {
		return false, fmt.Errorf("extract: entry %d expand: %w", i, err)
	}
	return true, nil
}

func (x *Extractor) logger() *slog.Logger {
	if x.Logger != nil {
		return x.Logger
	}
	return slog.Default()
}
