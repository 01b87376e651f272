// Package vhist retrieves voice-assistant history for a batch of accounts.
// Each account runs in its own browser: sign in, filter and reveal the
// activity log, extract entries, correlate audio identifiers, save the
// metadata and download the new recordings. One account's failure is
// recorded in its output directory and never stops the batch.
package vhist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/hazyhaar/vhist/history"
	"github.com/hazyhaar/vhist/internal/browser"
	"github.com/hazyhaar/vhist/internal/config"
	"github.com/hazyhaar/vhist/internal/correlate"
	"github.com/hazyhaar/vhist/internal/download"
	"github.com/hazyhaar/vhist/internal/extract"
	"github.com/hazyhaar/vhist/internal/ledger"
	"github.com/hazyhaar/vhist/internal/navigate"
	"github.com/hazyhaar/vhist/internal/session"
	"github.com/hazyhaar/vhist/internal/store"
	"github.com/hazyhaar/vhist/internal/useragent"
)

// Launcher opens a dedicated browser surface for one account.
type Launcher interface {
	Launch(ctx context.Context, userAgent string) (browser.Surface, error)
}

// Downloader fetches resolved recordings in order.
type Downloader interface {
	DownloadAll(ctx context.Context, ids []string, sink download.Sink) (int, error)
}

// Outcome is the result of one account run.
type Outcome struct {
	Username   string
	Path       string
	Attempt    int
	Entries    int
	New        int
	Resolved   int
	Downloaded int
	Mismatch   bool
	// Truncated is set when the list was still offering "show more" at
	// the reveal round limit.
	Truncated bool
	Err       error
	Stack     string
}

// OK reports whether the account completed.
func (o Outcome) OK() bool { return o.Err == nil }

// Runner sequences account runs.
type Runner struct {
	Config   *config.Config
	Store    *store.Store
	Launcher Launcher
	Operator session.Operator
	Images   session.ImageFetcher
	// Ledger is optional.
	Ledger    *ledger.Ledger
	UserAgent useragent.Picker
	// NewDownloader builds the fetcher for an authenticated session.
	NewDownloader func(sess *session.Session, logger *slog.Logger) (Downloader, error)
	Logger        *slog.Logger
	Now           func() time.Time
}

func (r *Runner) defaults() {
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.UserAgent == nil {
		r.UserAgent = useragent.FromConfig(r.Config.Browser.UserAgent)
	}
	if r.Images == nil {
		r.Images = download.NewImageClient()
	}
	if r.NewDownloader == nil {
		endpoint := r.Config.Site.AudioEndpoint
		r.NewDownloader = func(sess *session.Session, logger *slog.Logger) (Downloader, error) {
			f, err := download.New(endpoint, sess.CookieMap(),
				download.WithUserAgent(sess.UserAgent),
				download.WithLogger(logger))
			if err != nil {
				return nil, err
			}
			return f, nil
		}
	}
}

// RunAll processes accounts one after another with the history filtered
// from start. It returns one Outcome per account attempted; accounts left
// when ctx is cancelled are not attempted.
func (r *Runner) RunAll(ctx context.Context, start time.Time, creds []history.Credential) []Outcome {
	r.defaults()
	outcomes := make([]Outcome, 0, len(creds))
	for i, cred := range creds {
		if err := ctx.Err(); err != nil {
			r.Logger.Warn("vhist: batch interrupted", "remaining", len(creds)-i, "error", err)
			break
		}
		r.Logger.Info("vhist: account starting", "user", cred.Username, "index", i+1, "of", len(creds))
		outcomes = append(outcomes, r.runAccount(ctx, start, cred))
	}

	failed := 0
	for _, o := range outcomes {
		if !o.OK() {
			failed++
		}
	}
	r.Logger.Info("vhist: batch finished", "accounts", len(outcomes), "failed", failed)
	return outcomes
}

// runAccount owns the account's failure boundary: errors and panics become
// the Outcome and an errors.json in the recording directory.
func (r *Runner) runAccount(ctx context.Context, start time.Time, cred history.Credential) (out Outcome) {
	out.Username = cred.Username
	log := r.Logger.With("user", cred.Username)

	rp, err := r.Store.NewRecordingPath(cred.Username, r.Now())
	if err != nil {
		out.Err, out.Stack = err, StackOf(err)
		log.Error("vhist: no recording directory, account skipped", "error", err)
		return out
	}
	out.Path, out.Attempt = rp.Dir, rp.Attempt
	log = log.With("attempt", rp.Attempt)

	runID := r.beginLedger(ctx, rp, log)

	defer func() {
		if p := recover(); p != nil {
			out.Err = fmt.Errorf("vhist: panic: %v", p)
			out.Stack = string(debug.Stack())
		}
		if out.Err != nil {
			if out.Stack == "" {
				out.Stack = StackOf(out.Err)
			}
			if err := r.Store.SaveError(rp, history.NewErrorRecord(cred.Username, out.Err, out.Stack)); err != nil {
				log.Error("vhist: write error file", "error", err)
			}
			log.Error("vhist: account failed", "path", rp.Dir, "error", out.Err)
		} else {
			log.Info("vhist: account finished", "path", rp.Dir,
				"entries", out.Entries, "new", out.New, "downloaded", out.Downloaded)
		}
		r.finishLedger(runID, out, log)
	}()

	out.Err = r.process(ctx, start, cred, rp, &out, log)
	return out
}

func (r *Runner) process(ctx context.Context, start time.Time, cred history.Credential, rp store.RecordingPath, out *Outcome, log *slog.Logger) error {
	surface, err := r.Launcher.Launch(ctx, r.UserAgent())
	if err != nil {
		return fmt.Errorf("vhist: launch browser: %w", err)
	}
	defer func() {
		if err := surface.Close(); err != nil {
			log.Warn("vhist: close browser", "error", err)
		}
	}()

	boot := session.New(r.Config, r.Operator, r.Images, accountFiles{r.Store, rp}, log)
	sess, err := boot.Authenticate(ctx, surface, cred)
	if err != nil {
		return err
	}

	if err := navigate.New(r.Config, log).Prepare(ctx, surface, start); err != nil {
		if !errors.Is(err, navigate.ErrRevealLimit) {
			return err
		}
		out.Truncated = true
		log.Warn("vhist: history list may be incomplete", "error", err)
	}

	old, prevPath, err := r.Store.PreviousMetadata(rp)
	if err != nil {
		return err
	}
	log.Info("vhist: previous metadata", "path", prevPath, "entries", len(old))

	ex := extract.New(r.Config, log)
	els, err := ex.Entries(ctx, surface)
	if err != nil {
		return err
	}
	ext, err := ex.Extract(ctx, els, old, r.Config.DownloadDuplicates)
	if err != nil {
		return err
	}
	out.Entries, out.New = len(ext.Entries), len(ext.New)

	// Only expanded entries fire an audio request.
	marker := r.Config.Site.AudioMarker
	r.settle(ctx, surface, marker, len(ext.Expanded), log)
	res := correlate.Correlate(surface.NetworkLog(), ext.Expanded, ext.Entries, marker)
	if res.Mismatch {
		out.Mismatch = true
		log.Warn("correlate: audio event count mismatch, no audio this run", "want", res.Want, "got", res.Got)
	}
	out.Resolved = len(res.Resolved)

	if err := r.Store.SaveMetadata(rp, res.Entries); err != nil {
		return err
	}

	ids := make([]string, 0, len(res.Resolved))
	for _, idx := range res.Resolved {
		ids = append(ids, res.Entries[idx].AudioID)
	}
	if len(ids) == 0 {
		return nil
	}
	dl, err := r.NewDownloader(sess, log)
	if err != nil {
		return err
	}
	n, err := dl.DownloadAll(ctx, ids, func(n int, data []byte) error {
		_, err := r.Store.SaveArtifact(rp, n, data)
		return err
	})
	out.Downloaded = n
	return err
}

// settle waits, up to the configured bound, for the expansions' network
// events to reach want. It never re-triggers anything.
func (r *Runner) settle(ctx context.Context, s browser.Surface, marker string, want int, log *slog.Logger) {
	if want == 0 || correlate.Count(s.NetworkLog(), marker) >= want {
		return
	}
	deadline := time.NewTimer(r.Config.Timing.EventSettle)
	defer deadline.Stop()
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			log.Warn("vhist: audio events still missing after settle wait",
				"want", want, "got", correlate.Count(s.NetworkLog(), marker))
			return
		case <-tick.C:
			if correlate.Count(s.NetworkLog(), marker) >= want {
				return
			}
		}
	}
}

func (r *Runner) beginLedger(ctx context.Context, rp store.RecordingPath, log *slog.Logger) string {
	if r.Ledger == nil {
		return ""
	}
	id, err := r.Ledger.Begin(ctx, rp.Username, rp.Date, rp.Attempt)
	if err != nil {
		log.Warn("vhist: ledger begin", "error", err)
		return ""
	}
	return id
}

func (r *Runner) finishLedger(id string, out Outcome, log *slog.Logger) {
	if id == "" {
		return
	}
	// The account may have failed on cancellation; record it regardless.
	err := r.Ledger.Finish(context.Background(), id, ledger.Summary{
		Entries:    out.Entries,
		New:        out.New,
		Resolved:   out.Resolved,
		Downloaded: out.Downloaded,
		Mismatch:   out.Mismatch,
		Truncated:  out.Truncated,
		Err:        out.Err,
	})
	if err != nil {
		log.Warn("vhist: ledger finish", "error", err)
	}
}

// accountFiles persists login artifacts for one recording path.
type accountFiles struct {
	store *store.Store
	rp    store.RecordingPath
}

func (a accountFiles) SaveCookies(username string, cookies []browser.Cookie) error {
	return a.store.SaveCookies(username, cookies)
}

func (a accountFiles) SaveCaptcha(_ string, image []byte) (string, error) {
	return a.store.SaveCaptcha(a.rp, image)
}
