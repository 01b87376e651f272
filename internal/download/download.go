// Package download fetches recordings with the authenticated session's
// cookies and user agent. Requests are sequential and never retried.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/hazyhaar/vhist/guard"
)

// Fetcher performs authenticated GETs against the audio endpoint.
type Fetcher struct {
	client   *http.Client
	endpoint string
	ua       string
	maxBytes int64
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the underlying HTTP client. Its cookie jar is replaced
// by the session jar.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.ua = ua }
}

// WithMaxBytes caps a single response body.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New returns a Fetcher for endpoint whose jar holds cookies. The audio id
// is appended, escaped, to endpoint.
func New(endpoint string, cookies map[string]string, opts ...Option) (*Fetcher, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("download: endpoint: %w", err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("download: cookie jar: %w", err)
	}
	jar.SetCookies(u, httpCookies(cookies))

	f := &Fetcher{
		client:   &http.Client{Timeout: 60 * time.Second},
		endpoint: endpoint,
		maxBytes: guard.MaxArtifactBytes,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	c := *f.client
	c.Jar = jar
	f.client = &c
	return f, nil
}

func httpCookies(m map[string]string) []*http.Cookie {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		out = append(out, &http.Cookie{Name: name, Value: m[name]})
	}
	return out
}

// URL returns the fetch URL for audioID.
func (f *Fetcher) URL(audioID string) string {
	return f.endpoint + url.QueryEscape(audioID)
}

// Fetch downloads one recording.
func (f *Fetcher) Fetch(ctx context.Context, audioID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(audioID), nil)
	if err != nil {
		return nil, fmt.Errorf("download: new request: %w", err)
	}
	if f.ua != "" {
		req.Header.Set("User-Agent", f.ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %s: %w", audioID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download: %s: http %d", audioID, resp.StatusCode)
	}
	body, err := guard.LimitedReadAll(resp.Body, f.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("download: %s: read body: %w", audioID, err)
	}

	f.logger.Debug("download: fetched", "audio_id", audioID, "size", len(body))
	return body, nil
}

// Sink receives the n-th downloaded recording.
type Sink func(n int, data []byte) error

// DownloadAll fetches ids in order and hands each body to sink. The first
// failure stops the batch; the count of stored recordings is returned
// with it.
func (f *Fetcher) DownloadAll(ctx context.Context, ids []string, sink Sink) (int, error) {
	for n, id := range ids {
		data, err := f.Fetch(ctx, id)
		if err != nil {
			return n, err
		}
		if err := sink(n, data); err != nil {
			return n, fmt.Errorf("download: store %d: %w", n, err)
		}
		f.logger.Info("download: recording saved", "index", n, "of", len(ids))
	}
	return len(ids), nil
}
