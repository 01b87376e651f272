// CLAUDE:SUMMARY Launches or attaches Chrome for one account run, headless or headful on Xvfb, and releases it on Close.
// Package browser drives Chrome for one account run: launch (headless, or
// headful against an Xvfb display), stealth page setup, element lookup,
// cookie extraction and a captured network-event log.
package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// StealthLevel controls the browser automation mode.
type StealthLevel int

const (
	LevelHeadless StealthLevel = 1 // Rod headless + stealth
	LevelHeadful  StealthLevel = 2 // Rod headful + Xvfb
)

// ParseStealth maps the config string to a level. Unknown values are headless.
func ParseStealth(s string) StealthLevel {
	if s == "headful" {
		return LevelHeadful
	}
	return LevelHeadless
}

// Config configures one browser process.
type Config struct {
	// RemoteURL is the DevTools WebSocket of an already running Chrome.
	// Empty launches a local one.
	RemoteURL string

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	Stealth     StealthLevel
	XvfbDisplay string // headful only; default ":99"

	// UserAgent overrides the page user agent. Empty keeps Chrome's.
	UserAgent string

	// ImplicitWait bounds Surface.Find. Default: 2s.
	ImplicitWait time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Stealth == 0 {
		c.Stealth = LevelHeadless
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.ImplicitWait <= 0 {
		c.ImplicitWait = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome process of a single account run, and its
// virtual display when headful. It is started once and closed once.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	display *display
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome, or attaches to RemoteURL, and connects Rod to it.
// A second call returns the already connected browser.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return nil, errors.New("browser: manager is closed")
	case m.browser != nil:
		return m.browser, nil
	}

	controlURL, err := m.controlURL(ctx)
	if err != nil {
		m.release()
		return nil, err
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		m.release()
		return nil, wrap("connect", err)
	}
	m.browser = b
	return b, nil
}

// controlURL resolves the DevTools endpoint, starting Xvfb and Chrome
// when nothing remote is configured.
func (m *Manager) controlURL(ctx context.Context) (string, error) {
	log := m.cfg.Logger
	if m.cfg.RemoteURL != "" {
		log.Info("browser: connecting to remote", "url", m.cfg.RemoteURL)
		return m.cfg.RemoteURL, nil
	}

	l := launcher.New().Context(ctx).
		Set("disable-blink-features", "AutomationControlled")
	if m.cfg.Stealth == LevelHeadful {
		d, err := startDisplay(ctx, m.cfg.XvfbDisplay, log)
		if err != nil {
			return "", err
		}
		m.display = d
		l = l.Headless(false).Env("DISPLAY=" + d.name)
	} else {
		l = l.Headless(true)
	}

	u, err := l.Launch()
	if err != nil {
		return "", wrap("launch", err)
	}
	m.lnch = l
	log.Info("browser: launched local chrome", "stealth", m.cfg.Stealth, "pid", l.PID())
	return u, nil
}

// Browser returns the connected browser, or nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

// Close shuts down Chrome and Xvfb. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.release()
}

func (m *Manager) release() error {
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Kill()
		m.lnch.Cleanup()
		m.lnch = nil
	}
	if m.display != nil {
		m.display.stop()
		m.display = nil
	}
	return err
}
