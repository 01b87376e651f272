// Package config handles vhist configuration: a YAML file, VHIST_*
// environment overrides and the credentials file.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/vhist/internal/browser"
)

// Config is the top-level vhist configuration.
type Config struct {
	Output             string `yaml:"output" env:"VHIST_OUTPUT"`
	Credentials        string `yaml:"credentials" env:"VHIST_CREDENTIALS"`
	Ledger             string `yaml:"ledger" env:"VHIST_LEDGER"`
	DownloadDuplicates bool   `yaml:"download_duplicates" env:"VHIST_DOWNLOAD_DUPLICATES"`
	// ClearMode is how date fields are emptied: select-all | clear | auto.
	ClearMode string `yaml:"clear_mode" env:"VHIST_CLEAR_MODE"`

	Browser   BrowserConfig  `yaml:"browser"`
	Site      SiteConfig     `yaml:"site"`
	Timing    TimingConfig   `yaml:"timing"`
	Selectors SelectorConfig `yaml:"selectors"`
	Schedule  ScheduleConfig `yaml:"schedule"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string        `yaml:"remote" env:"VHIST_BROWSER_REMOTE"`
	Stealth          string        `yaml:"stealth" env:"VHIST_BROWSER_STEALTH"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display" env:"VHIST_XVFB_DISPLAY"`
	UserAgent        string        `yaml:"user_agent" env:"VHIST_USER_AGENT"`
	ImplicitWait     time.Duration `yaml:"implicit_wait" env:"VHIST_IMPLICIT_WAIT"`
	ResourceBlocking []string      `yaml:"resource_blocking" env:"VHIST_RESOURCE_BLOCKING" envSeparator:","`
}

// SiteConfig holds the account site endpoints.
type SiteConfig struct {
	LoginURL   string `yaml:"login_url" env:"VHIST_LOGIN_URL"`
	HistoryURL string `yaml:"history_url" env:"VHIST_HISTORY_URL"`
	// AudioEndpoint is the fetch URL prefix; the escaped audio id is appended.
	AudioEndpoint string `yaml:"audio_endpoint" env:"VHIST_AUDIO_ENDPOINT"`
	// AudioMarker is the substring that identifies audio-array responses.
	AudioMarker string `yaml:"audio_marker" env:"VHIST_AUDIO_MARKER"`
}

// TimingConfig holds every bounded wait and pacing delay.
type TimingConfig struct {
	ElementTimeout  time.Duration `yaml:"element_timeout" env:"VHIST_ELEMENT_TIMEOUT"`
	KeyDelay        time.Duration `yaml:"key_delay" env:"VHIST_KEY_DELAY"`
	ApprovalPoll    time.Duration `yaml:"approval_poll" env:"VHIST_APPROVAL_POLL"`
	EventSettle     time.Duration `yaml:"event_settle" env:"VHIST_EVENT_SETTLE"`
	MaxRevealRounds int           `yaml:"max_reveal_rounds" env:"VHIST_MAX_REVEAL_ROUNDS"`
}

// SelectorConfig locates every control the pipeline touches. Values use
// the "kind:value" form of browser.ParseSelector.
type SelectorConfig struct {
	Username       browser.Selector `yaml:"username"`
	Password       browser.Selector `yaml:"password"`
	SignIn         browser.Selector `yaml:"sign_in"`
	SMSOption      browser.Selector `yaml:"sms_option"`
	SendCode       browser.Selector `yaml:"send_code"`
	CodeInput      browser.Selector `yaml:"code_input"`
	CodeSubmit     browser.Selector `yaml:"code_submit"`
	CaptchaImage   browser.Selector `yaml:"captcha_image"`
	CaptchaGuess   browser.Selector `yaml:"captcha_guess"`
	ResendApproval browser.Selector `yaml:"resend_approval"`

	FilterMenu  browser.Selector `yaml:"filter_menu"`
	DateRange   browser.Selector `yaml:"date_range"`
	CustomRange browser.Selector `yaml:"custom_range"`
	StartDate   browser.Selector `yaml:"start_date"`
	ApplyFilter browser.Selector `yaml:"apply_filter"`
	ShowMore    browser.Selector `yaml:"show_more"`

	Entry         browser.Selector `yaml:"entry"`
	Transcript    browser.Selector `yaml:"transcript"`
	NotUnderstood browser.Selector `yaml:"not_understood"`
	InfoField     browser.Selector `yaml:"info_field"`
	Expand        browser.Selector `yaml:"expand"`
}

// ScheduleConfig drives `vhist schedule`.
type ScheduleConfig struct {
	Cron     string        `yaml:"cron" env:"VHIST_SCHEDULE_CRON"`
	Lookback time.Duration `yaml:"lookback" env:"VHIST_SCHEDULE_LOOKBACK"`
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadFile reads a YAML configuration file and applies defaults and
// environment overrides. An empty path yields Default with overrides.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.ClearMode {
	case "select-all", "clear", "auto":
	default:
		return fmt.Errorf("config: clear_mode %q: want select-all, clear or auto", c.ClearMode)
	}
	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.stealth %q: want headless or headful", c.Browser.Stealth)
	}
	if c.Site.AudioMarker == "" {
		return fmt.Errorf("config: site.audio_marker must not be empty")
	}
	return nil
}

// UseSelectAll resolves ClearMode for the running platform. macOS Chrome
// ignores programmatic clears on the date picker, so auto selects there.
func (c *Config) UseSelectAll() bool {
	switch c.ClearMode {
	case "select-all":
		return true
	case "clear":
		return false
	}
	return runtime.GOOS == "darwin"
}

// BrowserSettings converts the browser section for browser.NewLauncher.
func (c *Config) BrowserSettings() browser.Config {
	return browser.Config{
		RemoteURL:        c.Browser.Remote,
		ResourceBlocking: c.Browser.ResourceBlocking,
		Stealth:          browser.ParseStealth(c.Browser.Stealth),
		XvfbDisplay:      c.Browser.XvfbDisplay,
		UserAgent:        c.Browser.UserAgent,
		ImplicitWait:     c.Browser.ImplicitWait,
	}
}

func (c *Config) applyDefaults() {
	if c.Output == "" {
		c.Output = "output"
	}
	if c.Credentials == "" {
		c.Credentials = "credentials.json"
	}
	if c.ClearMode == "" {
		c.ClearMode = "auto"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.ImplicitWait <= 0 {
		c.Browser.ImplicitWait = 2 * time.Second
	}
	if c.Site.LoginURL == "" {
		c.Site.LoginURL = "https://www.amazon.com/ap/signin?openid.return_to=https%3A%2F%2Fwww.amazon.com%2Falexa-privacy%2Fapd%2Frvh"
	}
	if c.Site.HistoryURL == "" {
		c.Site.HistoryURL = "https://www.amazon.com/alexa-privacy/apd/rvh"
	}
	if c.Site.AudioEndpoint == "" {
		c.Site.AudioEndpoint = "https://www.amazon.com/hz/mycd/playOption?id="
	}
	if c.Site.AudioMarker == "" {
		c.Site.AudioMarker = "audio-array?uid="
	}
	if c.Timing.ElementTimeout <= 0 {
		c.Timing.ElementTimeout = 10 * time.Second
	}
	if c.Timing.KeyDelay <= 0 {
		c.Timing.KeyDelay = 80 * time.Millisecond
	}
	if c.Timing.ApprovalPoll <= 0 {
		c.Timing.ApprovalPoll = 5 * time.Second
	}
	if c.Timing.EventSettle <= 0 {
		c.Timing.EventSettle = 10 * time.Second
	}
	if c.Timing.MaxRevealRounds <= 0 {
		c.Timing.MaxRevealRounds = 500
	}
	if c.Schedule.Lookback <= 0 {
		c.Schedule.Lookback = 30 * 24 * time.Hour
	}
	c.Selectors.applyDefaults()
}

func (s *SelectorConfig) applyDefaults() {
	set := func(dst *browser.Selector, def browser.Selector) {
		if dst.IsZero() {
			*dst = def
		}
	}
	set(&s.Username, browser.ID("ap_email"))
	set(&s.Password, browser.ID("ap_password"))
	set(&s.SignIn, browser.ID("signInSubmit"))
	set(&s.SMSOption, browser.XPath("//input[@name='otpDeviceContext' and contains(@value, 'SMS')]"))
	set(&s.SendCode, browser.ID("auth-send-code"))
	set(&s.CodeInput, browser.ID("auth-mfa-otpcode"))
	set(&s.CodeSubmit, browser.ID("auth-signin-button"))
	set(&s.CaptchaImage, browser.ID("auth-captcha-image"))
	set(&s.CaptchaGuess, browser.ID("auth-captcha-guess"))
	set(&s.ResendApproval, browser.Class("transaction-approval-word-break"))

	set(&s.FilterMenu, browser.ID("filters-selected-bar"))
	set(&s.DateRange, browser.XPath("//div[contains(@class, 'filter-by-date-menu')]"))
	set(&s.CustomRange, browser.ID("custom-date-range"))
	set(&s.StartDate, browser.ID("date-start"))
	set(&s.ApplyFilter, browser.XPath("//button[contains(@class, 'apd-filter-apply')]"))
	set(&s.ShowMore, browser.XPath("//button[contains(@class, 'full-width-message') or contains(., 'Show more')]"))

	set(&s.Entry, browser.Class("apd-content-box with-activity-page"))
	set(&s.Transcript, browser.Class("record-summary-preview customer-transcript"))
	set(&s.NotUnderstood, browser.Class("record-summary-preview replacement-text"))
	set(&s.InfoField, browser.Class("item"))
	set(&s.Expand, browser.Class("apd-expand-toggle-button"))
}
