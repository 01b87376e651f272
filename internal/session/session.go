// Package session drives the account login: credential entry followed by
// the optional two-factor, CAPTCHA and e-mail approval challenges. Each
// challenge is detected by the presence of its control; absence means the
// step does not apply.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/vhist/history"
	"github.com/hazyhaar/vhist/internal/browser"
	"github.com/hazyhaar/vhist/internal/config"
)

// Session is an authenticated browser context.
type Session struct {
	Cookies   []browser.Cookie
	UserAgent string
}

// CookieMap returns the name to value mapping used by authenticated fetches.
func (s *Session) CookieMap() map[string]string { return browser.CookieMap(s.Cookies) }

// Operator answers the blocking prompts of a login.
type Operator interface {
	Prompt(ctx context.Context, label string) (string, error)
	Notify(ctx context.Context, msg string)
}

// ImageFetcher retrieves the CAPTCHA image.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url, userAgent string) ([]byte, error)
}

// ImageFetcherFunc adapts a function to ImageFetcher.
type ImageFetcherFunc func(ctx context.Context, url, userAgent string) ([]byte, error)

func (f ImageFetcherFunc) FetchImage(ctx context.Context, url, userAgent string) ([]byte, error) {
	return f(ctx, url, userAgent)
}

// Persister stores what the login produces before any navigation can
// invalidate it.
type Persister interface {
	SaveCookies(username string, cookies []browser.Cookie) error
	// SaveCaptcha stores the image for the operator and returns where.
	SaveCaptcha(username string, image []byte) (string, error)
}

// Bootstrapper authenticates one account on a browser surface.
type Bootstrapper struct {
	LoginURL  string
	Selectors config.SelectorConfig

	ElementTimeout time.Duration
	KeyDelay       time.Duration
	ApprovalPoll   time.Duration

	Operator Operator
	Images   ImageFetcher
	Persist  Persister
	Logger   *slog.Logger
}

// New builds a Bootstrapper from the loaded configuration.
func New(cfg *config.Config, op Operator, images ImageFetcher, persist Persister, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		LoginURL:       cfg.Site.LoginURL,
		Selectors:      cfg.Selectors,
		ElementTimeout: cfg.Timing.ElementTimeout,
		KeyDelay:       cfg.Timing.KeyDelay,
		ApprovalPoll:   cfg.Timing.ApprovalPoll,
		Operator:       op,
		Images:         images,
		Persist:        persist,
		Logger:         logger,
	}
}

// Authenticate signs cred in on s and returns the resulting session. The
// cookies are persisted before returning. Missing challenge controls are
// not errors; only a failing surface or operator is.
func (b *Bootstrapper) Authenticate(ctx context.Context, s browser.Surface, cred history.Credential) (*Session, error) {
	log := b.logger().With("user", cred.Username)

	if err := s.Navigate(ctx, b.LoginURL); err != nil {
		return nil, fmt.Errorf("session: open login: %w", err)
	}
	if err := b.enterCredentials(ctx, s, cred, false); err != nil {
		return nil, err
	}
	if err := b.click(ctx, s, b.Selectors.SignIn); err != nil {
		return nil, fmt.Errorf("session: sign in: %w", err)
	}
	log.Info("session: credentials submitted")

	if err := b.twoFactor(ctx, s, log); err != nil {
		return nil, err
	}
	if err := b.captcha(ctx, s, cred, log); err != nil {
		return nil, err
	}
	if err := b.approval(ctx, s, log); err != nil {
		return nil, err
	}

	cookies, err := s.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: cookies: %w", err)
	}
	if b.Persist != nil {
		if err := b.Persist.SaveCookies(cred.Username, cookies); err != nil {
			return nil, fmt.Errorf("session: persist cookies: %w", err)
		}
	}
	log.Info("session: authenticated", "cookies", len(cookies))
	return &Session{Cookies: cookies, UserAgent: s.UserAgent()}, nil
}

// enterCredentials types the username (when its field is shown) and the
// password. After a CAPTCHA the form is reset, so reentry clears first.
func (b *Bootstrapper) enterCredentials(ctx context.Context, s browser.Surface, cred history.Credential, reentry bool) error {
	user, ok, err := b.present(ctx, s, b.Selectors.Username)
	if err != nil {
		return fmt.Errorf("session: username field: %w", err)
	}
	if ok {
		if err := b.typeSlowly(ctx, user, cred.Username, reentry); err != nil {
			return fmt.Errorf("session: type username: %w", err)
		}
	}

	pass, err := s.Find(ctx, b.Selectors.Password)
	if err != nil {
		return fmt.Errorf("session: password field: %w", err)
	}
	if err := b.typeSlowly(ctx, pass, cred.Password, reentry); err != nil {
		return fmt.Errorf("session: type password: %w", err)
	}
	return nil
}

func (b *Bootstrapper) twoFactor(ctx context.Context, s browser.Surface, log *slog.Logger) error {
	opt, ok, err := b.present(ctx, s, b.Selectors.SMSOption)
	if err != nil {
		return fmt.Errorf("session: 2fa probe: %w", err)
	}
	if !ok {
		return nil
	}
	log.Info("session: sms verification requested")

	if err := opt.Click(ctx); err != nil {
		return fmt.Errorf("session: select sms: %w", err)
	}
	if err := b.click(ctx, s, b.Selectors.SendCode); err != nil {
		return fmt.Errorf("session: send code: %w", err)
	}
	field, err := s.WaitFor(ctx, b.Selectors.CodeInput, b.ElementTimeout)
	if err != nil {
		return fmt.Errorf("session: code field: %w", err)
	}
	code, err := b.Operator.Prompt(ctx, "SMS verification code")
	if err != nil {
		return fmt.Errorf("session: read code: %w", err)
	}
	if err := b.typeSlowly(ctx, field, code, false); err != nil {
		return fmt.Errorf("session: type code: %w", err)
	}
	if err := b.click(ctx, s, b.Selectors.CodeSubmit); err != nil {
		return fmt.Errorf("session: submit code: %w", err)
	}
	return nil
}

func (b *Bootstrapper) captcha(ctx context.Context, s browser.Surface, cred history.Credential, log *slog.Logger) error {
	img, ok, err := b.present(ctx, s, b.Selectors.CaptchaImage)
	if err != nil {
		return fmt.Errorf("session: captcha probe: %w", err)
	}
	if !ok {
		return nil
	}
	log.Info("session: captcha requested")

	src, found, err := img.Attribute(ctx, "src")
	if err != nil {
		return fmt.Errorf("session: captcha src: %w", err)
	}
	if !found || src == "" {
		return errors.New("session: captcha image has no src")
	}
	data, err := b.Images.FetchImage(ctx, src, s.UserAgent())
	if err != nil {
		return fmt.Errorf("session: fetch captcha: %w", err)
	}
	where := src
	if b.Persist != nil {
		if where, err = b.Persist.SaveCaptcha(cred.Username, data); err != nil {
			return fmt.Errorf("session: save captcha: %w", err)
		}
	}
	b.Operator.Notify(ctx, "CAPTCHA image saved to "+where)

	if err := b.enterCredentials(ctx, s, cred, true); err != nil {
		return err
	}
	guess, err := b.Operator.Prompt(ctx, "CAPTCHA characters")
	if err != nil {
		return fmt.Errorf("session: read captcha guess: %w", err)
	}
	field, err := s.Find(ctx, b.Selectors.CaptchaGuess)
	if err != nil {
		return fmt.Errorf("session: captcha field: %w", err)
	}
	if err := b.typeSlowly(ctx, field, guess, false); err != nil {
		return fmt.Errorf("session: type captcha: %w", err)
	}
	if err := b.click(ctx, s, b.Selectors.SignIn); err != nil {
		return fmt.Errorf("session: submit captcha: %w", err)
	}
	return nil
}

// approval blocks until the page leaves the approval screen. The wait is
// unbounded; it ends on a URL change or ctx cancellation.
func (b *Bootstrapper) approval(ctx context.Context, s browser.Surface, log *slog.Logger) error {
	_, ok, err := b.present(ctx, s, b.Selectors.ResendApproval)
	if err != nil {
		return fmt.Errorf("session: approval probe: %w", err)
	}
	if !ok {
		return nil
	}

	start, err := s.URL(ctx)
	if err != nil {
		return fmt.Errorf("session: approval url: %w", err)
	}
	b.Operator.Notify(ctx, "Approve the sign-in from the e-mail sent to the account owner")
	log.Info("session: waiting for e-mail approval", "url", start)

	for polls := 1; ; polls++ {
		if err := sleep(ctx, b.ApprovalPoll); err != nil {
			return fmt.Errorf("session: approval wait: %w", err)
		}
		cur, err := s.URL(ctx)
		if err != nil {
			return fmt.Errorf("session: approval url: %w", err)
		}
		if cur != start {
			log.Info("session: sign-in approved", "polls", polls)
			return nil
		}
		log.Debug("session: approval pending", "polls", polls)
	}
}

// present looks sel up with the implicit wait. Not found is reported as
// ok=false; any other failure is returned.
func (b *Bootstrapper) present(ctx context.Context, s browser.Surface, sel browser.Selector) (browser.Element, bool, error) {
	el, err := s.Find(ctx, sel)
	if err != nil {
		if browser.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return el, true, nil
}

func (b *Bootstrapper) click(ctx context.Context, s browser.Surface, sel browser.Selector) error {
	el, err := s.Find(ctx, sel)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

// typeSlowly enters text one character at a time with KeyDelay between
// keystrokes.
func (b *Bootstrapper) typeSlowly(ctx context.Context, el browser.Element, text string, clear bool) error {
	if clear {
		if err := el.Clear(ctx); err != nil {
			return err
		}
	}
	for _, r := range text {
		if err := el.Input(ctx, string(r)); err != nil {
			return err
		}
		if err := sleep(ctx, b.KeyDelay); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bootstrapper) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
