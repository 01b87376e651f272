package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/vhist/history"
	"github.com/hazyhaar/vhist/internal/browser"
	"github.com/hazyhaar/vhist/internal/browser/browsertest"
	"github.com/hazyhaar/vhist/internal/config"
)

type scriptedOperator struct {
	t       *testing.T
	answers []string
	prompts []string
	notes   []string
}

func (o *scriptedOperator) Prompt(_ context.Context, label string) (string, error) {
	o.prompts = append(o.prompts, label)
	if len(o.answers) == 0 {
		o.t.Fatalf("unexpected prompt %q", label)
	}
	a := o.answers[0]
	o.answers = o.answers[1:]
	return a, nil
}

func (o *scriptedOperator) Notify(_ context.Context, msg string) { o.notes = append(o.notes, msg) }

type memPersist struct {
	cookies map[string][]browser.Cookie
	captcha []byte
}

func (m *memPersist) SaveCookies(username string, c []browser.Cookie) error {
	if m.cookies == nil {
		m.cookies = map[string][]browser.Cookie{}
	}
	m.cookies[username] = c
	return nil
}

func (m *memPersist) SaveCaptcha(_ string, image []byte) (string, error) {
	m.captcha = image
	return "/out/alice/captcha.jpg", nil
}

type loginForm struct {
	page     *browsertest.Page
	user     *browsertest.Node
	pass     *browsertest.Node
	signIn   *browsertest.Node
	selector config.SelectorConfig
}

func newLoginForm() *loginForm {
	sel := config.Default().Selectors
	f := &loginForm{
		page:     browsertest.NewPage(),
		user:     browsertest.NewNode(""),
		pass:     browsertest.NewNode(""),
		signIn:   browsertest.NewNode("Sign in"),
		selector: sel,
	}
	f.page.Root.
		Add(sel.Username, f.user).
		Add(sel.Password, f.pass).
		Add(sel.SignIn, f.signIn)
	f.page.SetCookies([]browser.Cookie{{Name: "session-id", Value: "s1"}, {Name: "ubid-main", Value: "u1"}})
	return f
}

func newBootstrapper(op Operator, images ImageFetcher, p Persister) *Bootstrapper {
	cfg := config.Default()
	cfg.Timing.KeyDelay = 0
	cfg.Timing.ApprovalPoll = time.Millisecond
	return New(cfg, op, images, p, nil)
}

var alice = history.Credential{Username: "alice", Password: "hunter2"}

func TestAuthenticate_NoChallenges(t *testing.T) {
	f := newLoginForm()
	op := &scriptedOperator{t: t}
	p := &memPersist{}
	b := newBootstrapper(op, nil, p)

	sess, err := b.Authenticate(context.Background(), f.page, alice)
	require.NoError(t, err)

	assert.Empty(t, op.prompts, "no operator input expected")
	assert.Empty(t, op.notes)
	assert.Equal(t, []string{b.LoginURL}, f.page.Navigations)
	assert.Equal(t, "alice", f.user.Value())
	assert.Equal(t, "hunter2", f.pass.Value())
	assert.Len(t, f.pass.Inputs(), len("hunter2"), "password typed one key at a time")
	assert.Equal(t, 1, f.signIn.Clicks)

	assert.Equal(t, "browsertest/1.0", sess.UserAgent)
	assert.Equal(t, map[string]string{"session-id": "s1", "ubid-main": "u1"}, sess.CookieMap())
	assert.Equal(t, sess.Cookies, p.cookies["alice"], "cookies persisted at login")
}

func TestAuthenticate_UsernameRemembered(t *testing.T) {
	f := newLoginForm()
	f.page.Root.Remove(f.selector.Username)
	b := newBootstrapper(&scriptedOperator{t: t}, nil, &memPersist{})

	_, err := b.Authenticate(context.Background(), f.page, alice)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", f.pass.Value())
}

func TestAuthenticate_MissingPasswordFails(t *testing.T) {
	f := newLoginForm()
	f.page.Root.Remove(f.selector.Password)
	b := newBootstrapper(&scriptedOperator{t: t}, nil, &memPersist{})

	_, err := b.Authenticate(context.Background(), f.page, alice)
	require.Error(t, err)
	assert.True(t, browser.IsNotFound(err))
}

func TestAuthenticate_TwoFactor(t *testing.T) {
	f := newLoginForm()
	sms := browsertest.NewNode("")
	send := browsertest.NewNode("Send code")
	code := browsertest.NewNode("")
	submit := browsertest.NewNode("Submit")
	f.page.Root.
		Add(f.selector.SMSOption, sms).
		Add(f.selector.SendCode, send).
		Add(f.selector.CodeInput, code).
		Add(f.selector.CodeSubmit, submit)

	op := &scriptedOperator{t: t, answers: []string{"123456"}}
	b := newBootstrapper(op, nil, &memPersist{})

	_, err := b.Authenticate(context.Background(), f.page, alice)
	require.NoError(t, err)

	assert.Len(t, op.prompts, 1)
	assert.Equal(t, 1, sms.Clicks)
	assert.Equal(t, 1, send.Clicks)
	assert.Equal(t, "123456", code.Value())
	assert.Equal(t, 1, submit.Clicks)
}

func TestAuthenticate_TwoFactorCodeFieldNeverAppears(t *testing.T) {
	f := newLoginForm()
	f.page.Root.
		Add(f.selector.SMSOption, browsertest.NewNode("")).
		Add(f.selector.SendCode, browsertest.NewNode(""))
	b := newBootstrapper(&scriptedOperator{t: t}, nil, &memPersist{})

	_, err := b.Authenticate(context.Background(), f.page, alice)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code field")
}

func TestAuthenticate_Captcha(t *testing.T) {
	f := newLoginForm()
	img := browsertest.NewNode("")
	img.Attrs["src"] = "https://images.example/captcha.jpg"
	guess := browsertest.NewNode("")
	f.page.Root.
		Add(f.selector.CaptchaImage, img).
		Add(f.selector.CaptchaGuess, guess)

	var fetched string
	images := ImageFetcherFunc(func(_ context.Context, url, ua string) ([]byte, error) {
		fetched = url
		assert.Equal(t, "browsertest/1.0", ua)
		return []byte{0xff, 0xd8, 0xff}, nil
	})
	op := &scriptedOperator{t: t, answers: []string{"XK4TP"}}
	p := &memPersist{}
	b := newBootstrapper(op, images, p)

	_, err := b.Authenticate(context.Background(), f.page, alice)
	require.NoError(t, err)

	assert.Equal(t, "https://images.example/captcha.jpg", fetched)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, p.captcha)
	require.Len(t, op.notes, 1)
	assert.Contains(t, op.notes[0], "/out/alice/captcha.jpg")

	// credentials were cleared and entered again
	assert.Equal(t, 1, f.pass.Cleared)
	assert.Equal(t, "hunter2", f.pass.Value())
	assert.Equal(t, "alice", f.user.Value())
	assert.Equal(t, "XK4TP", guess.Value())
	assert.Equal(t, 2, f.signIn.Clicks)
}

func TestAuthenticate_CaptchaFetchFails(t *testing.T) {
	f := newLoginForm()
	img := browsertest.NewNode("")
	img.Attrs["src"] = "https://images.example/captcha.jpg"
	f.page.Root.Add(f.selector.CaptchaImage, img)

	boom := errors.New("connection refused")
	images := ImageFetcherFunc(func(context.Context, string, string) ([]byte, error) { return nil, boom })
	b := newBootstrapper(&scriptedOperator{t: t}, images, &memPersist{})

	_, err := b.Authenticate(context.Background(), f.page, alice)
	require.ErrorIs(t, err, boom)
}

func TestAuthenticate_EmailApproval(t *testing.T) {
	f := newLoginForm()
	f.page.Root.Add(f.selector.ResendApproval, browsertest.NewNode("Resend"))
	f.page.OnURL = func(p *browsertest.Page) {
		if p.URLCalls == 4 {
			p.SetURL("https://www.amazon.com/alexa-privacy/apd/rvh")
		}
	}
	op := &scriptedOperator{t: t}
	b := newBootstrapper(op, nil, &memPersist{})

	_, err := b.Authenticate(context.Background(), f.page, alice)
	require.NoError(t, err)

	assert.Empty(t, op.prompts)
	assert.Len(t, op.notes, 1)
	assert.Equal(t, 4, f.page.URLCalls)
}

func TestAuthenticate_EmailApprovalCancelled(t *testing.T) {
	f := newLoginForm()
	f.page.Root.Add(f.selector.ResendApproval, browsertest.NewNode("Resend"))

	ctx, cancel := context.WithCancel(context.Background())
	f.page.OnURL = func(p *browsertest.Page) {
		if p.URLCalls == 3 {
			cancel()
		}
	}
	b := newBootstrapper(&scriptedOperator{t: t}, nil, &memPersist{})

	_, err := b.Authenticate(ctx, f.page, alice)
	require.ErrorIs(t, err, context.Canceled)
}
