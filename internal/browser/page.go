package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

var _ Surface = (*Page)(nil)

// Page is the go-rod Surface: a stealth tab with network capture enabled
// from the moment it opens.
type Page struct {
	page      *rod.Page
	userAgent string
	wait      time.Duration
	router    *rod.HijackRouter
	stopLog   context.CancelFunc

	mu     sync.Mutex
	events []NetworkEvent
}

// OpenPage creates a stealth tab on mgr's browser, applies the user agent
// and resource blocking, and starts recording network events.
func OpenPage(ctx context.Context, mgr *Manager) (*Page, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	cfg := mgr.cfg

	page, err := stealth.Page(b)
	if err != nil {
		return nil, wrap("create tab", err)
	}

	p := &Page{page: page, userAgent: cfg.UserAgent, wait: cfg.ImplicitWait}

	if cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
			page.Close()
			return nil, wrap("set user agent", err)
		}
	} else if res, err := page.Eval(`() => navigator.userAgent`); err == nil {
		p.userAgent = res.Value.Str()
	}

	if len(cfg.ResourceBlocking) > 0 {
		router, err := applyResourceBlocking(page, cfg.ResourceBlocking)
		if err != nil {
			cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
		p.router = router
	}

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		p.Close()
		return nil, wrap("enable network", err)
	}

	logCtx, cancel := context.WithCancel(context.Background())
	p.stopLog = cancel
	wait := page.Context(logCtx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			if e.Request != nil {
				p.record(MethodRequestWillBeSent, e.Request.URL)
			}
		},
		func(e *proto.NetworkResponseReceived) {
			if e.Response != nil {
				p.record(MethodResponseReceived, e.Response.URL)
			}
		},
	)
	go wait()

	return p, nil
}

func (p *Page) record(method, url string) {
	p.mu.Lock()
	p.events = append(p.events, NetworkEvent{Method: method, URL: url, At: time.Now()})
	p.mu.Unlock()
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return wrap("navigate "+url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return wrap("wait load "+url, err)
	}
	return nil
}

// URL returns the current page URL.
func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", wrap("info", err)
	}
	return info.URL, nil
}

func (p *Page) Find(ctx context.Context, sel Selector) (Element, error) {
	return p.WaitFor(ctx, sel, p.wait)
}

func (p *Page) WaitFor(ctx context.Context, sel Selector, timeout time.Duration) (Element, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page := p.page.Context(tctx)
	var el *rod.Element
	var err error
	if sel.By == ByXPath {
		el, err = page.ElementX(sel.Value)
	} else {
		el, err = page.Element(sel.cssSelector())
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, notFound(sel, err)
	}
	return &rodElement{el: el}, nil
}

func (p *Page) FindAll(ctx context.Context, sel Selector) ([]Element, error) {
	page := p.page.Context(ctx)
	var els rod.Elements
	var err error
	if sel.By == ByXPath {
		els, err = page.ElementsX(sel.Value)
	} else {
		els, err = page.Elements(sel.cssSelector())
	}
	if err != nil {
		return nil, wrap("find all "+sel.String(), err)
	}
	return wrapElements(els), nil
}

// Cookies returns the cookies visible to the current page.
func (p *Page) Cookies(ctx context.Context) ([]Cookie, error) {
	raw, err := p.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, wrap("cookies", err)
	}
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out, nil
}

func (p *Page) UserAgent() string { return p.userAgent }

func (p *Page) NetworkLog() []NetworkEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]NetworkEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Close stops event capture and request interception, then closes the tab.
func (p *Page) Close() error {
	if p.stopLog != nil {
		p.stopLog()
	}
	if p.router != nil {
		p.router.Stop()
	}
	if p.page != nil {
		return p.page.Close()
	}
	return nil
}
