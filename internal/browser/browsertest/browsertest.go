// Package browsertest provides an in-memory browser.Surface for tests:
// a tree of nodes addressed by selector, a mutable URL, cookies and a
// network-event log that click handlers can append to.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hazyhaar/vhist/internal/browser"
)

// Node is a fake DOM element. Children are grouped by the selector that
// finds them; a node may be reachable under several selectors.
type Node struct {
	Text  string
	Attrs map[string]string

	// OnClick runs after the click is counted.
	OnClick  func(p *Page, n *Node)
	ClickErr error

	Clicks      int
	Cleared     int
	SelectedAll int

	value      string
	replaceAll bool
	inputs     []string
	children   map[browser.Selector][]*Node
}

// NewNode returns a node with the given text.
func NewNode(text string) *Node {
	return &Node{Text: text, Attrs: map[string]string{}, children: map[browser.Selector][]*Node{}}
}

// Add attaches kids under sel and returns n for chaining.
func (n *Node) Add(sel browser.Selector, kids ...*Node) *Node {
	n.children[sel] = append(n.children[sel], kids...)
	return n
}

// Remove detaches every child under sel.
func (n *Node) Remove(sel browser.Selector) {
	delete(n.children, sel)
}

// Value is the current content of a text field.
func (n *Node) Value() string { return n.value }

// Inputs returns each Input call in order.
func (n *Node) Inputs() []string { return append([]string(nil), n.inputs...) }

var (
	_ browser.Surface = (*Page)(nil)
	_ browser.Element = (*element)(nil)
)

// Page is a fake browser.Surface.
type Page struct {
	Root *Node

	// OnNavigate runs on every Navigate; a non-nil error fails it.
	OnNavigate func(p *Page, url string) error
	// OnURL runs on every URL call before the URL is read.
	OnURL func(p *Page)
	// FindErrs queues errors returned by Surface-level Find/FindAll/WaitFor
	// for a selector, one per call.
	FindErrs map[browser.Selector][]error

	Closed      bool
	Navigations []string
	URLCalls    int

	mu      sync.Mutex
	url     string
	ua      string
	cookies []browser.Cookie
	events  []browser.NetworkEvent
}

// NewPage returns an empty page.
func NewPage() *Page {
	return &Page{Root: NewNode(""), FindErrs: map[browser.Selector][]error{}, ua: "browsertest/1.0"}
}

// SetURL sets the current URL.
func (p *Page) SetURL(u string) {
	p.mu.Lock()
	p.url = u
	p.mu.Unlock()
}

// SetUserAgent sets the reported user agent.
func (p *Page) SetUserAgent(ua string) { p.ua = ua }

// SetCookies sets the cookies returned by Cookies.
func (p *Page) SetCookies(c []browser.Cookie) {
	p.mu.Lock()
	p.cookies = c
	p.mu.Unlock()
}

// Emit appends a network event.
func (p *Page) Emit(method, url string) {
	p.mu.Lock()
	p.events = append(p.events, browser.NetworkEvent{Method: method, URL: url, At: time.Now()})
	p.mu.Unlock()
}

// EmitResponse appends a Network.responseReceived event.
func (p *Page) EmitResponse(url string) { p.Emit(browser.MethodResponseReceived, url) }

func (p *Page) Navigate(_ context.Context, url string) error {
	p.Navigations = append(p.Navigations, url)
	if p.OnNavigate != nil {
		if err := p.OnNavigate(p, url); err != nil {
			return err
		}
	}
	p.SetURL(url)
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.URLCalls++
	if p.OnURL != nil {
		p.OnURL(p)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) queuedErr(sel browser.Selector) error {
	errs := p.FindErrs[sel]
	if len(errs) == 0 {
		return nil
	}
	p.FindErrs[sel] = errs[1:]
	return errs[0]
}

func (p *Page) Find(ctx context.Context, sel browser.Selector) (browser.Element, error) {
	if err := p.queuedErr(sel); err != nil {
		return nil, err
	}
	return (&element{page: p, node: p.Root}).Find(ctx, sel)
}

func (p *Page) FindAll(ctx context.Context, sel browser.Selector) ([]browser.Element, error) {
	if err := p.queuedErr(sel); err != nil {
		return nil, err
	}
	return (&element{page: p, node: p.Root}).FindAll(ctx, sel)
}

func (p *Page) WaitFor(ctx context.Context, sel browser.Selector, _ time.Duration) (browser.Element, error) {
	return p.Find(ctx, sel)
}

func (p *Page) Cookies(context.Context) ([]browser.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Cookie(nil), p.cookies...), nil
}

func (p *Page) UserAgent() string { return p.ua }

func (p *Page) NetworkLog() []browser.NetworkEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.NetworkEvent(nil), p.events...)
}

func (p *Page) Close() error {
	p.Closed = true
	return nil
}

// Element wraps n as a browser.Element bound to p.
func (p *Page) Element(n *Node) browser.Element { return &element{page: p, node: n} }

type element struct {
	page *Page
	node *Node
}

func notFound(sel browser.Selector) error {
	return fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
}

func (e *element) Find(_ context.Context, sel browser.Selector) (browser.Element, error) {
	kids := e.node.children[sel]
	if len(kids) == 0 {
		return nil, notFound(sel)
	}
	return &element{page: e.page, node: kids[0]}, nil
}

func (e *element) FindAll(_ context.Context, sel browser.Selector) ([]browser.Element, error) {
	kids := e.node.children[sel]
	out := make([]browser.Element, 0, len(kids))
	for _, k := range kids {
		out = append(out, &element{page: e.page, node: k})
	}
	return out, nil
}

func (e *element) Text(context.Context) (string, error) { return e.node.Text, nil }

func (e *element) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.node.Attrs[name]
	return v, ok, nil
}

func (e *element) Click(context.Context) error {
	if e.node.ClickErr != nil {
		return e.node.ClickErr
	}
	e.node.Clicks++
	if e.node.OnClick != nil {
		e.node.OnClick(e.page, e.node)
	}
	return nil
}

func (e *element) Input(_ context.Context, text string) error {
	e.node.inputs = append(e.node.inputs, text)
	if e.node.replaceAll {
		e.node.value = ""
		e.node.replaceAll = false
	}
	e.node.value += text
	return nil
}

func (e *element) Clear(context.Context) error {
	e.node.Cleared++
	e.node.value = ""
	return nil
}

func (e *element) SelectAll(context.Context) error {
	e.node.SelectedAll++
	e.node.replaceAll = true
	return nil
}
