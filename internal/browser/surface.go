package browser

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// By is the locator strategy of a Selector.
type By int

const (
	ByID By = iota
	ByClass
	ByXPath
	ByCSS
)

// Selector locates elements on a page or under an element.
type Selector struct {
	By    By
	Value string
}

// ID, Class, XPath and CSS build selectors.
func ID(v string) Selector    { return Selector{By: ByID, Value: v} }
func Class(v string) Selector { return Selector{By: ByClass, Value: v} }
func XPath(v string) Selector { return Selector{By: ByXPath, Value: v} }
func CSS(v string) Selector   { return Selector{By: ByCSS, Value: v} }

func (s Selector) String() string {
	switch s.By {
	case ByID:
		return "id=" + s.Value
	case ByClass:
		return "class=" + s.Value
	case ByXPath:
		return "xpath=" + s.Value
	default:
		return "css=" + s.Value
	}
}

// ParseSelector reads the "kind:value" form used in configuration files,
// e.g. "id:ap_email", "class:record-summary", "xpath://button[1]".
// A value without a known prefix is taken as CSS.
func ParseSelector(s string) (Selector, error) {
	if strings.TrimSpace(s) == "" {
		return Selector{}, fmt.Errorf("browser: empty selector")
	}
	kind, value, ok := strings.Cut(s, ":")
	if !ok {
		return CSS(s), nil
	}
	switch kind {
	case "id":
		return ID(value), nil
	case "class":
		return Class(value), nil
	case "xpath":
		return XPath(value), nil
	case "css":
		return CSS(value), nil
	}
	return CSS(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YAML and env config.
func (s *Selector) UnmarshalText(text []byte) error {
	sel, err := ParseSelector(string(text))
	if err != nil {
		return err
	}
	*s = sel
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Selector) MarshalText() ([]byte, error) {
	switch s.By {
	case ByID:
		return []byte("id:" + s.Value), nil
	case ByClass:
		return []byte("class:" + s.Value), nil
	case ByXPath:
		return []byte("xpath:" + s.Value), nil
	}
	return []byte("css:" + s.Value), nil
}

// IsZero reports whether the selector is unset.
func (s Selector) IsZero() bool { return s.Value == "" }

// cssSelector returns the CSS form of non-XPath selectors. A class value
// with spaces matches elements carrying all listed classes.
func (s Selector) cssSelector() string {
	switch s.By {
	case ByID:
		return fmt.Sprintf("[id=%q]", s.Value)
	case ByClass:
		return "." + strings.Join(strings.Fields(s.Value), ".")
	default:
		return s.Value
	}
}

// Cookie is a browser cookie as persisted to cookies.json.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expiry,omitempty"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// CookieMap derives the name to value mapping used for authenticated
// fetches. Later cookies with the same name win.
func CookieMap(cookies []Cookie) map[string]string {
	m := make(map[string]string, len(cookies))
	for _, c := range cookies {
		m[c.Name] = c.Value
	}
	return m
}

// Network event method names recorded in the log.
const (
	MethodRequestWillBeSent = "Network.requestWillBeSent"
	MethodResponseReceived  = "Network.responseReceived"
)

// NetworkEvent is one captured DevTools network event.
type NetworkEvent struct {
	Method string    `json:"method"`
	URL    string    `json:"url"`
	At     time.Time `json:"at"`
}

// Element is a located DOM element.
type Element interface {
	// Find returns the first descendant matching sel, or ErrNotFound.
	// It does not wait.
	Find(ctx context.Context, sel Selector) (Element, error)
	// FindAll returns all matching descendants; none is not an error.
	FindAll(ctx context.Context, sel Selector) ([]Element, error)
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	Click(ctx context.Context) error
	// Input types text into the element at its current caret.
	Input(ctx context.Context, text string) error
	// Clear empties a text field directly.
	Clear(ctx context.Context) error
	// SelectAll focuses the field and sends the select-all keystroke.
	SelectAll(ctx context.Context) error
}

// Surface is the capability set the retrieval pipeline needs from a
// browser tab. One Surface belongs to exactly one account run.
type Surface interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	// Find waits up to the implicit wait for sel, then returns ErrNotFound.
	Find(ctx context.Context, sel Selector) (Element, error)
	// FindAll returns the currently matching elements without waiting.
	FindAll(ctx context.Context, sel Selector) ([]Element, error)
	// WaitFor waits up to timeout for sel. Absence is an ErrNotFound error.
	WaitFor(ctx context.Context, sel Selector, timeout time.Duration) (Element, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	UserAgent() string
	// NetworkLog returns a copy of the events captured since the page opened.
	NetworkLog() []NetworkEvent
	Close() error
}
