package browser

import (
	"context"
	"runtime"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

var _ Element = (*rodElement)(nil)

type rodElement struct {
	el *rod.Element
}

func wrapElements(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out
}

func (r *rodElement) Find(ctx context.Context, sel Selector) (Element, error) {
	el := r.el.Context(ctx)
	var has bool
	var found *rod.Element
	var err error
	if sel.By == ByXPath {
		has, found, err = el.HasX(sel.Value)
	} else {
		has, found, err = el.Has(sel.cssSelector())
	}
	if err != nil {
		return nil, wrap("find "+sel.String(), err)
	}
	if !has {
		return nil, notFound(sel, nil)
	}
	return &rodElement{el: found}, nil
}

func (r *rodElement) FindAll(ctx context.Context, sel Selector) ([]Element, error) {
	el := r.el.Context(ctx)
	var els rod.Elements
	var err error
	if sel.By == ByXPath {
		els, err = el.ElementsX(sel.Value)
	} else {
		els, err = el.Elements(sel.cssSelector())
	}
	if err != nil {
		return nil, wrap("find all "+sel.String(), err)
	}
	return wrapElements(els), nil
}

func (r *rodElement) Text(ctx context.Context) (string, error) {
	s, err := r.el.Context(ctx).Text()
	return s, wrap("text", err)
}

func (r *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := r.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, wrap("attribute "+name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (r *rodElement) Click(ctx context.Context) error {
	return wrap("click", r.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1))
}

func (r *rodElement) Input(ctx context.Context, text string) error {
	return wrap("input", r.el.Context(ctx).Input(text))
}

func (r *rodElement) Clear(ctx context.Context) error {
	_, err := r.el.Context(ctx).Eval(`() => { this.value = ""; this.dispatchEvent(new Event("input", {bubbles: true})) }`)
	return wrap("clear", err)
}

func (r *rodElement) SelectAll(ctx context.Context) error {
	el := r.el.Context(ctx)
	if err := el.Focus(); err != nil {
		return wrap("focus", err)
	}
	mod := input.ControlLeft
	if runtime.GOOS == "darwin" {
		mod = input.MetaLeft
	}
	return wrap("select all", el.Page().KeyActions().Press(mod).Type(input.KeyA).Do())
}
