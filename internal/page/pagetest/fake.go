// internal/page/pagetest/fake.go

// Package pagetest provides an in-memory page.Adapter for unit testing the
// automation core without a browser.
package pagetest

import (
	"context"
	"sync"

	"github.com/pkonomy/sellerflow/internal/page"
)

// Element is one fake page element. Events records every notification
// dispatched at it, in order.
type Element struct {
	Value   string
	Visible bool
	Label   string
	Class   string
	Kind    string

	Events   []string
	SetCalls int
	Clicks   int
	Enters   int
}

// Fake implements page.Adapter over a declarative page description. CSS
// matching is not emulated; tests map selector strings to the elements they
// should resolve to.
type Fake struct {
	mu sync.Mutex

	PageURL string
	Text    string
	Markup  string

	elements  map[string]*Element
	selectors map[string][]string
	controls  []string

	// appearAfter delays a selector's first match by N Locate calls,
	// simulating asynchronously rendered elements.
	appearAfter map[string]int
	locateCalls map[string]int

	// OnClick, when set, runs after a successful click; tests use it to
	// simulate page transitions.
	OnClick func(name string)
}

var _ page.Adapter = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		elements:    make(map[string]*Element),
		selectors:   make(map[string][]string),
		appearAfter: make(map[string]int),
		locateCalls: make(map[string]int),
	}
}

// AddElement registers el under name. Visible defaults to true unless the
// caller set it explicitly via AddHiddenElement.
func (f *Fake) AddElement(name string, el *Element) *Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	if el == nil {
		el = &Element{Visible: true}
	}
	f.elements[name] = el
	return el
}

// MapSelector routes a selector query to elements, in match order.
func (f *Fake) MapSelector(query string, names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectors[query] = names
}

// AppearAfter makes query unresolvable for the first n Locate calls.
func (f *Fake) AppearAfter(query string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appearAfter[query] = n
}

// AddControl registers a clickable control exposed through Controls.
func (f *Fake) AddControl(name, label, class, kind string) *Element {
	el := f.AddElement(name, &Element{Visible: true, Label: label, Class: class, Kind: kind})
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, name)
	return el
}

// Element returns the registered element for inspection.
func (f *Fake) Element(name string) *Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elements[name]
}

func (f *Fake) URL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PageURL, nil
}

func (f *Fake) ReadText(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Text, nil
}

func (f *Fake) ReadMarkup(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Markup, nil
}

func (f *Fake) Locate(_ context.Context, s page.Strategy) (*page.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.locateCalls[s.Query]++
	if wait, ok := f.appearAfter[s.Query]; ok && f.locateCalls[s.Query] <= wait {
		return nil, page.ErrNotFound
	}

	passed := 0
	for _, name := range f.selectors[s.Query] {
		el, ok := f.elements[name]
		if !ok {
			continue
		}
		if s.VisibleOnly && !el.Visible {
			continue
		}
		if s.EmptyOnly && el.Value != "" {
			continue
		}
		if passed < s.Index {
			passed++
			continue
		}
		return &page.Handle{ID: name}, nil
	}
	return nil, page.ErrNotFound
}

func (f *Fake) Controls(context.Context) ([]page.Control, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]page.Control, 0, len(f.controls))
	for _, name := range f.controls {
		el := f.elements[name]
		out = append(out, page.Control{
			Handle: &page.Handle{ID: name},
			Label:  el.Label,
			Class:  el.Class,
			Kind:   el.Kind,
		})
	}
	return out, nil
}

func (f *Fake) SetValue(_ context.Context, h *page.Handle, value string) error {
	if h == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	el, ok := f.elements[h.ID]
	if !ok {
		return page.ErrNotFound
	}
	el.Value = value
	el.SetCalls++
	el.Events = append(el.Events, "input", "change", "keyup")
	return nil
}

func (f *Fake) Click(_ context.Context, h *page.Handle) error {
	if h == nil {
		return nil
	}
	f.mu.Lock()
	el, ok := f.elements[h.ID]
	if !ok {
		f.mu.Unlock()
		return page.ErrNotFound
	}
	el.Clicks++
	el.Events = append(el.Events, "click")
	hook := f.OnClick
	f.mu.Unlock()

	if hook != nil {
		hook(h.ID)
	}
	return nil
}

func (f *Fake) PressEnter(_ context.Context, h *page.Handle) error {
	if h == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	el, ok := f.elements[h.ID]
	if !ok {
		return page.ErrNotFound
	}
	el.Enters++
	el.Events = append(el.Events, "keydown", "keypress", "keyup")
	return nil
}
