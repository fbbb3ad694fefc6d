// internal/page/adapter.go

// Package page defines the narrow capability surface the automation core
// uses to observe and mutate a loaded page. The core is written entirely
// against Adapter; the chromedp-backed Tab is swapped in at the boundary and
// pagetest.Fake stands in for unit tests.
package page

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Locate when no attached element matches the
// strategy. Callers decide whether a missing element aborts their step.
var ErrNotFound = errors.New("page: element not found")

// Strategy describes one way of finding an element. Strategies are tried
// strictly in the order the caller supplies them; the first structural match
// wins even if a later strategy would match a better element.
type Strategy struct {
	// Query is a CSS selector evaluated against the document.
	Query string
	// VisibleOnly restricts matches to elements currently laid out
	// (offsetParent != null).
	VisibleOnly bool
	// EmptyOnly restricts matches to inputs with no current value. Used by
	// the last-resort code-field strategy.
	EmptyOnly bool
	// Index selects the Nth passing match (0-based) instead of the first.
	// Rotation pages carry two new-password fields behind one selector.
	Index int
}

// Handle addresses one concrete element on the current page. Handles are
// invalidated by navigation; they are never persisted.
type Handle struct {
	ID string
}

// Control is a clickable element together with its visible label, used by
// the submit and confirm resolvers.
type Control struct {
	Handle *Handle
	Label  string
	Class  string
	Kind   string
}

// Adapter is the page capability interface.
//
// SetValue carries the full reactive-framework contract: clear the prior
// value, write the new one through the framework-visible property setter,
// then dispatch input, change and keyup so any bound validation re-runs. A
// naive property assignment is invisible to some reactive frameworks, which
// is the whole reason this method exists.
type Adapter interface {
	// URL returns the current page URL.
	URL(ctx context.Context) (string, error)
	// ReadText returns the page's visible text (body innerText).
	ReadText(ctx context.Context) (string, error)
	// ReadMarkup returns the raw document markup.
	ReadMarkup(ctx context.Context) (string, error)
	// Locate returns a handle for the first element matching the strategy,
	// or ErrNotFound.
	Locate(ctx context.Context, s Strategy) (*Handle, error)
	// Controls enumerates the page's clickable controls with their labels.
	Controls(ctx context.Context) ([]Control, error)
	// SetValue writes value into the element per the contract above.
	SetValue(ctx context.Context, h *Handle, value string) error
	// Click activates the element both directly and via a synthesized
	// pointer event; some portals react to only one of the two.
	Click(ctx context.Context, h *Handle) error
	// PressEnter synthesizes a full keydown/keypress/keyup Enter sequence on
	// the element.
	PressEnter(ctx context.Context, h *Handle) error
}
