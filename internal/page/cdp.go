// internal/page/cdp.go
package page

import (
	"context"
	"fmt"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Tab is the chromedp-backed Adapter. One Tab wraps one browser tab; its
// handles are element ids written into the live DOM as data-sf-handle
// attributes so later operations address the exact element the locator
// matched, not whatever a re-run of the selector would find.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

var _ Adapter = (*Tab)(nil)

// NewTab creates a tab context under the given allocator context.
func NewTab(allocCtx context.Context, logger *zap.Logger) *Tab {
	ctx, cancel := chromedp.NewContext(allocCtx)
	return &Tab{
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("tab"),
	}
}

// Context exposes the underlying tab context for lifetime management.
func (t *Tab) Context() context.Context { return t.ctx }

// Close tears the tab down.
func (t *Tab) Close() {
	if t.cancel != nil {
		t.cancel()
	}
}

// Navigate loads the URL and waits for the document body to be ready.
func (t *Tab) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	t.logger.Debug("Navigating.", zap.String("url", url))

	navCtx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()

	if err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation timed out after %s: %w", timeout, err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("navigation canceled: %w", ctx.Err())
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// OnLoad invokes fn on every subsequent page load event of this tab. fn runs
// on its own goroutine; the subscription lives until the tab context dies.
func (t *Tab) OnLoad(fn func()) {
	chromedp.ListenTarget(t.ctx, func(ev interface{}) {
		if _, ok := ev.(*cdppage.EventLoadEventFired); ok {
			go fn()
		}
	})
}

// URL returns the tab's current location.
func (t *Tab) URL(ctx context.Context) (string, error) {
	var url string
	if err := t.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return url, nil
}

// ReadText returns the visible body text.
func (t *Tab) ReadText(ctx context.Context) (string, error) {
	var text string
	script := `document.body ? document.body.innerText : ''`
	if err := t.run(ctx, chromedp.Evaluate(script, &text)); err != nil {
		return "", fmt.Errorf("reading page text: %w", err)
	}
	return text, nil
}

// ReadMarkup returns the raw document markup.
func (t *Tab) ReadMarkup(ctx context.Context) (string, error) {
	var markup string
	script := `document.documentElement ? document.documentElement.innerHTML : ''`
	if err := t.run(ctx, chromedp.Evaluate(script, &markup)); err != nil {
		return "", fmt.Errorf("reading page markup: %w", err)
	}
	return markup, nil
}

// Locate tags the first element matching the strategy with a fresh handle id
// and returns the handle, or ErrNotFound.
func (t *Tab) Locate(ctx context.Context, s Strategy) (*Handle, error) {
	id := "sf-" + uuid.New().String()[:8]
	script := fmt.Sprintf(`(function(query, visibleOnly, emptyOnly, index, id) {
		var els;
		try { els = document.querySelectorAll(query); } catch (e) { return false; }
		var passed = 0;
		for (var i = 0; i < els.length; i++) {
			var el = els[i];
			if (visibleOnly && el.offsetParent === null) continue;
			if (emptyOnly && el.value) continue;
			if (passed++ < index) continue;
			el.setAttribute('data-sf-handle', id);
			return true;
		}
		return false;
	})(%s, %s, %s, %s, %s)`, jsArg(s.Query), jsArg(s.VisibleOnly), jsArg(s.EmptyOnly), jsArg(s.Index), jsArg(id))

	var found bool
	if err := t.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return nil, fmt.Errorf("locate %q: %w", s.Query, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return &Handle{ID: id}, nil
}

type controlDTO struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Class string `json:"class"`
	Kind  string `json:"kind"`
}

// Controls tags and enumerates the page's clickable controls.
func (t *Tab) Controls(ctx context.Context) ([]Control, error) {
	prefix := "sf-" + uuid.New().String()[:8]
	script := fmt.Sprintf(`(function(prefix) {
		var out = [];
		var els = document.querySelectorAll('button, input[type="submit"], input[type="button"], a.btn');
		for (var i = 0; i < els.length; i++) {
			var el = els[i];
			var id = prefix + '-' + i;
			el.setAttribute('data-sf-handle', id);
			out.push({
				id: id,
				label: ((el.textContent || '').trim()) || el.value || '',
				class: (typeof el.className === 'string') ? el.className : '',
				kind: el.tagName.toLowerCase()
			});
		}
		return out;
	})(%s)`, jsArg(prefix))

	var dtos []controlDTO
	if err := t.run(ctx, chromedp.Evaluate(script, &dtos)); err != nil {
		return nil, fmt.Errorf("enumerating controls: %w", err)
	}

	controls := make([]Control, 0, len(dtos))
	for _, d := range dtos {
		controls = append(controls, Control{
			Handle: &Handle{ID: d.ID},
			Label:  d.Label,
			Class:  d.Class,
			Kind:   d.Kind,
		})
	}
	return controls, nil
}

// SetValue clears the element, writes value through the native property
// setter so reactive frameworks observe the mutation, then dispatches
// input/change/keyup.
func (t *Tab) SetValue(ctx context.Context, h *Handle, value string) error {
	if h == nil {
		return nil
	}
	script := fmt.Sprintf(`(function(id, value) {
		var el = document.querySelector('[data-sf-handle="' + id + '"]');
		if (!el) return false;
		el.focus();
		el.value = '';
		var desc = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, 'value');
		if (desc && desc.set) { desc.set.call(el, value); } else { el.value = value; }
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		el.dispatchEvent(new KeyboardEvent('keyup', { bubbles: true }));
		return true;
	})(%s, %s)`, jsArg(h.ID), jsArg(value))

	var ok bool
	if err := t.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("setting value: %w", err)
	}
	if !ok {
		return fmt.Errorf("setting value: element detached: %w", ErrNotFound)
	}
	return nil
}

// Click activates the element directly and through a synthesized pointer
// click.
func (t *Tab) Click(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	script := fmt.Sprintf(`(function(id) {
		var el = document.querySelector('[data-sf-handle="' + id + '"]');
		if (!el) return false;
		el.focus();
		if (typeof el.click === 'function') el.click();
		el.dispatchEvent(new MouseEvent('click', { view: window, bubbles: true, cancelable: true }));
		return true;
	})(%s)`, jsArg(h.ID))

	var ok bool
	if err := t.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("clicking element: %w", err)
	}
	if !ok {
		return fmt.Errorf("clicking element: element detached: %w", ErrNotFound)
	}
	return nil
}

// PressEnter synthesizes the keydown/keypress/keyup Enter sequence.
func (t *Tab) PressEnter(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	script := fmt.Sprintf(`(function(id) {
		var el = document.querySelector('[data-sf-handle="' + id + '"]');
		if (!el) return false;
		el.focus();
		['keydown', 'keypress', 'keyup'].forEach(function(type) {
			el.dispatchEvent(new KeyboardEvent(type, {
				key: 'Enter', code: 'Enter', keyCode: 13, which: 13, bubbles: true
			}));
		});
		return true;
	})(%s)`, jsArg(h.ID))

	var ok bool
	if err := t.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("pressing enter: %w", err)
	}
	if !ok {
		return fmt.Errorf("pressing enter: element detached: %w", ErrNotFound)
	}
	return nil
}

// run executes actions against the tab, honoring both the tab lifetime and
// the caller's context.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(t.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// combineContext derives a context canceled when either parent dies.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// jsArg renders a Go value as a JavaScript literal.
func jsArg(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
