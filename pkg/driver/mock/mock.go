// Package mock provides an in-memory browser implementing core.Driver for
// testing without a real browser.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/devicelab-dev/steadyhand/pkg/core"
)

// EnterKey is the W3C key code for Enter, used to submit forms.
const EnterKey = "\uE007"

// Element describes an element on a mock page.
type Element struct {
	ID      string
	Tag     string   // defaults to "div"
	Classes []string // matched by .class selectors
	XPath   string   // matched verbatim by xpath selectors
	Text    string
	Value   string // initial value for input/textarea

	Href   string // clicking navigates (or opens a window when Target is _blank)
	Target string
	Submit string // URL navigated to when Enter is sent to the element

	Hidden   bool
	Disabled bool

	// AppearAfter hides the element from the first N FindElements calls
	// after the page loads.
	AppearAfter int
	// ShowAfter reports the element as hidden for the first N Displayed calls.
	ShowAfter int

	// OnClick runs after the default click behaviour.
	OnClick func(d *Driver) error
}

// Page is a page template served when a window navigates to URL.
type Page struct {
	URL      string
	Title    string
	Elements []Element

	// RedirectTo replaces the window URL once CurrentURL has been read
	// RedirectAfter times, emulating an intermediate auth/redirect hop.
	RedirectTo    string
	RedirectAfter int
}

// Config configures mock driver behavior.
type Config struct {
	Pages    []Page
	StartURL string // loaded into the first window; defaults to about:blank

	// Scripts maps a script body to its implementation.
	Scripts map[string]func(args []interface{}) (interface{}, error)

	BrowserName string
}

type liveElement struct {
	ref      core.ElementRef
	spec     Element
	value    string
	window   string
	load     int
	displays int
}

type window struct {
	handle   string
	url      string
	title    string
	history  []string
	load     int
	finds    int
	urlReads int
	redirect string
	after    int
	elements []*liveElement
}

// Driver is a mock implementation of core.Driver.
type Driver struct {
	mu sync.Mutex

	cfg     Config
	pages   map[string]Page
	windows map[string]*window
	order   []string
	current string

	live      map[core.ElementRef]*liveElement
	nextRef   int
	nextWin   int
	loadCount int

	failures map[string][]error
	calls    []string

	// Lost makes every call fail with a session-lost error.
	Lost   bool
	closed bool
}

// New creates a new mock driver with one window.
func New(cfg Config) *Driver {
	if cfg.BrowserName == "" {
		cfg.BrowserName = "mock"
	}
	d := &Driver{
		cfg:      cfg,
		pages:    make(map[string]Page),
		windows:  make(map[string]*window),
		live:     make(map[core.ElementRef]*liveElement),
		failures: make(map[string][]error),
	}
	for _, p := range cfg.Pages {
		d.pages[p.URL] = p
	}
	start := cfg.StartURL
	if start == "" {
		start = "about:blank"
	}
	w := d.newWindow()
	d.current = w.handle
	d.load(w, start, false)
	return d
}

// AddPage registers (or replaces) a page template.
func (d *Driver) AddPage(p Page) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[p.URL] = p
}

// Fail makes the next n calls to method return err.
func (d *Driver) Fail(method string, err error, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < n; i++ {
		d.failures[method] = append(d.failures[method], err)
	}
}

// Reload reloads the focused window. Every element reference obtained
// before is stale afterwards.
func (d *Driver) Reload() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w := d.windows[d.current]; w != nil {
		d.load(w, w.url, false)
	}
}

// Calls returns the recorded method calls in order.
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// CallCount returns how many times method was called.
func (d *Driver) CallCount(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == method || strings.HasPrefix(c, method+" ") {
			n++
		}
	}
	return n
}

// Focused returns the focused window handle without recording a call.
func (d *Driver) Focused() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// URLOf returns the URL loaded in handle without recording a call.
func (d *Driver) URLOf(handle string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w := d.windows[handle]; w != nil {
		return w.url
	}
	return ""
}

// OpenWindow opens a window at url without focusing it and returns its handle.
func (d *Driver) OpenWindow(url string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.newWindow()
	d.load(w, url, false)
	return w.handle
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// PlatformInfo implements core.PlatformReporter.
func (d *Driver) PlatformInfo() *core.PlatformInfo {
	return &core.PlatformInfo{
		Driver:      "mock",
		BrowserName: d.cfg.BrowserName,
		SessionID:   "mock-session",
	}
}

func (d *Driver) newWindow() *window {
	d.nextWin++
	w := &window{handle: fmt.Sprintf("window-%d", d.nextWin)}
	d.windows[w.handle] = w
	d.order = append(d.order, w.handle)
	return w
}

// load replaces the window's document. Caller holds d.mu.
func (d *Driver) load(w *window, url string, push bool) {
	if push && w.url != "" {
		w.history = append(w.history, w.url)
	}
	for _, el := range w.elements {
		delete(d.live, el.ref)
	}
	d.loadCount++
	w.load = d.loadCount
	w.url = url
	w.title = ""
	w.finds = 0
	w.urlReads = 0
	w.redirect = ""
	w.after = 0
	w.elements = nil

	page, ok := d.pages[url]
	if !ok {
		return
	}
	w.title = page.Title
	w.redirect = page.RedirectTo
	w.after = page.RedirectAfter
	for _, spec := range page.Elements {
		d.nextRef++
		el := &liveElement{
			ref:    core.ElementRef(fmt.Sprintf("el-%d", d.nextRef)),
			spec:   spec,
			value:  spec.Value,
			window: w.handle,
			load:   w.load,
		}
		if el.spec.Tag == "" {
			el.spec.Tag = "div"
		}
		w.elements = append(w.elements, el)
		d.live[el.ref] = el
	}
}

// enter records the call and returns an injected or session error.
// Caller holds d.mu.
func (d *Driver) enter(method, arg string) error {
	if arg != "" {
		d.calls = append(d.calls, method+" "+arg)
	} else {
		d.calls = append(d.calls, method)
	}
	if d.Lost || d.closed {
		return core.ErrSessionLost.WithMessage("mock session is gone")
	}
	if q := d.failures[method]; len(q) > 0 {
		d.failures[method] = q[1:]
		return q[0]
	}
	return nil
}

func (d *Driver) focused() (*window, error) {
	w := d.windows[d.current]
	if w == nil {
		return nil, core.ErrNoSuchWindow.WithMessage("no window is focused")
	}
	return w, nil
}

func (d *Driver) element(ref core.ElementRef) (*liveElement, error) {
	el, ok := d.live[ref]
	if !ok {
		return nil, core.ErrStaleElement.WithDetails(map[string]interface{}{"element": string(ref)})
	}
	if el.window != d.current {
		return nil, core.ErrStaleElement.WithMessage("element belongs to another window").
			WithDetails(map[string]interface{}{"element": string(ref)})
	}
	return el, nil
}

// Navigate implements core.Driver.
func (d *Driver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("Navigate", url); err != nil {
		return err
	}
	w, err := d.focused()
	if err != nil {
		return err
	}
	d.load(w, url, true)
	return nil
}

// FindElements implements core.Driver.
func (d *Driver) FindElements(_ context.Context, strategy core.Strategy, selector string) ([]core.ElementRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("FindElements", string(strategy)+"="+selector); err != nil {
		return nil, err
	}
	w, err := d.focused()
	if err != nil {
		return nil, err
	}
	w.finds++

	var refs []core.ElementRef
	for _, el := range w.elements {
		if el.spec.AppearAfter >= w.finds {
			continue
		}
		if matches(el.spec, strategy, selector) {
			refs = append(refs, el.ref)
		}
	}
	return refs, nil
}

// WindowHandles implements core.Driver.
func (d *Driver) WindowHandles(_ context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("WindowHandles", ""); err != nil {
		return nil, err
	}
	return append([]string(nil), d.order...), nil
}

// CurrentWindow implements core.Driver.
func (d *Driver) CurrentWindow(_ context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("CurrentWindow", ""); err != nil {
		return "", err
	}
	if _, err := d.focused(); err != nil {
		return "", err
	}
	return d.current, nil
}

// SwitchWindow implements core.Driver.
func (d *Driver) SwitchWindow(_ context.Context, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("SwitchWindow", handle); err != nil {
		return err
	}
	if _, ok := d.windows[handle]; !ok {
		return core.ErrNoSuchWindow.WithDetails(map[string]interface{}{"handle": handle})
	}
	d.current = handle
	return nil
}

// CloseWindow implements core.Driver.
func (d *Driver) CloseWindow(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("CloseWindow", d.current); err != nil {
		return err
	}
	w, err := d.focused()
	if err != nil {
		return err
	}
	for _, el := range w.elements {
		delete(d.live, el.ref)
	}
	delete(d.windows, w.handle)
	for i, h := range d.order {
		if h == w.handle {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.current = ""
	return nil
}

// CurrentURL implements core.Driver.
func (d *Driver) CurrentURL(_ context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("CurrentURL", ""); err != nil {
		return "", err
	}
	w, err := d.focused()
	if err != nil {
		return "", err
	}
	if w.redirect != "" {
		w.urlReads++
		if w.urlReads > w.after {
			target := w.redirect
			d.load(w, target, false)
		}
	}
	return w.url, nil
}

// Title implements core.Driver.
func (d *Driver) Title(_ context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("Title", ""); err != nil {
		return "", err
	}
	w, err := d.focused()
	if err != nil {
		return "", err
	}
	return w.title, nil
}

// Back implements core.Driver.
func (d *Driver) Back(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("Back", ""); err != nil {
		return err
	}
	w, err := d.focused()
	if err != nil {
		return err
	}
	if len(w.history) == 0 {
		return nil
	}
	prev := w.history[len(w.history)-1]
	w.history = w.history[:len(w.history)-1]
	d.load(w, prev, false)
	return nil
}

// ExecuteScript implements core.Driver.
func (d *Driver) ExecuteScript(_ context.Context, script string, args ...interface{}) (interface{}, error) {
	d.mu.Lock()
	if err := d.enter("ExecuteScript", ""); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	fn := d.cfg.Scripts[script]
	d.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(args)
}

// Click implements core.Driver.
func (d *Driver) Click(_ context.Context, ref core.ElementRef) error {
	d.mu.Lock()
	if err := d.enter("Click", string(ref)); err != nil {
		d.mu.Unlock()
		return err
	}
	el, err := d.element(ref)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if el.spec.Hidden || el.spec.Disabled {
		d.mu.Unlock()
		return core.ErrNotInteractable.WithDetails(map[string]interface{}{"element": string(ref)})
	}
	if href := el.spec.Href; href != "" {
		if el.spec.Target == "_blank" {
			w := d.newWindow()
			d.load(w, href, false)
		} else {
			d.load(d.windows[d.current], href, true)
		}
	}
	hook := el.spec.OnClick
	d.mu.Unlock()

	if hook != nil {
		return hook(d)
	}
	return nil
}

// SendKeys implements core.Driver.
func (d *Driver) SendKeys(_ context.Context, ref core.ElementRef, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("SendKeys", string(ref)); err != nil {
		return err
	}
	el, err := d.element(ref)
	if err != nil {
		return err
	}
	if strings.HasSuffix(text, EnterKey) {
		el.value += strings.TrimSuffix(text, EnterKey)
		if el.spec.Submit != "" {
			d.load(d.windows[d.current], el.spec.Submit, true)
		}
		return nil
	}
	el.value += text
	return nil
}

// Clear implements core.Driver.
func (d *Driver) Clear(_ context.Context, ref core.ElementRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("Clear", string(ref)); err != nil {
		return err
	}
	el, err := d.element(ref)
	if err != nil {
		return err
	}
	el.value = ""
	return nil
}

// Text implements core.Driver. Inputs report their current value.
func (d *Driver) Text(_ context.Context, ref core.ElementRef) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("Text", string(ref)); err != nil {
		return "", err
	}
	el, err := d.element(ref)
	if err != nil {
		return "", err
	}
	if el.spec.Tag == "input" || el.spec.Tag == "textarea" {
		return el.value, nil
	}
	return el.spec.Text, nil
}

// Value returns the current value of an input without recording a call.
func (d *Driver) Value(ref core.ElementRef) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.live[ref]; ok {
		return el.value
	}
	return ""
}

// Displayed implements core.Driver.
func (d *Driver) Displayed(_ context.Context, ref core.ElementRef) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("Displayed", string(ref)); err != nil {
		return false, err
	}
	el, err := d.element(ref)
	if err != nil {
		return false, err
	}
	el.displays++
	if el.spec.Hidden || el.displays <= el.spec.ShowAfter {
		return false, nil
	}
	return true, nil
}

// Enabled implements core.Driver.
func (d *Driver) Enabled(_ context.Context, ref core.ElementRef) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("Enabled", string(ref)); err != nil {
		return false, err
	}
	el, err := d.element(ref)
	if err != nil {
		return false, err
	}
	return !el.spec.Disabled, nil
}

// Close implements core.Driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

var _ core.Driver = (*Driver)(nil)
