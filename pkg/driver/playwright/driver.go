// Package playwright implements core.Driver over playwright-go.
//
// Pages and element handles are given opaque uuid handles. Playwright calls
// are not context aware, so the caller's context is checked before every
// command.
package playwright

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/driver/internal/query"
	"github.com/devicelab-dev/steadyhand/pkg/logger"
)

const (
	defaultActionTimeout = 5 * time.Second
	installTimeout       = 5 * time.Minute

	enterKey = "\uE007"
)

// Options configures the browser launch.
type Options struct {
	Browser string // chromium, firefox, webkit
	// RemoteURL connects to a running playwright server instead of launching.
	RemoteURL string
	Headless  bool
	Install   bool
	// DriverDir is where the playwright driver and browsers are kept.
	// Empty uses playwright's default cache directory.
	DriverDir string
	Args      []string
	Logger    *zap.Logger
}

// Driver implements core.Driver over a playwright browser context.
type Driver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	log     *zap.Logger
	info    *core.PlatformInfo

	mu       sync.Mutex
	handles  map[playwright.Page]string
	current  playwright.Page
	elements map[core.ElementRef]playwright.ElementHandle
}

// Open starts playwright, launches the browser and opens the first page.
func Open(ctx context.Context, opts Options) (*Driver, error) {
	log := logger.Or(opts.Logger).Named("playwright")
	if opts.Browser == "" {
		opts.Browser = "chromium"
	}

	runOpts := &playwright.RunOptions{
		DriverDirectory: opts.DriverDir,
		Browsers:        []string{opts.Browser},
	}
	if opts.Install {
		if err := install(ctx, runOpts); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, core.ErrServerUnreachable.WithCause(fmt.Errorf("failed to start playwright driver: %w", err))
	}

	bt, err := browserType(pw, opts.Browser)
	if err != nil {
		_ = pw.Stop()
		return nil, err
	}

	var browser playwright.Browser
	if opts.RemoteURL != "" {
		browser, err = bt.Connect(opts.RemoteURL)
	} else {
		browser, err = bt.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(opts.Headless),
			Args:     opts.Args,
			Timeout:  playwright.Float(60000),
		})
	}
	if err != nil {
		_ = pw.Stop()
		return nil, core.ErrServerUnreachable.WithCause(fmt.Errorf("failed to launch browser instance: %w", err))
	}

	bctx, err := browser.NewContext()
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	d := &Driver{
		pw:       pw,
		browser:  browser,
		bctx:     bctx,
		log:      log,
		handles:  map[playwright.Page]string{},
		elements: map[core.ElementRef]playwright.ElementHandle{},
		info: &core.PlatformInfo{
			Driver:         "playwright",
			BrowserName:    opts.Browser,
			BrowserVersion: browser.Version(),
			SessionID:      uuid.NewString(),
			Headless:       opts.Headless,
		},
	}
	d.current = page
	d.handleOf(page)

	log.Info("browser ready", zap.String("browser", opts.Browser), zap.String("version", browser.Version()))
	return d, nil
}

func install(ctx context.Context, runOpts *playwright.RunOptions) error {
	installCtx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- playwright.Install(runOpts)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to install playwright browsers: %w", err)
		}
		return nil
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for playwright installation: %w", installCtx.Err())
	}
}

func browserType(pw *playwright.Playwright, name string) (playwright.BrowserType, error) {
	switch name {
	case "chromium", "chrome":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit", "safari":
		return pw.WebKit, nil
	}
	return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unsupported browser %q", name))
}

// PlatformInfo implements core.PlatformReporter.
func (d *Driver) PlatformInfo() *core.PlatformInfo {
	return d.info
}

// handleOf returns the stable handle for p, assigning one on first sight.
func (d *Driver) handleOf(p playwright.Page) string {
	if h, ok := d.handles[p]; ok {
		return h
	}
	h := uuid.NewString()
	d.handles[p] = h
	return h
}

func (d *Driver) page(ctx context.Context) (playwright.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil || d.current.IsClosed() {
		return nil, core.ErrNoSuchWindow.WithMessage("no window is focused")
	}
	return d.current, nil
}

func (d *Driver) element(ctx context.Context, el core.ElementRef) (playwright.ElementHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.elements[el]
	if !ok {
		return nil, core.ErrStaleElement.WithDetails(map[string]interface{}{"element": string(el)})
	}
	return h, nil
}

// forget drops element handles; they belong to the previous document.
func (d *Driver) forget() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range d.elements {
		_ = h.Dispose()
	}
	d.elements = map[core.ElementRef]playwright.ElementHandle{}
}

// actionTimeout bounds a playwright action by the caller's deadline.
func actionTimeout(ctx context.Context) *float64 {
	t := defaultActionTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < t {
			t = remaining
		}
	}
	if t < time.Millisecond {
		t = time.Millisecond
	}
	return playwright.Float(float64(t.Milliseconds()))
}

// Navigate implements core.Driver.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	p, err := d.page(ctx)
	if err != nil {
		return err
	}
	d.forget()
	_, err = p.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateLoad})
	return d.mapError(err)
}

// FindElements implements core.Driver.
func (d *Driver) FindElements(ctx context.Context, strategy core.Strategy, selector string) ([]core.ElementRef, error) {
	sel, err := selectorFor(strategy, selector)
	if err != nil {
		return nil, err
	}
	p, err := d.page(ctx)
	if err != nil {
		return nil, err
	}
	found, err := p.QuerySelectorAll(sel)
	if err != nil {
		return nil, d.mapError(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	refs := make([]core.ElementRef, 0, len(found))
	for _, h := range found {
		ref := core.ElementRef(uuid.NewString())
		d.elements[ref] = h
		refs = append(refs, ref)
	}
	return refs, nil
}

// selectorFor maps a strategy onto a playwright selector engine.
func selectorFor(strategy core.Strategy, selector string) (string, error) {
	switch strategy {
	case core.StrategyID:
		return "css=" + query.IDSelector(selector), nil
	case core.StrategyCSS:
		return "css=" + selector, nil
	case core.StrategyLinkText:
		return "xpath=" + query.LinkText(selector), nil
	case core.StrategyPartialLinkText:
		return "xpath=" + query.PartialLinkText(selector), nil
	case core.StrategyXPath:
		return "xpath=" + selector, nil
	}
	return "", core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unsupported strategy %q", strategy))
}

// WindowHandles implements core.Driver.
func (d *Driver) WindowHandles(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.browser.IsConnected() {
		return nil, core.ErrSessionLost.WithMessage("browser disconnected")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	pages := d.bctx.Pages()
	handles := make([]string, 0, len(pages))
	for _, p := range pages {
		if p.IsClosed() {
			continue
		}
		handles = append(handles, d.handleOf(p))
	}
	return handles, nil
}

// CurrentWindow implements core.Driver.
func (d *Driver) CurrentWindow(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil || d.current.IsClosed() {
		return "", core.ErrNoSuchWindow.WithMessage("no window is focused")
	}
	return d.handleOf(d.current), nil
}

// SwitchWindow implements core.Driver.
func (d *Driver) SwitchWindow(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	var target playwright.Page
	for _, p := range d.bctx.Pages() {
		if !p.IsClosed() && d.handleOf(p) == handle {
			target = p
			break
		}
	}
	if target != nil {
		d.current = target
	}
	d.mu.Unlock()

	if target == nil {
		return core.ErrNoSuchWindow.WithDetails(map[string]interface{}{"handle": handle})
	}
	d.forget()
	return d.mapError(target.BringToFront())
}

// CloseWindow implements core.Driver.
func (d *Driver) CloseWindow(ctx context.Context) error {
	p, err := d.page(ctx)
	if err != nil {
		return err
	}
	d.forget()
	if err := p.Close(); err != nil {
		return d.mapError(err)
	}
	d.mu.Lock()
	delete(d.handles, p)
	d.current = nil
	d.mu.Unlock()
	return nil
}

// CurrentURL implements core.Driver.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	p, err := d.page(ctx)
	if err != nil {
		return "", err
	}
	return p.URL(), nil
}

// Title implements core.Driver.
func (d *Driver) Title(ctx context.Context) (string, error) {
	p, err := d.page(ctx)
	if err != nil {
		return "", err
	}
	title, err := p.Title()
	return title, d.mapError(err)
}

// Back implements core.Driver.
func (d *Driver) Back(ctx context.Context) error {
	p, err := d.page(ctx)
	if err != nil {
		return err
	}
	d.forget()
	_, err = p.GoBack()
	return d.mapError(err)
}

// ExecuteScript implements core.Driver.
func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...interface{}) (interface{}, error) {
	p, err := d.page(ctx)
	if err != nil {
		return nil, err
	}
	wire := make([]interface{}, len(args))
	for i, a := range args {
		if el, ok := a.(core.ElementRef); ok {
			h, err := d.element(ctx, el)
			if err != nil {
				return nil, err
			}
			wire[i] = h
			continue
		}
		wire[i] = a
	}
	res, err := p.Evaluate(wrapScript(script), wire)
	return res, d.mapError(err)
}

// wrapScript turns a script body using `arguments` into an arrow function
// taking the argument list.
func wrapScript(body string) string {
	return "(args) => (function() {\n" + body + "\n}).apply(null, args)"
}

// Click implements core.Driver.
func (d *Driver) Click(ctx context.Context, el core.ElementRef) error {
	h, err := d.element(ctx, el)
	if err != nil {
		return err
	}
	if ok, err := interactable(h); err != nil {
		return d.mapError(err)
	} else if !ok {
		return core.ErrNotInteractable.WithDetails(map[string]interface{}{"element": string(el)})
	}
	return d.mapError(h.Click(playwright.ElementHandleClickOptions{Timeout: actionTimeout(ctx)}))
}

func interactable(h playwright.ElementHandle) (bool, error) {
	visible, err := h.IsVisible()
	if err != nil || !visible {
		return false, err
	}
	return h.IsEnabled()
}

// SendKeys implements core.Driver. The W3C Enter code is sent as a key press.
func (d *Driver) SendKeys(ctx context.Context, el core.ElementRef, text string) error {
	h, err := d.element(ctx, el)
	if err != nil {
		return err
	}
	for i, part := range strings.Split(text, enterKey) {
		if i > 0 {
			if err := h.Press("Enter", playwright.ElementHandlePressOptions{Timeout: actionTimeout(ctx)}); err != nil {
				return d.mapError(err)
			}
		}
		if part == "" {
			continue
		}
		if err := h.Type(part, playwright.ElementHandleTypeOptions{Timeout: actionTimeout(ctx)}); err != nil {
			return d.mapError(err)
		}
	}
	return nil
}

// Clear implements core.Driver.
func (d *Driver) Clear(ctx context.Context, el core.ElementRef) error {
	h, err := d.element(ctx, el)
	if err != nil {
		return err
	}
	return d.mapError(h.Fill("", playwright.ElementHandleFillOptions{Timeout: actionTimeout(ctx)}))
}

// Text implements core.Driver.
func (d *Driver) Text(ctx context.Context, el core.ElementRef) (string, error) {
	h, err := d.element(ctx, el)
	if err != nil {
		return "", err
	}
	v, err := h.Evaluate(`el => (el.tagName === 'INPUT' || el.tagName === 'TEXTAREA') ? el.value : (el.innerText || el.textContent || '')`)
	if err != nil {
		return "", d.mapError(err)
	}
	s, _ := v.(string)
	return s, nil
}

// Displayed implements core.Driver.
func (d *Driver) Displayed(ctx context.Context, el core.ElementRef) (bool, error) {
	h, err := d.element(ctx, el)
	if err != nil {
		return false, err
	}
	v, err := h.IsVisible()
	return v, d.mapError(err)
}

// Enabled implements core.Driver.
func (d *Driver) Enabled(ctx context.Context, el core.ElementRef) (bool, error) {
	h, err := d.element(ctx, el)
	if err != nil {
		return false, err
	}
	v, err := h.IsEnabled()
	return v, d.mapError(err)
}

// Close implements core.Driver.
func (d *Driver) Close() error {
	d.forget()
	var errs []error
	if err := d.bctx.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close context: %w", err))
	}
	if err := d.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	if err := d.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

// mapError translates playwright failures into the engine's error taxonomy.
func (d *Driver) mapError(err error) error {
	if err == nil {
		return nil
	}
	if d.browser != nil && !d.browser.IsConnected() {
		return core.ErrSessionLost.WithCause(err)
	}
	return classify(err)
}

func classify(err error) error {
	var ee *core.ExecutionError
	if errors.As(err, &ee) {
		return ee
	}
	msg := err.Error()
	switch {
	case errors.Is(err, playwright.ErrTargetClosed):
		return core.ErrSessionLost.WithCause(err)
	case strings.Contains(msg, "not attached to the DOM"),
		strings.Contains(msg, "JSHandle is disposed"),
		strings.Contains(msg, "Execution context was destroyed"):
		return core.ErrStaleElement.WithCause(err)
	case errors.Is(err, playwright.ErrTimeout):
		return core.ErrWaitTimeout.WithCause(err)
	}
	return fmt.Errorf("playwright: %w", err)
}

var (
	_ core.Driver           = (*Driver)(nil)
	_ core.PlatformReporter = (*Driver)(nil)
)
