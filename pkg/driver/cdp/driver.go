// Package cdp implements core.Driver over the Chrome DevTools Protocol.
//
// Window handles are page target IDs. Element references are backend node
// IDs, which stay valid until the node leaves the document.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/logger"
)

// Options configures how the browser is reached.
type Options struct {
	// RemoteURL attaches to a running browser (ws:// or http:// debugger
	// endpoint). Empty launches a local browser.
	RemoteURL string
	ExecPath  string
	Headless  bool
	Logger    *zap.Logger
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Driver implements core.Driver over chromedp.
type Driver struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	first         target.ID
	log           *zap.Logger
	info          *core.PlatformInfo

	mu      sync.Mutex
	tabs    map[target.ID]tab
	current target.ID
}

// Open starts or attaches to a browser and focuses its first page.
func Open(ctx context.Context, opts Options) (*Driver, error) {
	log := logger.Or(opts.Logger).Named("cdp")

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		flags := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		flags = append(flags, chromedp.Flag("headless", opts.Headless))
		if opts.ExecPath != "" {
			flags = append(flags, chromedp.ExecPath(opts.ExecPath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), flags...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Sugar().Debugf))
	stop := context.AfterFunc(ctx, browserCancel)
	defer stop()

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.ErrServerUnreachable.WithCause(err).WithDetails(map[string]interface{}{"url": opts.RemoteURL})
	}

	first := chromedp.FromContext(browserCtx).Target.TargetID
	d := &Driver{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		first:         first,
		log:           log,
		tabs:          map[target.ID]tab{first: {ctx: browserCtx, cancel: func() {}}},
		current:       first,
		info: &core.PlatformInfo{
			Driver:      "cdp",
			BrowserName: "chrome",
			Headless:    opts.Headless && opts.RemoteURL == "",
		},
	}

	var product string
	if err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		_, product, _, _, _, err = browser.GetVersion().Do(ctx)
		return err
	})); err == nil {
		d.info.BrowserVersion = product
	}
	d.info.SessionID = string(first)

	log.Info("browser ready", zap.String("target", string(first)), zap.String("version", product))
	return d, nil
}

// PlatformInfo implements core.PlatformReporter.
func (d *Driver) PlatformInfo() *core.PlatformInfo {
	return d.info
}

// focused returns the context of the focused page.
func (d *Driver) focused() (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tabs[d.current]
	if d.current == "" || !ok {
		return nil, core.ErrNoSuchWindow.WithMessage("no window is focused")
	}
	return t.ctx, nil
}

// run executes actions on the focused page, bounded by the caller's ctx.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	tabCtx, err := d.focused()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return d.mapError(ctx, chromedp.Run(runCtx, actions...))
}

// Navigate implements core.Driver.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

// FindElements implements core.Driver.
func (d *Driver) FindElements(ctx context.Context, strategy core.Strategy, selector string) ([]core.ElementRef, error) {
	q, err := queryFor(strategy, selector)
	if err != nil {
		return nil, err
	}
	opts := []chromedp.QueryOption{chromedp.AtLeast(0)}
	if q.xpath {
		opts = append(opts, chromedp.BySearch)
	} else {
		opts = append(opts, chromedp.ByQueryAll)
	}

	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(q.sel, &nodes, opts...)); err != nil {
		return nil, err
	}
	refs := make([]core.ElementRef, 0, len(nodes))
	for _, n := range nodes {
		if n.NodeType != cdp.NodeTypeElement {
			continue
		}
		refs = append(refs, core.ElementRef(strconv.FormatInt(int64(n.BackendNodeID), 10)))
	}
	return refs, nil
}

// WindowHandles implements core.Driver.
func (d *Driver) WindowHandles(ctx context.Context) ([]string, error) {
	infos, err := d.targets(ctx)
	if err != nil {
		return nil, err
	}
	handles := make([]string, 0, len(infos))
	for _, t := range infos {
		handles = append(handles, string(t.TargetID))
	}
	return handles, nil
}

func (d *Driver) targets(ctx context.Context) ([]*target.Info, error) {
	runCtx, cancel := context.WithCancel(d.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	infos, err := chromedp.Targets(runCtx)
	if err != nil {
		return nil, d.mapError(ctx, err)
	}
	pages := infos[:0]
	for _, t := range infos {
		if t.Type == "page" {
			pages = append(pages, t)
		}
	}
	return pages, nil
}

// CurrentWindow implements core.Driver.
func (d *Driver) CurrentWindow(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == "" {
		return "", core.ErrNoSuchWindow.WithMessage("no window is focused")
	}
	return string(d.current), nil
}

// SwitchWindow implements core.Driver.
func (d *Driver) SwitchWindow(ctx context.Context, handle string) error {
	infos, err := d.targets(ctx)
	if err != nil {
		return err
	}
	id := target.ID(handle)
	found := false
	for _, t := range infos {
		if t.TargetID == id {
			found = true
			break
		}
	}
	if !found {
		return core.ErrNoSuchWindow.WithDetails(map[string]interface{}{"handle": handle})
	}

	d.mu.Lock()
	if _, ok := d.tabs[id]; !ok {
		tabCtx, cancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(id))
		d.tabs[id] = tab{ctx: tabCtx, cancel: cancel}
	}
	d.current = id
	d.mu.Unlock()

	d.log.Debug("switched window", zap.String("target", handle))
	return d.run(ctx, page.BringToFront())
}

// CloseWindow implements core.Driver.
func (d *Driver) CloseWindow(ctx context.Context) error {
	if err := d.run(ctx, page.Close()); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tabs[d.current]; ok && d.current != d.first {
		t.cancel()
		delete(d.tabs, d.current)
	}
	d.current = ""
	return nil
}

// CurrentURL implements core.Driver.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := d.run(ctx, chromedp.Location(&url))
	return url, err
}

// Title implements core.Driver.
func (d *Driver) Title(ctx context.Context) (string, error) {
	var title string
	err := d.run(ctx, chromedp.Title(&title))
	return title, err
}

// Back implements core.Driver.
func (d *Driver) Back(ctx context.Context) error {
	return d.run(ctx, chromedp.NavigateBack())
}

// ExecuteScript implements core.Driver. Results are returned by value, so a
// script returning a DOM node yields an empty object.
func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...interface{}) (interface{}, error) {
	src, elems, err := scriptSource(script, args)
	if err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		var res interface{}
		err := d.run(ctx, chromedp.Evaluate("("+src+").call(null)", &res))
		return res, err
	}

	var res interface{}
	err = d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		callArgs := make([]*runtime.CallArgument, 0, len(elems))
		var this runtime.RemoteObjectID
		for _, el := range elems {
			obj, err := resolve(ctx, el)
			if err != nil {
				return err
			}
			defer runtime.ReleaseObject(obj.ObjectID).Do(ctx) //nolint:errcheck
			if this == "" {
				this = obj.ObjectID
			}
			callArgs = append(callArgs, &runtime.CallArgument{ObjectID: obj.ObjectID})
		}
		v, exc, err := runtime.CallFunctionOn(src).
			WithObjectID(this).
			WithArguments(callArgs).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("script error: %s", exc.Error())
		}
		return decode(v, &res)
	}))
	return res, err
}

// Click implements core.Driver. It dispatches a real mouse click at the
// element's center so that popups are treated as user-initiated.
func (d *Driver) Click(ctx context.Context, el core.ElementRef) error {
	id, err := backendID(el)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var ok bool
		if err := callOn(ctx, el, jsInteractable, &ok); err != nil {
			return err
		}
		if !ok {
			return core.ErrNotInteractable.WithDetails(map[string]interface{}{"element": string(el)})
		}
		if err := dom.ScrollIntoViewIfNeeded().WithBackendNodeID(id).Do(ctx); err != nil {
			return err
		}
		quads, err := dom.GetContentQuads().WithBackendNodeID(id).Do(ctx)
		if err != nil {
			return err
		}
		if len(quads) == 0 || len(quads[0]) < 8 {
			return core.ErrNotInteractable.WithDetails(map[string]interface{}{"element": string(el)})
		}
		x, y := center(quads[0])
		if err := input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(input.Left).WithClickCount(1).Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(input.Left).WithClickCount(1).Do(ctx)
	}))
}

// SendKeys implements core.Driver.
func (d *Driver) SendKeys(ctx context.Context, el core.ElementRef, text string) error {
	id, err := backendID(el)
	if err != nil {
		return err
	}
	return d.run(ctx,
		dom.Focus().WithBackendNodeID(id),
		chromedp.KeyEvent(translateKeys(text)),
	)
}

// Clear implements core.Driver.
func (d *Driver) Clear(ctx context.Context, el core.ElementRef) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return callOn(ctx, el, jsClear, nil)
	}))
}

// Text implements core.Driver.
func (d *Driver) Text(ctx context.Context, el core.ElementRef) (string, error) {
	var text string
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return callOn(ctx, el, jsText, &text)
	}))
	return text, err
}

// Displayed implements core.Driver.
func (d *Driver) Displayed(ctx context.Context, el core.ElementRef) (bool, error) {
	var shown bool
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return callOn(ctx, el, jsDisplayed, &shown)
	}))
	return shown, err
}

// Enabled implements core.Driver.
func (d *Driver) Enabled(ctx context.Context, el core.ElementRef) (bool, error) {
	var enabled bool
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return callOn(ctx, el, jsEnabled, &enabled)
	}))
	return enabled, err
}

// Close implements core.Driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	for id, t := range d.tabs {
		if id != d.first {
			t.cancel()
		}
	}
	d.tabs = map[target.ID]tab{}
	d.current = ""
	d.mu.Unlock()

	d.browserCancel()
	d.allocCancel()
	return nil
}

func backendID(el core.ElementRef) (cdp.BackendNodeID, error) {
	n, err := strconv.ParseInt(string(el), 10, 64)
	if err != nil || n <= 0 {
		return 0, core.ErrStaleElement.WithMessage(fmt.Sprintf("invalid element reference %q", el))
	}
	return cdp.BackendNodeID(n), nil
}

func resolve(ctx context.Context, el core.ElementRef) (*runtime.RemoteObject, error) {
	id, err := backendID(el)
	if err != nil {
		return nil, err
	}
	return dom.ResolveNode().WithBackendNodeID(id).Do(ctx)
}

// callOn runs fn with the element bound to this and decodes its result into res.
func callOn(ctx context.Context, el core.ElementRef, fn string, res interface{}) error {
	obj, err := resolve(ctx, el)
	if err != nil {
		return err
	}
	defer runtime.ReleaseObject(obj.ObjectID).Do(ctx) //nolint:errcheck

	v, exc, err := runtime.CallFunctionOn(fn).
		WithObjectID(obj.ObjectID).
		WithReturnByValue(true).
		Do(ctx)
	if err != nil {
		return err
	}
	if exc != nil {
		return fmt.Errorf("script error: %s", exc.Error())
	}
	if res == nil {
		return nil
	}
	return decode(v, res)
}

func decode(v *runtime.RemoteObject, res interface{}) error {
	if v == nil || len(v.Value) == 0 {
		return nil
	}
	return json.Unmarshal([]byte(v.Value), res)
}

func center(q dom.Quad) (float64, float64) {
	var x, y float64
	for i := 0; i < 8; i += 2 {
		x += q[i]
		y += q[i+1]
	}
	return x / 4, y / 4
}

// mapError translates chromedp failures into the engine's error taxonomy.
func (d *Driver) mapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var ee *core.ExecutionError
	if errors.As(err, &ee) {
		return ee
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if d.browserCtx.Err() != nil {
		return core.ErrSessionLost.WithCause(err)
	}
	return classify(err)
}

func classify(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "No node with given id"),
		strings.Contains(msg, "Could not find node with given id"),
		strings.Contains(msg, "Node is detached"),
		strings.Contains(msg, "Cannot find context with specified id"):
		return core.ErrStaleElement.WithCause(err)
	case strings.Contains(msg, "No target with given id"),
		strings.Contains(msg, "target closed"):
		return core.ErrNoSuchWindow.WithCause(err)
	case strings.Contains(msg, "invalid context"),
		strings.Contains(msg, "websocket: close"):
		return core.ErrSessionLost.WithCause(err)
	}
	return fmt.Errorf("cdp: %w", err)
}

var (
	_ core.Driver           = (*Driver)(nil)
	_ core.PlatformReporter = (*Driver)(nil)
)
