package webdriver

import (
	"context"
	"fmt"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/driver/internal/query"
)

// Driver implements core.Driver over a WebDriver session.
type Driver struct {
	client *Client
	info   *core.PlatformInfo
}

// Open creates a new session on serverURL and returns a driver for it.
func Open(ctx context.Context, serverURL string, capabilities map[string]interface{}) (*Driver, error) {
	client := NewClient(serverURL)
	if err := client.Connect(ctx, capabilities); err != nil {
		return nil, err
	}
	return NewDriver(client), nil
}

// NewDriver wraps a connected client.
func NewDriver(client *Client) *Driver {
	return &Driver{
		client: client,
		info: &core.PlatformInfo{
			Driver:         "webdriver",
			BrowserName:    client.Capability("browserName"),
			BrowserVersion: client.Capability("browserVersion"),
			SessionID:      client.SessionID(),
		},
	}
}

// PlatformInfo implements core.PlatformReporter.
func (d *Driver) PlatformInfo() *core.PlatformInfo {
	return d.info
}

// locatorFor converts a strategy into a W3C "using" value and selector.
// W3C has no id strategy; it is expressed as an attribute selector.
func locatorFor(strategy core.Strategy, selector string) (string, string, error) {
	switch strategy {
	case core.StrategyID:
		return "css selector", query.IDSelector(selector), nil
	case core.StrategyCSS:
		return "css selector", selector, nil
	case core.StrategyLinkText:
		return "link text", selector, nil
	case core.StrategyPartialLinkText:
		return "partial link text", selector, nil
	case core.StrategyXPath:
		return "xpath", selector, nil
	}
	return "", "", core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unsupported strategy %q", strategy))
}

// Navigate implements core.Driver.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	_, err := d.client.post(ctx, d.client.sessionPath()+"/url", map[string]interface{}{"url": url})
	return err
}

// FindElements implements core.Driver.
func (d *Driver) FindElements(ctx context.Context, strategy core.Strategy, selector string) ([]core.ElementRef, error) {
	using, value, err := locatorFor(strategy, selector)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.post(ctx, d.client.sessionPath()+"/elements", map[string]interface{}{
		"using": using,
		"value": value,
	})
	if err != nil {
		if core.CategoryOf(err) == core.ErrCategoryNotFound {
			return nil, nil
		}
		return nil, err
	}

	list, ok := resp.([]interface{})
	if !ok {
		return nil, nil
	}
	refs := make([]core.ElementRef, 0, len(list))
	for _, item := range list {
		if id := extractElementID(item); id != "" {
			refs = append(refs, core.ElementRef(id))
		}
	}
	return refs, nil
}

// WindowHandles implements core.Driver.
func (d *Driver) WindowHandles(ctx context.Context) ([]string, error) {
	resp, err := d.client.get(ctx, d.client.sessionPath()+"/window/handles")
	if err != nil {
		return nil, err
	}
	list, _ := resp.([]interface{})
	handles := make([]string, 0, len(list))
	for _, h := range list {
		if s, ok := h.(string); ok {
			handles = append(handles, s)
		}
	}
	return handles, nil
}

// CurrentWindow implements core.Driver.
func (d *Driver) CurrentWindow(ctx context.Context) (string, error) {
	return d.getString(ctx, "/window")
}

// SwitchWindow implements core.Driver.
func (d *Driver) SwitchWindow(ctx context.Context, handle string) error {
	_, err := d.client.post(ctx, d.client.sessionPath()+"/window", map[string]interface{}{"handle": handle})
	return err
}

// CloseWindow implements core.Driver.
func (d *Driver) CloseWindow(ctx context.Context) error {
	_, err := d.client.delete(ctx, d.client.sessionPath()+"/window")
	return err
}

// CurrentURL implements core.Driver.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	return d.getString(ctx, "/url")
}

// Title implements core.Driver.
func (d *Driver) Title(ctx context.Context) (string, error) {
	return d.getString(ctx, "/title")
}

// Back implements core.Driver.
func (d *Driver) Back(ctx context.Context) error {
	_, err := d.client.post(ctx, d.client.sessionPath()+"/back", nil)
	return err
}

// ExecuteScript implements core.Driver. ElementRef arguments are sent as
// W3C element references and element results come back as ElementRef.
func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...interface{}) (interface{}, error) {
	wireArgs := make([]interface{}, len(args))
	for i, a := range args {
		if ref, ok := a.(core.ElementRef); ok {
			wireArgs[i] = map[string]interface{}{w3cElementKey: string(ref)}
			continue
		}
		wireArgs[i] = a
	}
	resp, err := d.client.post(ctx, d.client.sessionPath()+"/execute/sync", map[string]interface{}{
		"script": script,
		"args":   wireArgs,
	})
	if err != nil {
		return nil, err
	}
	return fromWire(resp), nil
}

func fromWire(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		if id := extractElementID(t); id != "" {
			return core.ElementRef(id)
		}
		for k, item := range t {
			t[k] = fromWire(item)
		}
		return t
	case []interface{}:
		for i, item := range t {
			t[i] = fromWire(item)
		}
		return t
	}
	return v
}

// Click implements core.Driver.
func (d *Driver) Click(ctx context.Context, el core.ElementRef) error {
	_, err := d.client.post(ctx, d.client.elementPath(string(el))+"/click", nil)
	return err
}

// SendKeys implements core.Driver.
func (d *Driver) SendKeys(ctx context.Context, el core.ElementRef, text string) error {
	_, err := d.client.post(ctx, d.client.elementPath(string(el))+"/value", map[string]interface{}{"text": text})
	return err
}

// Clear implements core.Driver.
func (d *Driver) Clear(ctx context.Context, el core.ElementRef) error {
	_, err := d.client.post(ctx, d.client.elementPath(string(el))+"/clear", nil)
	return err
}

// Text implements core.Driver.
func (d *Driver) Text(ctx context.Context, el core.ElementRef) (string, error) {
	resp, err := d.client.get(ctx, d.client.elementPath(string(el))+"/text")
	if err != nil {
		return "", err
	}
	s, _ := resp.(string)
	return s, nil
}

// Displayed implements core.Driver.
func (d *Driver) Displayed(ctx context.Context, el core.ElementRef) (bool, error) {
	return d.getBool(ctx, d.client.elementPath(string(el))+"/displayed")
}

// Enabled implements core.Driver.
func (d *Driver) Enabled(ctx context.Context, el core.ElementRef) (bool, error) {
	return d.getBool(ctx, d.client.elementPath(string(el))+"/enabled")
}

// Close implements core.Driver.
func (d *Driver) Close() error {
	return d.client.Disconnect(context.Background())
}

func (d *Driver) getString(ctx context.Context, suffix string) (string, error) {
	resp, err := d.client.get(ctx, d.client.sessionPath()+suffix)
	if err != nil {
		return "", err
	}
	s, _ := resp.(string)
	return s, nil
}

func (d *Driver) getBool(ctx context.Context, path string) (bool, error) {
	resp, err := d.client.get(ctx, path)
	if err != nil {
		return false, err
	}
	b, _ := resp.(bool)
	return b, nil
}

var _ core.Driver = (*Driver)(nil)
