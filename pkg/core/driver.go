package core

import (
	"context"
	"fmt"
)

// Strategy is the kind of selector a locator candidate uses.
type Strategy string

// Strategy values.
const (
	StrategyID              Strategy = "id"
	StrategyCSS             Strategy = "css"
	StrategyLinkText        Strategy = "linkText"
	StrategyPartialLinkText Strategy = "partialLinkText"
	StrategyXPath           Strategy = "xpath"
)

// Strategies lists every supported strategy in a stable order.
var Strategies = []Strategy{
	StrategyID,
	StrategyCSS,
	StrategyLinkText,
	StrategyPartialLinkText,
	StrategyXPath,
}

// ParseStrategy converts a user-facing name into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "id":
		return StrategyID, nil
	case "css", "css selector":
		return StrategyCSS, nil
	case "linkText", "link text":
		return StrategyLinkText, nil
	case "partialLinkText", "partial link text":
		return StrategyPartialLinkText, nil
	case "xpath":
		return StrategyXPath, nil
	}
	return "", ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown locator strategy %q", s))
}

// ElementRef is a driver-specific reference to a DOM element. It is only
// meaningful to the driver that produced it.
type ElementRef string

// Driver is the automation capability the engine consumes.
// Implementations: W3C WebDriver, Chrome DevTools (chromedp), Playwright, mock.
// The engine decides what to wait for and when to retry; a Driver only
// executes single commands and must not wait or retry on its own.
type Driver interface {
	// Navigate loads url in the current window.
	Navigate(ctx context.Context, url string) error

	// FindElements returns every element currently matching selector.
	// No match is an empty slice and a nil error.
	FindElements(ctx context.Context, strategy Strategy, selector string) ([]ElementRef, error)

	// WindowHandles lists all open top-level windows/tabs.
	WindowHandles(ctx context.Context) ([]string, error)

	// CurrentWindow returns the handle of the focused window.
	CurrentWindow(ctx context.Context) (string, error)

	// SwitchWindow focuses the window with the given handle.
	SwitchWindow(ctx context.Context, handle string) error

	// CloseWindow closes the focused window. Focus is undefined afterwards
	// until SwitchWindow is called.
	CloseWindow(ctx context.Context) error

	// CurrentURL returns the location of the focused window.
	CurrentURL(ctx context.Context) (string, error)

	// Title returns the document title of the focused window.
	Title(ctx context.Context) (string, error)

	// Back navigates the focused window one step back in history.
	Back(ctx context.Context) error

	// ExecuteScript runs a synchronous script body in the page. The body may
	// use `return` and `arguments`; ElementRef arguments are passed as elements.
	ExecuteScript(ctx context.Context, script string, args ...interface{}) (interface{}, error)

	// Element operations
	Click(ctx context.Context, el ElementRef) error
	SendKeys(ctx context.Context, el ElementRef, text string) error
	Clear(ctx context.Context, el ElementRef) error
	Text(ctx context.Context, el ElementRef) (string, error)
	Displayed(ctx context.Context, el ElementRef) (bool, error)
	Enabled(ctx context.Context, el ElementRef) (bool, error)

	// Close ends the driver session.
	Close() error
}

// PlatformInfo describes the browser behind a driver.
type PlatformInfo struct {
	Driver         string `json:"driver"`                   // webdriver, cdp, playwright, mock
	BrowserName    string `json:"browserName,omitempty"`    // chrome, firefox, chromium
	BrowserVersion string `json:"browserVersion,omitempty"` // reported by the backend
	SessionID      string `json:"sessionId,omitempty"`
	Headless       bool   `json:"headless,omitempty"`
}

// PlatformReporter is implemented by drivers that can describe themselves.
type PlatformReporter interface {
	PlatformInfo() *PlatformInfo
}

// ExecutedBy indicates what component executed a step
type ExecutedBy string

// ExecutedBy values
const (
	ExecutedByPipeline ExecutedBy = "pipeline" // Went through resolve/wait/act
	ExecutedByRunner   ExecutedBy = "runner"   // Handled by the scenario runner (hooks, variables)
)
