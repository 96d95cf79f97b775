package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devicelab-dev/steadyhand/pkg/config"
	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/driver/cdp"
	"github.com/devicelab-dev/steadyhand/pkg/driver/playwright"
	"github.com/devicelab-dev/steadyhand/pkg/driver/webdriver"
	"github.com/devicelab-dev/steadyhand/pkg/metrics"
	"github.com/devicelab-dev/steadyhand/pkg/scenario"
	"github.com/devicelab-dev/steadyhand/pkg/session"
)

// launchOptions are driver settings that only exist as flags.
type launchOptions struct {
	ChromePath string
	Install    bool
}

func launchOptionsFrom(c *cli.Context) launchOptions {
	return launchOptions{
		ChromePath: c.String("chrome-path"),
		Install:    c.Bool("install-browsers"),
	}
}

// openDriver starts the backend selected by cfg.Driver.Kind.
func openDriver(ctx context.Context, cfg *config.Config, lo launchOptions, log *zap.Logger) (core.Driver, error) {
	dc := cfg.Driver
	switch dc.Kind {
	case config.DriverWebDriver:
		return webdriver.Open(ctx, dc.URL, webdriverCapabilities(dc))
	case config.DriverCDP:
		return cdp.Open(ctx, cdp.Options{
			RemoteURL: dc.URL,
			ExecPath:  lo.ChromePath,
			Headless:  dc.Headless,
			Logger:    log,
		})
	case config.DriverPlaywright:
		return playwright.Open(ctx, playwright.Options{
			Browser:   playwrightBrowser(dc.Browser),
			RemoteURL: dc.URL,
			Headless:  dc.Headless,
			Install:   lo.Install,
			DriverDir: config.GetBrowsersDir(config.DriverPlaywright),
			Logger:    log,
		})
	}
	return nil, fmt.Errorf("unknown driver kind %q", dc.Kind)
}

// webdriverCapabilities builds the alwaysMatch capabilities. Explicit
// capabilities from the config are never overwritten.
func webdriverCapabilities(dc config.Driver) map[string]interface{} {
	caps := make(map[string]interface{}, len(dc.Capabilities)+2)
	for k, v := range dc.Capabilities {
		caps[k] = v
	}
	if _, ok := caps["browserName"]; !ok && dc.Browser != "" {
		caps["browserName"] = dc.Browser
	}
	if !dc.Headless {
		return caps
	}
	switch dc.Browser {
	case "chrome", "chromium":
		if _, ok := caps["goog:chromeOptions"]; !ok {
			caps["goog:chromeOptions"] = map[string]interface{}{"args": []string{"--headless=new"}}
		}
	case "firefox":
		if _, ok := caps["moz:firefoxOptions"]; !ok {
			caps["moz:firefoxOptions"] = map[string]interface{}{"args": []string{"-headless"}}
		}
	}
	return caps
}

// playwrightBrowser maps browser names to playwright engines.
func playwrightBrowser(name string) string {
	switch name {
	case "", "chrome", "chromium", "edge":
		return "chromium"
	}
	return name
}

// openSession opens the driver and binds a session to it.
func openSession(ctx context.Context, cfg *config.Config, lo launchOptions, rec *metrics.Recorder, log *zap.Logger) (*session.Session, error) {
	policy, err := scenario.Policy(cfg.Defaults)
	if err != nil {
		return nil, err
	}

	d, err := openDriver(ctx, cfg, lo, log)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s driver: %w", cfg.Driver.Kind, err)
	}

	s, err := session.Open(ctx, d, session.Options{
		Timeout: cfg.Defaults.Timeout,
		Poll:    cfg.Defaults.Poll,
		Policy:  policy,
		Logger:  log,
		Metrics: rec,
	})
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}
