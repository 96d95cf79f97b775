// Package cli provides the command-line interface for steadyhand.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "Path to steadyhand.yaml (default: ./steadyhand.yaml when present)",
		EnvVars: []string{"STEADYHAND_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "driver",
		Aliases: []string{"d"},
		Usage:   "Automation backend (webdriver, cdp, playwright)",
		EnvVars: []string{"STEADYHAND_DRIVER"},
	},
	&cli.StringFlag{
		Name:    "driver-url",
		Usage:   "WebDriver endpoint, CDP debugger URL or playwright server URL",
		EnvVars: []string{"STEADYHAND_DRIVER_URL"},
	},
	&cli.StringFlag{
		Name:    "browser",
		Aliases: []string{"b"},
		Usage:   "Browser to drive (chrome, firefox, chromium, webkit)",
		EnvVars: []string{"STEADYHAND_BROWSER"},
	},
	&cli.StringFlag{
		Name:    "chrome-path",
		Usage:   "Chrome executable for the cdp driver",
		EnvVars: []string{"STEADYHAND_CHROME"},
	},
	&cli.BoolFlag{
		Name:    "headless",
		Usage:   "Launch the browser headless",
		EnvVars: []string{"STEADYHAND_HEADLESS"},
	},
	&cli.BoolFlag{
		Name:  "install-browsers",
		Usage: "Install playwright browsers before launching (playwright only)",
	},
	&cli.DurationFlag{
		Name:    "timeout",
		Usage:   "Default step timeout",
		EnvVars: []string{"STEADYHAND_TIMEOUT"},
	},
	&cli.IntFlag{
		Name:    "attempts",
		Usage:   "Default attempts per step",
		EnvVars: []string{"STEADYHAND_ATTEMPTS"},
	},
	&cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		EnvVars: []string{"STEADYHAND_LOG_LEVEL"},
	},
	&cli.StringFlag{
		Name:  "log-format",
		Usage: "Console log format (console, json)",
	},
	&cli.StringFlag{
		Name:  "log-file",
		Usage: "Also write JSON logs to this file (rotated)",
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable debug logging",
		EnvVars: []string{"STEADYHAND_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the command-line application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "steadyhand",
		Usage:   "Resilient browser automation runner",
		Version: Version,
		Description: `steadyhand runs YAML browser scenarios with fallback locators,
condition waits, new-window/same-tab coordination and retries.

Examples:
  steadyhand run scenarios/
  steadyhand --driver cdp --headless run footer.yaml -e DOMAIN=x.com
  steadyhand validate scenarios/
  steadyhand probe --url https://example.test/ --css a.twitter --link-text Twitter`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			validateCommand,
			probeCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
