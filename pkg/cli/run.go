package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devicelab-dev/steadyhand/pkg/config"
	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/executor"
	"github.com/devicelab-dev/steadyhand/pkg/logger"
	"github.com/devicelab-dev/steadyhand/pkg/metrics"
	"github.com/devicelab-dev/steadyhand/pkg/report"
	"github.com/devicelab-dev/steadyhand/pkg/validator"
)

var tagFlags = []cli.Flag{
	&cli.StringSliceFlag{
		Name:  "include-tags",
		Usage: "Only include scenarios with these tags",
	},
	&cli.StringSliceFlag{
		Name:  "exclude-tags",
		Usage: "Exclude scenarios with these tags",
	},
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run scenarios against a browser",
	ArgsUsage: "<scenario-file-or-folder>...",
	Description: `Run one or more scenario files. Folders are searched recursively
for .yaml/.yml files. Every file is validated before the browser starts.

Examples:
  steadyhand run footer.yaml
  steadyhand run scenarios/ -e BASE_URL=https://staging.example.test
  steadyhand --driver playwright --headless run scenarios/ --include-tags smoke
  steadyhand run scenarios/ --metrics-addr :9464`,
	Flags: append([]cli.Flag{
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Variables (KEY=VALUE)",
		},
		&cli.BoolFlag{
			Name:  "stop-on-fail",
			Usage: "Skip remaining scenarios after the first failure",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for reports (default: ./reports)",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Don't create timestamp subfolder (requires --output)",
		},
		&cli.BoolFlag{
			Name:  "allure",
			Usage: "Also write Allure results to <output>/allure-results",
		},
		&cli.StringFlag{
			Name:    "metrics-addr",
			Usage:   "Serve Prometheus metrics on this address while running",
			EnvVars: []string{"STEADYHAND_METRICS_ADDR"},
		},
	}, tagFlags...),
	Action: runScenarios,
}

func runScenarios(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one scenario file or folder is required")
	}
	outputDir, err := resolveOutputDir(c.String("output"), c.Bool("flatten"))
	if err != nil {
		return err
	}

	cfg, err := loadSettings(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := initLogging(cfg); err != nil {
		return err
	}
	defer logger.Close()
	log := logger.L()

	v := validator.New(c.StringSlice("include-tags"), c.StringSlice("exclude-tags"), cfg.Defaults)
	checked := v.Validate(c.Args().Slice()...)
	if !checked.IsValid() {
		printValidationErrors(c.App.Writer, checked)
		return fmt.Errorf("scenario validation failed with %d error(s)", len(checked.Errors))
	}
	if len(checked.Scenarios) == 0 {
		return fmt.Errorf("no scenarios to run (%d skipped by tags)", len(checked.Skipped))
	}

	// Cancel the run on Ctrl+C; the session is still closed on the way out
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := metrics.New()
	if cfg.Metrics.Addr != "" {
		srv, err := serveMetrics(cfg.Metrics.Addr, rec, log)
		if err != nil {
			return fmt.Errorf("failed to serve metrics: %w", err)
		}
		defer srv.Close()
	}

	w := c.App.Writer
	printBanner(w)
	fmt.Fprintf(w, "  %sDriver:%s %s (%s)\n", color(colorDim), color(colorReset), cfg.Driver.Kind, cfg.Driver.Browser)

	sess, err := openSession(ctx, cfg, launchOptionsFrom(c), rec, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("failed to close session", zap.Error(err))
		}
	}()

	reports, err := report.NewWriter(outputDir, runnerInfo(cfg, sess.PlatformInfo()), log)
	if err != nil {
		return err
	}

	out := &progress{w: w}
	runner := executor.New(sess, executor.RunnerConfig{
		Defaults:   cfg.Defaults,
		Env:        cfg.Env,
		StopOnFail: c.Bool("stop-on-fail"),
		Logger:     log,
		OnScenarioStart: func(idx, total int, name, file string) {
			out.scenarioStart(idx, total, name, file)
			reports.ScenarioStarted(idx, total, name, file)
		},
		OnStepComplete: out.stepComplete,
		OnScenarioEnd: func(res *core.ScenarioResult) {
			out.scenarioEnd(res)
			reports.ScenarioFinished(res)
		},
	})
	result := runner.Run(ctx, checked.Scenarios)

	printSummary(w, result)
	if err := reports.Finish(result); err != nil {
		fmt.Fprintf(w, "  %s⚠%s Warning: failed to write report: %v\n", color(colorYellow), color(colorReset), err)
	} else if c.Bool("allure") {
		if err := report.GenerateAllure(outputDir); err != nil {
			fmt.Fprintf(w, "  %s⚠%s Warning: failed to generate Allure results: %v\n", color(colorYellow), color(colorReset), err)
		}
	}
	fmt.Fprintf(w, "\n  Report: %s\n", outputDir)
	if !result.Success() {
		if result.Aborted {
			return fmt.Errorf("run aborted: browser session lost")
		}
		return fmt.Errorf("%d of %d scenario(s) failed", result.FailedScenarios, result.TotalScenarios)
	}
	return nil
}

// resolveOutputDir returns the report directory: <output>/<timestamp>, or
// <output> itself with --flatten.
func resolveOutputDir(output string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = "./reports"
	}

	if flatten {
		return filepath.Clean(baseDir), nil
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(baseDir, timestamp), nil
}

func runnerInfo(cfg *config.Config, pi *core.PlatformInfo) report.RunnerInfo {
	info := report.RunnerInfo{
		Version:  Version,
		Driver:   cfg.Driver.Kind,
		Browser:  cfg.Driver.Browser,
		Headless: cfg.Driver.Headless,
	}
	if pi != nil {
		if pi.BrowserName != "" {
			info.Browser = pi.BrowserName
		}
		info.BrowserVersion = pi.BrowserVersion
	}
	return info
}
