package cli

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/locator"
	"github.com/devicelab-dev/steadyhand/pkg/logger"
)

// probeStrategies lists the candidate flags in the order they are tried.
var probeStrategies = []struct {
	flag     string
	strategy core.Strategy
}{
	{"id", core.StrategyID},
	{"css", core.StrategyCSS},
	{"xpath", core.StrategyXPath},
	{"link-text", core.StrategyLinkText},
	{"partial-link-text", core.StrategyPartialLinkText},
}

var probeCommand = &cli.Command{
	Name:  "probe",
	Usage: "Report how many elements each locator candidate matches on a page",
	Description: `Open a page and count matches for every candidate. Use it to find
out which fallback of a locator still works after the page changed.

Candidates are tried in this order: --id, --css, --xpath, --link-text,
--partial-link-text. Each flag may be repeated.

Example:
  steadyhand probe --url https://example.test/ --css a.twitter --link-text Twitter`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "url",
			Usage:    "Page to open",
			Required: true,
		},
		&cli.StringSliceFlag{Name: "id", Usage: "Candidate by id attribute"},
		&cli.StringSliceFlag{Name: "css", Usage: "Candidate by CSS selector"},
		&cli.StringSliceFlag{Name: "xpath", Usage: "Candidate by XPath"},
		&cli.StringSliceFlag{Name: "link-text", Usage: "Candidate by exact link text"},
		&cli.StringSliceFlag{Name: "partial-link-text", Usage: "Candidate by partial link text"},
	},
	Action: probePage,
}

func probeCandidates(c *cli.Context) (locator.Spec, error) {
	var spec locator.Spec
	for _, ps := range probeStrategies {
		for _, sel := range c.StringSlice(ps.flag) {
			spec = append(spec, locator.Candidate{Strategy: ps.strategy, Selector: sel})
		}
	}
	if len(spec) == 0 {
		return nil, fmt.Errorf("at least one candidate is required (--id, --css, --xpath, --link-text, --partial-link-text)")
	}
	return spec, spec.Validate()
}

func probePage(c *cli.Context) error {
	spec, err := probeCandidates(c)
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

	ctx := c.Context
	sess, err := openSession(ctx, cfg, launchOptionsFrom(c), nil, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("failed to close session", zap.Error(err))
		}
	}()

	url := c.String("url")
	if err := sess.Driver().Navigate(ctx, url); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}

	results, err := sess.Probe(ctx, spec)
	if err != nil {
		return err
	}
	printProbe(c.App.Writer, url, results)
	return nil
}

func printProbe(w io.Writer, url string, results []locator.ProbeResult) {
	fmt.Fprintf(w, "\n  %s%s%s\n", color(colorBold), url, color(colorReset))
	winner := -1
	for i, r := range results {
		if winner < 0 && r.Err == nil && r.Matches > 0 {
			winner = i
		}
	}
	for i, r := range results {
		mark, col := " ", color(colorGray)
		switch {
		case r.Err != nil:
			mark, col = "✗", color(colorRed)
		case i == winner:
			mark, col = "→", color(colorGreen)
		case r.Matches > 0:
			mark, col = "✓", ""
		}
		line := fmt.Sprintf("%d match(es)", r.Matches)
		if r.Err != nil {
			line = r.Err.Error()
		}
		fmt.Fprintf(w, "  %s%s %-50s %s%s\n", col, mark, r.Candidate.String(), line, color(colorReset))
	}
	if winner < 0 {
		fmt.Fprintf(w, "\n  %sno candidate matched%s\n", color(colorYellow), color(colorReset))
	}
}
