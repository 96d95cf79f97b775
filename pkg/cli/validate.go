package cli

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/steadyhand/pkg/validator"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check scenario files without starting a browser",
	ArgsUsage: "<scenario-file-or-folder>...",
	Flags:     tagFlags,
	Action:    validateScenarios,
}

func validateScenarios(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one scenario file or folder is required")
	}

	cfg, err := loadSettings(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	res := validator.New(c.StringSlice("include-tags"), c.StringSlice("exclude-tags"), cfg.Defaults).
		Validate(c.Args().Slice()...)

	w := c.App.Writer
	for _, f := range res.Files {
		fmt.Fprintf(w, "  %s✓%s %s\n", color(colorGreen), color(colorReset), f)
	}
	for _, f := range res.Skipped {
		fmt.Fprintf(w, "  %s-%s %s %s(skipped by tags)%s\n", color(colorCyan), color(colorReset), f, color(colorDim), color(colorReset))
	}
	if !res.IsValid() {
		printValidationErrors(w, res)
		return fmt.Errorf("%d error(s) found", len(res.Errors))
	}
	fmt.Fprintf(w, "\n  %d scenario(s) valid\n", len(res.Files))
	return nil
}

func printValidationErrors(w io.Writer, res *validator.Result) {
	for _, err := range res.Errors {
		fmt.Fprintf(w, "  %s✗%s %v\n", color(colorRed), color(colorReset), err)
	}
}
