package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/executor"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Steps slower than this are flagged in the live output
const slowThreshold = 5 * time.Second

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\n  %ssteadyhand%s %s%s%s\n", color(colorBold), color(colorReset), color(colorDim), Version, color(colorReset))
}

// progress prints live results as the executor reports them.
type progress struct {
	w io.Writer
}

func (p *progress) scenarioStart(idx, total int, name, file string) {
	fmt.Fprintf(p.w, "\n  %s[%d/%d]%s %s%s%s (%s)\n",
		color(colorCyan), idx+1, total, color(colorReset),
		color(colorBold), name, color(colorReset), file)
	fmt.Fprintln(p.w, strings.Repeat("─", 60))
}

func (p *progress) stepComplete(phase executor.Phase, res *core.StepResult) {
	prefix := ""
	if phase != executor.PhaseSteps {
		prefix = string(phase) + ": "
	}
	label := prefix + res.Label

	var icon, c string
	switch res.Status {
	case core.StatusPassed:
		icon, c = "✓", colorGreen
	case core.StatusWarned:
		icon, c = "⚠", colorYellow
	case core.StatusSkipped:
		icon, c = "-", colorGray
	default:
		icon, c = "✗", colorRed
	}

	extra := ""
	if res.Attempt > 1 {
		extra += fmt.Sprintf(" %s(attempt %d/%d)%s", color(colorDim), res.Attempt, res.MaxAttempts, color(colorReset))
	}
	if res.Window != "" {
		extra += fmt.Sprintf(" %s[%s]%s", color(colorDim), res.Window, color(colorReset))
	}
	if res.Duration >= slowThreshold {
		extra += fmt.Sprintf(" %sslow%s", color(colorYellow), color(colorReset))
	}

	fmt.Fprintf(p.w, "  %s%s%s %s %s(%s)%s%s\n",
		color(c), icon, color(colorReset), label,
		color(colorGray), formatDuration(res.Duration), color(colorReset), extra)
	if res.Error != "" && res.Status != core.StatusSkipped {
		fmt.Fprintf(p.w, "    %s%s%s\n", color(colorRed), res.Error, color(colorReset))
	}
}

func (p *progress) scenarioEnd(res *core.ScenarioResult) {
	if res.Aborted {
		fmt.Fprintf(p.w, "  %s✗ session lost, remaining scenarios skipped%s\n", color(colorRed), color(colorReset))
	}
}

// printSummary prints the per-scenario table and totals.
func printSummary(w io.Writer, result *core.SuiteResult) {
	var total, passed, failed, skipped int
	for _, sc := range result.Scenarios {
		total += sc.TotalSteps
		passed += sc.PassedSteps
		failed += sc.FailedSteps
		skipped += sc.SkippedSteps
	}

	fmt.Fprintln(w)
	if passed > 0 {
		fmt.Fprintf(w, "  %s%d steps passing%s (%s)\n", color(colorGreen), passed, color(colorReset), formatDuration(result.Duration))
	}
	if failed > 0 {
		fmt.Fprintf(w, "  %s%d steps failing%s\n", color(colorRed), failed, color(colorReset))
	}
	if skipped > 0 {
		fmt.Fprintf(w, "  %s%d steps skipped%s\n", color(colorCyan), skipped, color(colorReset))
	}
	fmt.Fprintln(w)

	tableWidth := 92
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
	fmt.Fprintf(w, "  %-42s %6s %7s %6s %6s %6s %10s\n", "Scenario", "Status", "Steps", "Pass", "Fail", "Skip", "Duration")
	fmt.Fprintln(w, strings.Repeat("─", tableWidth))

	for _, sc := range result.Scenarios {
		status, statusColor := statusLabel(sc.Status)

		// Truncate name if too long
		name := sc.Name
		if len(name) > 42 {
			name = name[:39] + "..."
		}

		fmt.Fprintf(w, "  %-42s %s%6s%s %7d %6d %6d %6d %10s\n",
			name, color(statusColor), status, color(colorReset),
			sc.TotalSteps, sc.PassedSteps, sc.FailedSteps, sc.SkippedSteps,
			formatDuration(sc.Duration))
	}

	fmt.Fprintln(w, strings.Repeat("─", tableWidth))
	statusStr := fmt.Sprintf("%d/%d", result.PassedScenarios, result.TotalScenarios)
	statusColor := colorGreen
	if result.FailedScenarios > 0 || result.Aborted {
		statusColor = colorRed
	}
	fmt.Fprintf(w, "  %s%-42s%s %s%6s%s %7d %6d %6d %6d %10s\n",
		color(colorBold), "TOTAL", color(colorReset),
		color(statusColor), statusStr, color(colorReset),
		total, passed, failed, skipped,
		formatDuration(result.Duration))
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
}

func statusLabel(s core.StepStatus) (string, string) {
	switch s {
	case core.StatusFailed, core.StatusErrored:
		return "✗ FAIL", colorRed
	case core.StatusSkipped:
		return "- SKIP", colorCyan
	case core.StatusWarned:
		return "⚠ WARN", colorYellow
	}
	return "✓ PASS", colorGreen
}

// formatDuration shows milliseconds below one second, seconds below one
// minute and minutes otherwise.
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
