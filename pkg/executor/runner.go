// Package executor runs parsed scenarios through a browser session.
package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devicelab-dev/steadyhand/pkg/config"
	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/logger"
	"github.com/devicelab-dev/steadyhand/pkg/scenario"
	"github.com/devicelab-dev/steadyhand/pkg/session"
)

// Phase names the part of a scenario a step belongs to.
type Phase string

// Phases of a scenario.
const (
	PhaseBefore Phase = "before"
	PhaseSteps  Phase = "steps"
	PhaseAfter  Phase = "after"
)

// RunnerConfig configures the scenario runner.
type RunnerConfig struct {
	Defaults   config.Defaults   // project defaults; scenario defaults override them
	Env        map[string]string // variables visible to every scenario
	StopOnFail bool              // skip remaining scenarios after a failure

	Logger *zap.Logger

	// Live progress callbacks
	OnScenarioStart func(idx, total int, name, file string)
	OnStepComplete  func(phase Phase, res *core.StepResult)
	OnScenarioEnd   func(res *core.ScenarioResult)
}

// Runner runs scenarios sequentially on one session.
type Runner struct {
	config  RunnerConfig
	session *session.Session
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a new Runner.
func New(s *session.Session, cfg RunnerConfig) *Runner {
	return &Runner{
		config:  cfg,
		session: s,
		logger:  logger.Or(cfg.Logger).Named("executor"),
		now:     time.Now,
	}
}

// Run executes every scenario. A lost session aborts the suite; remaining
// scenarios are reported as skipped.
func (r *Runner) Run(ctx context.Context, scenarios []*scenario.Scenario) *core.SuiteResult {
	suite := &core.SuiteResult{
		RunID:     uuid.NewString(),
		StartTime: r.now(),
	}
	log := r.logger.With(zap.String("run", suite.RunID))

	stop := ""
	for i, s := range scenarios {
		if stop == "" && ctx.Err() != nil {
			stop = "run cancelled"
		}
		if stop != "" {
			suite.Scenarios = append(suite.Scenarios, skippedScenario(s, stop))
			continue
		}

		sr := &ScenarioRunner{
			ctx:      ctx,
			scenario: s,
			session:  r.session,
			config:   r.config,
			logger:   log.With(zap.String("scenario", s.DisplayName())),
			now:      r.now,
			index:    i,
			total:    len(scenarios),
		}
		res := sr.Run()
		suite.Scenarios = append(suite.Scenarios, *res)

		switch {
		case res.Aborted:
			suite.Aborted = true
			stop = "session lost"
			log.Error("session lost, aborting remaining scenarios", zap.String("error", res.Error))
		case r.config.StopOnFail && res.Status == core.StatusFailed:
			stop = "stopped after failure"
		}
	}

	suite.Duration = r.now().Sub(suite.StartTime)
	suite.ComputeSummary()
	log.Info("run finished",
		zap.Int("scenarios", suite.TotalScenarios),
		zap.Int("passed", suite.PassedScenarios),
		zap.Int("failed", suite.FailedScenarios),
		zap.Int("skipped", suite.SkippedScenarios),
		zap.Bool("aborted", suite.Aborted),
		zap.Duration("duration", suite.Duration))
	return suite
}

func skippedScenario(s *scenario.Scenario, reason string) core.ScenarioResult {
	res := core.ScenarioResult{
		Name:     s.DisplayName(),
		FilePath: s.SourcePath,
		Tags:     s.Tags,
		Status:   core.StatusSkipped,
		Error:    reason,
	}
	for i, spec := range s.Steps {
		res.Steps = append(res.Steps, skippedStep(i, spec))
	}
	res.ComputeSummary()
	return res
}
