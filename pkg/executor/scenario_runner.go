package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/jsengine"
	"github.com/devicelab-dev/steadyhand/pkg/pipeline"
	"github.com/devicelab-dev/steadyhand/pkg/retry"
	"github.com/devicelab-dev/steadyhand/pkg/scenario"
	"github.com/devicelab-dev/steadyhand/pkg/session"
)

// ScenarioRunner executes a single scenario: before hooks, steps, then
// after hooks, which run even when a step failed.
type ScenarioRunner struct {
	ctx      context.Context
	scenario *scenario.Scenario
	session  *session.Session
	config   RunnerConfig
	logger   *zap.Logger
	now      func() time.Time
	index    int
	total    int

	js      *jsengine.Engine
	builder scenario.Builder
	policy  *retry.Policy
}

// Run executes the scenario.
func (sr *ScenarioRunner) Run() *core.ScenarioResult {
	s := sr.scenario
	res := &core.ScenarioResult{
		Name:      s.DisplayName(),
		FilePath:  s.SourcePath,
		Tags:      s.Tags,
		StartTime: sr.now(),
	}
	defer func() {
		res.Duration = sr.now().Sub(res.StartTime)
		res.ComputeSummary()
		if res.Status == core.StatusPending {
			res.Status = res.AggregateStatus()
		}
		sr.logger.Info("scenario finished",
			zap.String("status", res.Status.String()),
			zap.Int("passed", res.PassedSteps),
			zap.Int("failed", res.FailedSteps),
			zap.Duration("duration", res.Duration))
		if sr.config.OnScenarioEnd != nil {
			sr.config.OnScenarioEnd(res)
		}
	}()

	if sr.config.OnScenarioStart != nil {
		sr.config.OnScenarioStart(sr.index, sr.total, res.Name, s.SourcePath)
	}

	sr.js = jsengine.New().WithLogger(sr.logger)
	defer sr.js.Close()
	sr.js.SetVariables(sr.config.Env)
	sr.js.SetVariables(s.Env)
	if info := sr.session.PlatformInfo(); info != nil {
		sr.js.SetPlatform(info.BrowserName)
	}

	defaults := scenario.MergeDefaults(sr.config.Defaults, s.Defaults)
	policy, err := scenario.Policy(defaults)
	if err != nil {
		res.Status = core.StatusFailed
		res.Error = err.Error()
		return res
	}
	sr.policy = policy
	sr.builder = scenario.Builder{Defaults: defaults, Expand: sr.js.Expand}

	before := s.Before
	if s.URL != "" {
		before = append([]scenario.StepSpec{{Label: "open " + s.URL, Action: string(pipeline.ActionNavigate), Value: s.URL}}, before...)
	}

	// Before hooks: a required failure skips the steps.
	ok := true
	for i, spec := range before {
		step := sr.runStep(PhaseBefore, i, spec)
		res.Before = append(res.Before, step)
		if sr.aborted(res, step) {
			return res
		}
		if failed(step) {
			ok = false
			res.Error = fmt.Sprintf("before hook failed: %s", step.Error)
			break
		}
	}

	for i, spec := range s.Steps {
		if !ok || sr.ctx.Err() != nil {
			res.Steps = append(res.Steps, skippedStep(i, spec))
			continue
		}
		step := sr.runStep(PhaseSteps, i, spec)
		res.Steps = append(res.Steps, step)
		if sr.aborted(res, step) {
			for j := i + 1; j < len(s.Steps); j++ {
				res.Steps = append(res.Steps, skippedStep(j, s.Steps[j]))
			}
			return res
		}
		if failed(step) {
			ok = false
			if res.Error == "" {
				res.Error = step.Error
			}
		}
	}

	// After hooks always run; their failures are recorded but do not stop
	// the remaining hooks.
	for i, spec := range s.After {
		step := sr.runStep(PhaseAfter, i, spec)
		res.After = append(res.After, step)
		if sr.aborted(res, step) {
			return res
		}
		if failed(step) && res.Error == "" {
			res.Error = fmt.Sprintf("after hook failed: %s", step.Error)
		}
	}
	return res
}

// runStep builds and runs one step and applies optional/saveAs handling.
func (sr *ScenarioRunner) runStep(phase Phase, idx int, spec scenario.StepSpec) core.StepResult {
	step, err := sr.builder.Build(spec)
	if err != nil {
		res := core.StepResult{
			Index:      idx,
			Label:      spec.Label,
			Action:     spec.Action,
			ExecutedBy: core.ExecutedByRunner,
			StartTime:  sr.now(),
			Status:     core.StatusOf(err),
			Category:   core.CategoryOf(err),
			Err:        err,
			Error:      err.Error(),
			Message:    err.Error(),
		}
		sr.finishStep(phase, spec, &res)
		return res
	}

	if step.Retry == nil {
		step.Retry = sr.policy
	}
	if step.WaitOptions.Timeout <= 0 {
		step.WaitOptions.Timeout = sr.builder.Defaults.Timeout
	}
	if step.WaitOptions.Poll <= 0 {
		step.WaitOptions.Poll = sr.builder.Defaults.Poll
	}

	res, err := sr.session.Run(sr.ctx, step)
	res.Index = idx
	if err == nil && spec.SaveAs != "" {
		sr.js.SetVariable(spec.SaveAs, res.Data)
	}
	if res.URL != "" {
		sr.js.SetURL(res.URL)
	}
	sr.finishStep(phase, spec, res)
	return *res
}

func (sr *ScenarioRunner) finishStep(phase Phase, spec scenario.StepSpec, res *core.StepResult) {
	if failed(*res) && spec.Optional && !core.IsFatal(res.Err) {
		res.Status = core.StatusWarned
		sr.logger.Warn("optional step failed", zap.String("step", res.Label), zap.String("error", res.Error))
	}
	for k, v := range sr.js.GetOutput() {
		sr.js.SetVariable(k, v)
	}
	if sr.config.OnStepComplete != nil {
		sr.config.OnStepComplete(phase, res)
	}
}

// aborted marks the scenario aborted when step lost the session.
func (sr *ScenarioRunner) aborted(res *core.ScenarioResult, step core.StepResult) bool {
	if !core.IsFatal(step.Err) {
		return false
	}
	res.Aborted = true
	res.Error = step.Error
	return true
}

func failed(res core.StepResult) bool {
	return res.Status == core.StatusFailed || res.Status == core.StatusErrored
}

func skippedStep(idx int, spec scenario.StepSpec) core.StepResult {
	return core.StepResult{
		Index:      idx,
		Label:      spec.Label,
		Action:     spec.Action,
		ExecutedBy: core.ExecutedByRunner,
		Status:     core.StatusSkipped,
	}
}
