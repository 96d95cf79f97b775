package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/locator"
	"github.com/devicelab-dev/steadyhand/pkg/logger"
	"github.com/devicelab-dev/steadyhand/pkg/metrics"
	"github.com/devicelab-dev/steadyhand/pkg/retry"
	"github.com/devicelab-dev/steadyhand/pkg/wait"
	"github.com/devicelab-dev/steadyhand/pkg/window"
)

// Pipeline runs steps against one driver session.
type Pipeline struct {
	driver      core.Driver
	resolver    *locator.Resolver
	waiter      *wait.Waiter
	coordinator *window.Coordinator
	policy      *retry.Policy
	defaults    wait.Options
	logger      *zap.Logger
	metrics     *metrics.Recorder
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithResolver sets the locator resolver.
func WithResolver(r *locator.Resolver) Option {
	return func(p *Pipeline) { p.resolver = r }
}

// WithWaiter sets the waiter for actionability and post-conditions.
func WithWaiter(w *wait.Waiter) Option {
	return func(p *Pipeline) { p.waiter = w }
}

// WithCoordinator sets the window coordinator for navigational steps.
func WithCoordinator(c *window.Coordinator) Option {
	return func(p *Pipeline) { p.coordinator = c }
}

// WithPolicy sets the retry policy for steps that carry none.
func WithPolicy(pol *retry.Policy) Option {
	return func(p *Pipeline) { p.policy = pol }
}

// WithDefaults sets the wait budget for steps that leave it zero.
func WithDefaults(o wait.Options) Option {
	return func(p *Pipeline) { p.defaults = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records step outcomes.
func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline for d. Collaborators not supplied are built with
// defaults over the same driver.
func New(d core.Driver, opts ...Option) *Pipeline {
	p := &Pipeline{driver: d}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.Or(p.logger).Named("pipeline")
	if p.waiter == nil {
		p.waiter = wait.New(d, wait.WithLogger(p.logger), wait.WithMetrics(p.metrics))
	}
	if p.resolver == nil {
		p.resolver = locator.NewResolver(d, locator.WithWaiter(p.waiter), locator.WithLogger(p.logger), locator.WithMetrics(p.metrics))
	}
	if p.coordinator == nil {
		p.coordinator = window.NewCoordinator(d, window.WithWaiter(p.waiter), window.WithLogger(p.logger), window.WithMetrics(p.metrics))
	}
	if p.policy == nil {
		p.policy = retry.Once()
	}
	p.defaults = p.defaults.WithDefaults()
	return p
}

// Coordinator returns the window coordinator.
func (p *Pipeline) Coordinator() *window.Coordinator { return p.coordinator }

// Resolver returns the locator resolver.
func (p *Pipeline) Resolver() *locator.Resolver { return p.resolver }

// Run resolves, waits, acts and (for navigational steps) coordinates
// windows, retrying the whole sequence per the step's policy. The result is
// always non-nil; the error is the step's final failure.
func (p *Pipeline) Run(ctx context.Context, step Step) (*core.StepResult, error) {
	policy := step.Retry
	if policy == nil {
		policy = p.policy
	}

	start := p.waiter.Clock().Now()
	res := &core.StepResult{
		Label:       step.Describe(),
		Action:      string(step.Action.Kind),
		ExecutedBy:  core.ExecutedByPipeline,
		Status:      core.StatusRunning,
		StartTime:   start,
		MaxAttempts: policy.MaxAttempts(),
	}
	log := p.logger.With(zap.String("step", res.Label))

	if err := step.Validate(); err != nil {
		return p.finish(res, start, err), err
	}

	var lastErr error
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			res.RetryErrors = append(res.RetryErrors, lastErr.Error())
			p.metrics.RecordRetry(core.CategoryOf(lastErr).String())
			log.Info("retrying step",
				zap.Int("attempt", attempt),
				zap.Int("maxAttempts", policy.MaxAttempts()),
				zap.NamedError("previous", lastErr))
		}
		res.Attempt = attempt
		lastErr = p.attempt(ctx, step, res)
		return lastErr
	})

	res = p.finish(res, start, err)
	if err != nil {
		log.Warn("step failed",
			zap.String("category", res.Category.String()),
			zap.Int("attempts", res.Attempt),
			zap.Error(err))
	} else {
		log.Debug("step passed", zap.Int("attempts", res.Attempt), zap.Bool("flaky", res.Flaky))
	}
	return res, err
}

// attempt is one pass of resolve, wait, act and post-condition. Every pass
// resolves from scratch; handles never cross attempts.
func (p *Pipeline) attempt(ctx context.Context, step Step, res *core.StepResult) error {
	opts := p.waitOptions(step)

	var h *locator.Handle
	if len(step.Locator) > 0 {
		var err error
		h, err = p.resolver.ResolveWithin(ctx, step.Locator, opts)
		if err != nil {
			return err
		}
		res.Candidate = h.Candidate().String()

		if step.Wait != nil {
			if err := p.waiter.Await(ctx, step.Wait(h), opts); err != nil {
				return withCandidate(err, h)
			}
		}
		if err := p.resolver.Check(h); err != nil {
			return err
		}
	}

	act := func(ctx context.Context) error {
		data, err := perform(ctx, p.driver, step.Action, h)
		res.Data = data
		return err
	}

	if step.Navigational {
		exp := step.Expect
		if exp.Timeout <= 0 {
			exp.Timeout = opts.Timeout
		}
		if exp.Poll <= 0 {
			exp.Poll = opts.Poll
		}
		out, err := p.coordinator.WithWindow(ctx, exp, act)
		if out != nil {
			res.Window = string(out.Branch)
			res.URL = out.URL
		}
		if err != nil {
			return err
		}
	} else if err := act(ctx); err != nil {
		return err
	}

	if step.After != nil {
		if err := p.waiter.Await(ctx, step.After, opts); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) waitOptions(step Step) wait.Options {
	opts := step.WaitOptions
	if opts.Timeout <= 0 {
		opts.Timeout = p.defaults.Timeout
	}
	if opts.Poll <= 0 {
		opts.Poll = p.defaults.Poll
	}
	return opts
}

func (p *Pipeline) finish(res *core.StepResult, start time.Time, err error) *core.StepResult {
	res.Duration = p.waiter.Clock().Now().Sub(start)
	res.Status = core.StatusOf(err)
	res.Category = core.CategoryOf(err)
	res.Flaky = err == nil && res.Attempt > 1
	if err != nil {
		res.Err = err
		res.Error = err.Error()
		res.Message = err.Error()
	}
	p.metrics.RecordStep(res.Action, res.Status.String(), res.Duration)
	return res
}

func withCandidate(err error, h *locator.Handle) error {
	if ee, ok := err.(*core.ExecutionError); ok {
		return ee.WithDetails(map[string]interface{}{"candidate": h.Candidate().String()})
	}
	return err
}
