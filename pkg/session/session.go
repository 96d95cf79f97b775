// Package session owns one driver session and the engine components bound
// to it. A Session is created at suite start and passed explicitly to the
// code that drives the browser.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/locator"
	"github.com/devicelab-dev/steadyhand/pkg/logger"
	"github.com/devicelab-dev/steadyhand/pkg/metrics"
	"github.com/devicelab-dev/steadyhand/pkg/pipeline"
	"github.com/devicelab-dev/steadyhand/pkg/retry"
	"github.com/devicelab-dev/steadyhand/pkg/wait"
	"github.com/devicelab-dev/steadyhand/pkg/window"
)

// Options configures a session.
type Options struct {
	// Defaults for steps that set no budget of their own.
	Timeout time.Duration
	Poll    time.Duration

	// Policy is the default retry policy. Nil means a single attempt.
	Policy *retry.Policy

	Logger  *zap.Logger
	Metrics *metrics.Recorder
	Clock   wait.Clock
}

// Session is a live driver session with its resolver, waiter, window
// coordinator and pipeline. It is not safe for concurrent use.
type Session struct {
	ID        string
	StartedAt time.Time

	driver      *trackingDriver
	waiter      *wait.Waiter
	resolver    *locator.Resolver
	coordinator *window.Coordinator
	pipeline    *pipeline.Pipeline
	logger      *zap.Logger
	metrics     *metrics.Recorder
	info        *core.PlatformInfo
	closed      bool
}

// Open binds the engine to d. It records the focused window as the
// original window of the session.
func Open(ctx context.Context, d core.Driver, opts Options) (*Session, error) {
	id := uuid.NewString()
	log := logger.Or(opts.Logger).With(zap.String("session", id))
	clock := opts.Clock
	if clock == nil {
		clock = wait.SystemClock
	}

	td := &trackingDriver{Driver: d}
	handle, err := td.CurrentWindow(ctx)
	if err != nil {
		return nil, err
	}
	url, err := td.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}

	waiter := wait.New(td, wait.WithClock(clock), wait.WithLogger(log), wait.WithMetrics(opts.Metrics))
	resolver := locator.NewResolver(td,
		locator.WithWaiter(waiter),
		locator.WithEpochs(td),
		locator.WithLogger(log),
		locator.WithMetrics(opts.Metrics))
	coordinator := window.NewCoordinator(td,
		window.WithWaiter(waiter),
		window.WithSet(window.NewSet(handle, url, clock.Now())),
		window.WithLogger(log),
		window.WithMetrics(opts.Metrics))
	pl := pipeline.New(td,
		pipeline.WithWaiter(waiter),
		pipeline.WithResolver(resolver),
		pipeline.WithCoordinator(coordinator),
		pipeline.WithPolicy(opts.Policy),
		pipeline.WithDefaults(wait.Options{Timeout: opts.Timeout, Poll: opts.Poll}),
		pipeline.WithLogger(log),
		pipeline.WithMetrics(opts.Metrics))

	s := &Session{
		ID:          id,
		StartedAt:   clock.Now(),
		driver:      td,
		waiter:      waiter,
		resolver:    resolver,
		coordinator: coordinator,
		pipeline:    pl,
		logger:      log.Named("session"),
		metrics:     opts.Metrics,
	}
	opts.Metrics.RecordSession()

	s.info = &core.PlatformInfo{Driver: "unknown"}
	if pr, ok := d.(core.PlatformReporter); ok {
		if info := pr.PlatformInfo(); info != nil {
			s.info = info
		}
	}
	s.logger.Info("session opened",
		zap.String("window", handle),
		zap.String("url", url),
		zap.String("driver", s.info.Driver),
		zap.String("browser", s.info.BrowserName))
	return s, nil
}

// Driver returns the session's driver. Navigation through it advances the
// session epoch.
func (s *Session) Driver() core.Driver { return s.driver }

// Epoch returns the navigation epoch.
func (s *Session) Epoch() uint64 { return s.driver.Epoch() }

// Windows returns the tracked window set.
func (s *Session) Windows() *window.Set { return s.coordinator.Set() }

// PlatformInfo describes the browser behind the session.
func (s *Session) PlatformInfo() *core.PlatformInfo { return s.info }

// Pipeline returns the session pipeline.
func (s *Session) Pipeline() *pipeline.Pipeline { return s.pipeline }

// Run runs one step through the pipeline.
func (s *Session) Run(ctx context.Context, step pipeline.Step) (*core.StepResult, error) {
	return s.pipeline.Run(ctx, step)
}

// Resolve resolves spec without waiting.
func (s *Session) Resolve(ctx context.Context, spec locator.Spec) (*locator.Handle, error) {
	return s.resolver.Resolve(ctx, spec)
}

// Probe reports per-candidate match counts for spec.
func (s *Session) Probe(ctx context.Context, spec locator.Spec) ([]locator.ProbeResult, error) {
	return s.resolver.Probe(ctx, spec)
}

// Await polls cond with the session clock.
func (s *Session) Await(ctx context.Context, cond wait.Condition, opts wait.Options) error {
	return s.waiter.Await(ctx, cond, opts)
}

// WithWindow runs a navigational trigger through the window coordinator.
func (s *Session) WithWindow(ctx context.Context, exp window.Expectation, trigger func(ctx context.Context) error) (*window.Outcome, error) {
	return s.coordinator.WithWindow(ctx, exp, trigger)
}

// Close ends the driver session. Calling it twice is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("session closed", zap.Duration("duration", time.Since(s.StartedAt)))
	return s.driver.Close()
}

// trackingDriver advances an epoch whenever the focused document may have
// been replaced, so handles resolved earlier can be recognised as stale.
type trackingDriver struct {
	core.Driver
	epoch atomic.Uint64
}

func (t *trackingDriver) Epoch() uint64 { return t.epoch.Load() }

func (t *trackingDriver) bump() { t.epoch.Add(1) }

func (t *trackingDriver) Navigate(ctx context.Context, url string) error {
	defer t.bump()
	return t.Driver.Navigate(ctx, url)
}

func (t *trackingDriver) Back(ctx context.Context) error {
	defer t.bump()
	return t.Driver.Back(ctx)
}

func (t *trackingDriver) SwitchWindow(ctx context.Context, handle string) error {
	defer t.bump()
	return t.Driver.SwitchWindow(ctx, handle)
}

func (t *trackingDriver) CloseWindow(ctx context.Context) error {
	defer t.bump()
	return t.Driver.CloseWindow(ctx)
}
