package window

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/logger"
	"github.com/devicelab-dev/steadyhand/pkg/metrics"
	"github.com/devicelab-dev/steadyhand/pkg/wait"
)

// State is the coordinator's position in a navigational round trip.
type State int

// States, in round-trip order.
const (
	StateOriginal State = iota
	StateAwaitingNew
	StateSwitched
	StateVerified
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateOriginal:
		return "ORIGINAL"
	case StateAwaitingNew:
		return "AWAITING_NEW"
	case StateSwitched:
		return "SWITCHED"
	case StateVerified:
		return "VERIFIED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Branch is how a navigational trigger manifested.
type Branch string

// Branch values.
const (
	BranchNewWindow Branch = "new_window"
	BranchSameTab   Branch = "same_tab"
	BranchMismatch  Branch = "mismatch"
)

// Expectation describes what a navigational trigger should produce.
type Expectation struct {
	// Domain must appear in the resulting URL. Empty skips verification.
	Domain string

	// Timeout bounds detection of a new window or URL change.
	Timeout time.Duration
	// VerifyTimeout bounds verification of Domain, including redirects.
	VerifyTimeout time.Duration
	Poll          time.Duration

	// Inside runs while the resulting window or page is focused, after
	// verification and before focus is restored.
	Inside func(ctx context.Context, d core.Driver) error
}

// Outcome reports what a navigational step did.
type Outcome struct {
	Branch      Branch
	Handle      string // window the destination was verified in
	URL         string // verified URL
	PriorURL    string
	Transitions []State
}

// Coordinator runs navigational triggers and restores focus afterwards.
// It is not safe for concurrent use.
type Coordinator struct {
	driver  core.Driver
	waiter  *wait.Waiter
	set     *Set
	state   State
	logger  *zap.Logger
	metrics *metrics.Recorder
	clock   wait.Clock
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWaiter sets the waiter used for detection and verification.
func WithWaiter(w *wait.Waiter) Option {
	return func(c *Coordinator) { c.waiter = w }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics records branches taken.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithSet shares an existing window set.
func WithSet(s *Set) Option {
	return func(c *Coordinator) { c.set = s }
}

// NewCoordinator creates a Coordinator for d.
func NewCoordinator(d core.Driver, opts ...Option) *Coordinator {
	c := &Coordinator{driver: d}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.Or(c.logger).Named("window")
	if c.waiter == nil {
		c.waiter = wait.New(d, wait.WithLogger(c.logger))
	}
	c.clock = c.waiter.Clock()
	return c
}

// State returns the current state. Outside a call it is always StateOriginal.
func (c *Coordinator) State() State { return c.state }

// Set returns the tracked windows, or nil before the first navigational step.
func (c *Coordinator) Set() *Set { return c.set }

// OpenExpectingNewWindow runs trigger and verifies that it produced either a
// new window or a same-tab navigation to exp.Domain. Focus is back on the
// original window when it returns, whatever the result.
func (c *Coordinator) OpenExpectingNewWindow(ctx context.Context, trigger func(ctx context.Context) error, exp Expectation) (*Outcome, error) {
	return c.WithWindow(ctx, exp, trigger)
}

// WithWindow is OpenExpectingNewWindow with the expectation first.
func (c *Coordinator) WithWindow(ctx context.Context, exp Expectation, trigger func(ctx context.Context) error) (out *Outcome, err error) {
	exp = exp.withDefaults()
	out = &Outcome{}

	original, err := c.track(ctx)
	if err != nil {
		return out, err
	}
	baseline, err := c.driver.WindowHandles(ctx)
	if err != nil {
		return out, err
	}
	prior, err := c.driver.CurrentURL(ctx)
	if err != nil {
		return out, err
	}
	out.PriorURL = prior

	out.Transitions = append(out.Transitions, StateOriginal)
	c.transition(out, StateAwaitingNew)

	defer func() {
		if rerr := c.restore(context.WithoutCancel(ctx), original, baseline); rerr != nil {
			c.logger.Warn("restoring original window failed", zap.String("handle", original), zap.Error(rerr))
			if err == nil {
				err = rerr
			}
		}
		c.state = StateOriginal
		if last := out.Transitions[len(out.Transitions)-1]; last != StateOriginal {
			out.Transitions = append(out.Transitions, StateOriginal)
		}
		c.logger.Debug("navigational step finished",
			zap.String("branch", string(out.Branch)),
			zap.Stringers("transitions", out.Transitions),
			zap.Error(err))
	}()

	if err := trigger(ctx); err != nil {
		return out, err
	}

	detect := wait.Any(wait.NewWindow(baseline), wait.URLChangedFrom(prior))
	if err := c.waiter.Await(ctx, detect, wait.Options{Timeout: exp.Timeout, Poll: exp.Poll}); err != nil {
		if wait.IsTimeout(err) {
			out.Branch = BranchMismatch
			c.metrics.RecordWindow(string(BranchMismatch))
			return out, core.ErrWindowMismatch.WithDetails(map[string]interface{}{
				"expected": exp.Domain,
				"prior":    prior,
				"timeout":  exp.Timeout.String(),
			}).WithCause(err)
		}
		return out, err
	}

	handles, err := c.driver.WindowHandles(ctx)
	if err != nil {
		return out, err
	}
	if fresh := newHandles(baseline, handles); len(fresh) > 0 {
		return out, c.inNewWindow(ctx, out, exp, fresh[0])
	}
	return out, c.inSameTab(ctx, out, exp, original, prior)
}

func (c *Coordinator) inNewWindow(ctx context.Context, out *Outcome, exp Expectation, handle string) error {
	out.Branch = BranchNewWindow
	out.Handle = handle
	c.metrics.RecordWindow(string(BranchNewWindow))
	c.set.Add(handle, "", c.clock.Now())

	if err := c.driver.SwitchWindow(ctx, handle); err != nil {
		return err
	}
	c.transition(out, StateSwitched)

	url, err := c.verify(ctx, exp)
	out.URL = url
	c.set.SetURL(handle, url)
	if err != nil {
		return err
	}
	c.transition(out, StateVerified)

	if exp.Inside != nil {
		if err := exp.Inside(ctx, c.driver); err != nil {
			return err
		}
	}

	if err := c.driver.CloseWindow(ctx); err != nil {
		return err
	}
	c.transition(out, StateClosed)
	return c.set.Remove(handle)
}

func (c *Coordinator) inSameTab(ctx context.Context, out *Outcome, exp Expectation, original, prior string) error {
	out.Branch = BranchSameTab
	out.Handle = original
	c.metrics.RecordWindow(string(BranchSameTab))

	url, err := c.verify(ctx, exp)
	out.URL = url
	if err == nil {
		c.transition(out, StateVerified)
		if exp.Inside != nil {
			err = exp.Inside(ctx, c.driver)
		}
	}

	// Return to the prior page even when verification failed.
	if navErr := c.driver.Navigate(ctx, prior); navErr != nil {
		if err == nil || core.IsFatal(navErr) {
			err = navErr
		}
	}
	c.set.SetURL(original, prior)
	return err
}

// verify polls the focused window's URL until it contains exp.Domain, so
// intermediate redirect pages are tolerated within the verify budget.
func (c *Coordinator) verify(ctx context.Context, exp Expectation) (string, error) {
	if exp.Domain == "" {
		return c.driver.CurrentURL(ctx)
	}
	err := c.waiter.Await(ctx, wait.URLContains(exp.Domain), wait.Options{Timeout: exp.VerifyTimeout, Poll: exp.Poll})
	url, urlErr := c.driver.CurrentURL(ctx)
	if err == nil {
		return url, urlErr
	}
	if wait.IsTimeout(err) {
		return url, core.ErrURLMismatch.WithDetails(map[string]interface{}{
			"expected": exp.Domain,
			"actual":   url,
		}).WithCause(err)
	}
	return url, err
}

// track makes sure the window set exists and that its original is the
// focused window.
func (c *Coordinator) track(ctx context.Context) (string, error) {
	current, err := c.driver.CurrentWindow(ctx)
	if err != nil {
		return "", err
	}
	url, err := c.driver.CurrentURL(ctx)
	if err != nil {
		return "", err
	}
	now := c.clock.Now()

	if c.set == nil {
		c.set = NewSet(current, url, now)
		return current, nil
	}
	if c.set.Original() != current {
		c.logger.Debug("focused window changed since last step, rebasing",
			zap.String("from", c.set.Original()), zap.String("to", current))
		c.set.Rebase(current, url, now)
	}
	c.set.SetURL(current, url)
	return current, nil
}

// restore closes windows opened during the step and focuses original.
func (c *Coordinator) restore(ctx context.Context, original string, baseline []string) error {
	handles, err := c.driver.WindowHandles(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, h := range newHandles(baseline, handles) {
		if err := c.driver.SwitchWindow(ctx, h); err != nil {
			firstErr = keep(firstErr, err)
			continue
		}
		if err := c.driver.CloseWindow(ctx); err != nil {
			firstErr = keep(firstErr, err)
			continue
		}
		c.logger.Debug("closed extra window", zap.String("handle", h))
	}

	current, err := c.driver.CurrentWindow(ctx)
	if err != nil || current != original {
		if err := c.driver.SwitchWindow(ctx, original); err != nil {
			return keep(firstErr, err)
		}
	}

	if handles, err = c.driver.WindowHandles(ctx); err != nil {
		return keep(firstErr, err)
	}
	if _, err := c.set.Sync(handles, c.clock.Now()); err != nil {
		return keep(firstErr, err)
	}
	return firstErr
}

func keep(first, err error) error {
	if first != nil {
		return first
	}
	return err
}

func (c *Coordinator) transition(out *Outcome, s State) {
	c.state = s
	out.Transitions = append(out.Transitions, s)
}

func (e Expectation) withDefaults() Expectation {
	if e.Timeout <= 0 {
		e.Timeout = wait.DefaultTimeout
	}
	if e.VerifyTimeout <= 0 {
		e.VerifyTimeout = e.Timeout
	}
	if e.Poll <= 0 {
		e.Poll = wait.DefaultPoll
	}
	return e
}

func newHandles(baseline, handles []string) []string {
	known := make(map[string]bool, len(baseline))
	for _, h := range baseline {
		known[h] = true
	}
	var out []string
	for _, h := range handles {
		if !known[h] {
			out = append(out, h)
		}
	}
	return out
}

// IsMismatch reports whether err means no navigation was observed.
func IsMismatch(err error) bool {
	return errors.Is(err, core.ErrWindowMismatch)
}
