// Package wait polls conditions over driver state until they hold or a
// deadline passes.
package wait

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/logger"
	"github.com/devicelab-dev/steadyhand/pkg/metrics"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultTimeout = 10 * time.Second
	DefaultPoll    = 200 * time.Millisecond
)

// Condition is a predicate over current page state. Implementations must be
// stateless between polls.
type Condition interface {
	Describe() string
	Check(ctx context.Context, d core.Driver) (bool, error)
}

// Options bounds a wait.
type Options struct {
	Timeout time.Duration
	Poll    time.Duration
}

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Poll <= 0 {
		o.Poll = DefaultPoll
	}
	return o
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Waiter polls conditions against one driver.
type Waiter struct {
	driver  core.Driver
	clock   Clock
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(w *Waiter) { w.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Waiter) { w.logger = l }
}

// WithMetrics records wait outcomes.
func WithMetrics(m *metrics.Recorder) Option {
	return func(w *Waiter) { w.metrics = m }
}

// New creates a Waiter for d.
func New(d core.Driver, opts ...Option) *Waiter {
	w := &Waiter{driver: d, clock: SystemClock}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logger.Or(w.logger).Named("wait")
	return w
}

// Clock returns the clock the waiter polls with.
func (w *Waiter) Clock() Clock { return w.clock }

// Driver returns the driver conditions are checked against.
func (w *Waiter) Driver() core.Driver { return w.driver }

// Await polls cond until it holds or opts.Timeout elapses.
//
// The first check happens immediately. A check that reports true after the
// deadline still counts as a timeout. Session loss and stale element
// references end the wait at once with the check's own error; other check
// errors are treated as "not yet" and the last one becomes the cause of the
// timeout. ctx only aborts the wait on shutdown.
func (w *Waiter) Await(ctx context.Context, cond Condition, opts Options) error {
	opts = opts.WithDefaults()
	start := w.clock.Now()
	deadline := start.Add(opts.Timeout)

	var lastErr error
	polls := 0
	for {
		polls++
		ok, err := cond.Check(ctx, w.driver)
		now := w.clock.Now()

		if err != nil {
			if core.IsFatal(err) {
				w.metrics.RecordWait("session_lost", now.Sub(start))
				return err
			}
			if core.CategoryOf(err) == core.ErrCategoryStaleReference {
				w.metrics.RecordWait("stale", now.Sub(start))
				w.logger.Debug("condition target went stale",
					zap.String("condition", cond.Describe()),
					zap.Int("polls", polls))
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			lastErr = err
		} else if ok {
			if !now.After(deadline) {
				w.metrics.RecordWait("satisfied", now.Sub(start))
				w.logger.Debug("condition satisfied",
					zap.String("condition", cond.Describe()),
					zap.Int("polls", polls),
					zap.Duration("elapsed", now.Sub(start)))
				return nil
			}
		}

		if !now.Before(deadline) {
			w.metrics.RecordWait("timeout", now.Sub(start))
			w.logger.Debug("condition timed out",
				zap.String("condition", cond.Describe()),
				zap.Int("polls", polls),
				zap.Duration("timeout", opts.Timeout))
			timeoutErr := core.ErrWaitTimeout.WithDetails(map[string]interface{}{
				"condition": cond.Describe(),
				"timeout":   opts.Timeout.String(),
				"polls":     polls,
			})
			if lastErr != nil {
				return timeoutErr.WithCause(lastErr)
			}
			return timeoutErr
		}

		sleep := opts.Poll
		if remaining := deadline.Sub(now); remaining < sleep {
			sleep = remaining
		}
		if err := w.clock.Sleep(ctx, sleep); err != nil {
			return err
		}
	}
}

// Await is a one-off wait on d with the wall clock.
func Await(ctx context.Context, d core.Driver, cond Condition, opts Options) error {
	return New(d).Await(ctx, cond, opts)
}

// IsTimeout reports whether err is a wait timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, core.ErrWaitTimeout)
}
