// Package retry runs a step with bounded re-attempts on transient failures.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/devicelab-dev/steadyhand/pkg/core"
)

// Kind selects the delay between attempts.
type Kind string

// Backoff kinds.
const (
	None        Kind = "none"
	Constant    Kind = "constant"
	Exponential Kind = "exponential"
)

// ParseKind converts a configuration value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case None, Constant, Exponential:
		return Kind(s), nil
	case "":
		return None, nil
	}
	return "", core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown backoff %q", s))
}

// Policy is an immutable retry configuration.
type Policy struct {
	maxAttempts int
	kind        Kind
	base        time.Duration
	max         time.Duration
	jitter      float64
	retryable   func(error) bool
	onRetry     func(attempt int, err error, next time.Duration)
	newTimer    func() backoff.Timer
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithBackoff sets the delay strategy. base is the constant delay or the
// initial exponential interval; max caps exponential growth.
func WithBackoff(kind Kind, base, max time.Duration) PolicyOption {
	return func(p *Policy) {
		p.kind = kind
		p.base = base
		p.max = max
	}
}

// WithJitter sets the exponential randomization factor (0 disables).
func WithJitter(f float64) PolicyOption {
	return func(p *Policy) { p.jitter = f }
}

// WithRetryable replaces the predicate deciding which errors get another
// attempt. The default is core.IsRetryable.
func WithRetryable(fn func(error) bool) PolicyOption {
	return func(p *Policy) { p.retryable = fn }
}

// OnRetry registers a hook called before each re-attempt with the attempt
// that failed, its error and the delay before the next one.
func OnRetry(fn func(attempt int, err error, next time.Duration)) PolicyOption {
	return func(p *Policy) { p.onRetry = fn }
}

// WithTimer replaces the wall-clock timer used between attempts.
func WithTimer(fn func() backoff.Timer) PolicyOption {
	return func(p *Policy) { p.newTimer = fn }
}

// NewPolicy creates a policy allowing maxAttempts attempts in total.
func NewPolicy(maxAttempts int, opts ...PolicyOption) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	p := &Policy{
		maxAttempts: maxAttempts,
		kind:        None,
		retryable:   core.IsRetryable,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.kind == "" {
		p.kind = None
	}
	return p
}

// Once is a policy that never retries.
func Once() *Policy { return NewPolicy(1) }

// MaxAttempts returns the attempt budget.
func (p *Policy) MaxAttempts() int { return p.maxAttempts }

// Kind returns the backoff kind.
func (p *Policy) Kind() Kind { return p.kind }

// Retryable reports whether err would get another attempt.
func (p *Policy) Retryable(err error) bool { return p.retryable(err) }

// With returns a copy of p with extra options applied.
func (p *Policy) With(opts ...PolicyOption) *Policy {
	cp := *p
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

func (p *Policy) newBackOff() backoff.BackOff {
	switch p.kind {
	case Constant:
		return backoff.NewConstantBackOff(p.base)
	case Exponential:
		b := backoff.NewExponentialBackOff()
		if p.base > 0 {
			b.InitialInterval = p.base
		}
		if p.max > 0 {
			b.MaxInterval = p.max
		}
		b.RandomizationFactor = p.jitter
		b.MaxElapsedTime = 0
		return b
	default:
		return &backoff.ZeroBackOff{}
	}
}

// Do invokes fn until it succeeds, returns a non-retryable error, or the
// policy's attempts are used up. The error returned is the last one fn
// produced, unwrapped.
func Do(ctx context.Context, p *Policy, fn func(ctx context.Context, attempt int) error) error {
	if p == nil {
		p = Once()
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if attempt >= p.maxAttempts || !p.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		if p.onRetry != nil {
			p.onRetry(attempt, err, next)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(p.maxAttempts-1)), ctx)
	if p.newTimer != nil {
		return backoff.RetryNotifyWithTimer(operation, b, notify, p.newTimer())
	}
	return backoff.RetryNotify(operation, b, notify)
}
