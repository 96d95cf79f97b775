package locator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/logger"
	"github.com/devicelab-dev/steadyhand/pkg/metrics"
	"github.com/devicelab-dev/steadyhand/pkg/wait"
)

// Handle is a resolved element. It is valid only within the step that
// produced it and only while the navigation epoch is unchanged.
type Handle struct {
	Spec       Spec
	Index      int // position of the winning candidate in Spec
	Ref        core.ElementRef
	ResolvedAt time.Time
	Epoch      uint64
	Token      string // unique per resolution, for log correlation
}

// Candidate returns the candidate that produced the handle.
func (h *Handle) Candidate() Candidate {
	return h.Spec[h.Index]
}

// EpochSource reports the session's navigation epoch. It changes whenever
// the focused document may have been replaced.
type EpochSource interface {
	Epoch() uint64
}

type staticEpoch struct{}

func (staticEpoch) Epoch() uint64 { return 0 }

// Resolver finds the first matching candidate of a Spec.
type Resolver struct {
	driver  core.Driver
	epochs  EpochSource
	waiter  *wait.Waiter
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithEpochs sets the navigation epoch source.
func WithEpochs(e EpochSource) Option {
	return func(r *Resolver) { r.epochs = e }
}

// WithWaiter sets the waiter used by ResolveWithin.
func WithWaiter(w *wait.Waiter) Option {
	return func(r *Resolver) { r.waiter = w }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithMetrics records resolutions.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver for d.
func NewResolver(d core.Driver, opts ...Option) *Resolver {
	r := &Resolver{driver: d, epochs: staticEpoch{}}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.Or(r.logger).Named("resolver")
	if r.waiter == nil {
		r.waiter = wait.New(d, wait.WithLogger(r.logger))
	}
	return r
}

// Resolve probes each candidate once, in order, and returns a handle for the
// first that matches at least one element. It does not wait.
func (r *Resolver) Resolve(ctx context.Context, spec Spec) (*Handle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	h, lastErr, err := r.sweep(ctx, spec)
	if err != nil {
		return nil, err
	}
	if h != nil {
		return h, nil
	}
	r.metrics.RecordResolution(-1)
	return nil, r.notFound(spec, lastErr)
}

// sweep probes every candidate once. A probe error on one candidate counts
// as "no match" for it; session loss is returned as err.
func (r *Resolver) sweep(ctx context.Context, spec Spec) (h *Handle, lastErr error, err error) {
	for i, c := range spec {
		refs, probeErr := r.driver.FindElements(ctx, c.Strategy, c.Selector)
		if probeErr != nil {
			if core.IsFatal(probeErr) {
				return nil, nil, probeErr
			}
			r.logger.Debug("candidate probe failed",
				zap.Int("index", i),
				zap.String("candidate", c.String()),
				zap.Error(probeErr))
			lastErr = probeErr
			continue
		}
		if len(refs) == 0 {
			continue
		}

		h = &Handle{
			Spec:       spec,
			Index:      i,
			Ref:        refs[0],
			ResolvedAt: r.waiter.Clock().Now(),
			Epoch:      r.epochs.Epoch(),
			Token:      uuid.NewString(),
		}
		r.metrics.RecordResolution(i)
		r.logger.Debug("resolved",
			zap.String("candidate", c.String()),
			zap.Int("index", i),
			zap.Int("matches", len(refs)),
			zap.String("token", h.Token))
		return h, nil, nil
	}
	return nil, lastErr, nil
}

// ResolveWithin repeats the candidate sweep until one matches or opts.Timeout
// elapses. Running out of time is reported as NotFound, not Timeout.
func (r *Resolver) ResolveWithin(ctx context.Context, spec Spec, opts wait.Options) (*Handle, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var found *Handle
	cond := wait.Predicate("resolve"+spec.String(), func(ctx context.Context, _ core.Driver) (bool, error) {
		h, lastErr, err := r.sweep(ctx, spec)
		if err != nil {
			return false, err
		}
		if h == nil {
			if core.CategoryOf(lastErr) == core.ErrCategoryStaleReference {
				// Document swapped mid-probe; the next sweep sees the new one.
				return false, fmt.Errorf("candidate probe: %v", lastErr)
			}
			return false, lastErr
		}
		found = h
		return true, nil
	})

	err := r.waiter.Await(ctx, cond, opts)
	if err == nil {
		return found, nil
	}
	if wait.IsTimeout(err) {
		r.metrics.RecordResolution(-1)
		return nil, r.notFound(spec, nil).WithDetails(map[string]interface{}{
			"waited": opts.WithDefaults().Timeout.String(),
		}).WithCause(err)
	}
	return nil, err
}

func (r *Resolver) notFound(spec Spec, cause error) *core.ExecutionError {
	e := core.ErrElementNotFound.WithDetails(map[string]interface{}{
		"locator": spec.String(),
	})
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}

// Check reports a stale-reference error when the handle was resolved under a
// different navigation epoch.
func (r *Resolver) Check(h *Handle) error {
	if h.Epoch != r.epochs.Epoch() {
		return core.ErrStaleElement.WithMessage("element was resolved before the last navigation").
			WithDetails(map[string]interface{}{
				"candidate": h.Candidate().String(),
				"token":     h.Token,
			})
	}
	return nil
}

// ProbeResult is the outcome of probing one candidate.
type ProbeResult struct {
	Candidate Candidate
	Matches   int
	Err       error
}

// Probe reports how many elements each candidate currently matches.
func (r *Resolver) Probe(ctx context.Context, spec Spec) ([]ProbeResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	results := make([]ProbeResult, len(spec))
	for i, c := range spec {
		refs, err := r.driver.FindElements(ctx, c.Strategy, c.Selector)
		if err != nil && core.IsFatal(err) {
			return nil, err
		}
		results[i] = ProbeResult{Candidate: c, Matches: len(refs), Err: err}
	}
	return results, nil
}
