// Package metrics exposes Prometheus counters and histograms for steps,
// attempts, waits and window coordination.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "steadyhand"

// Recorder holds the collectors of one session. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	resolutions  *prometheus.CounterVec
	waits        *prometheus.CounterVec
	waitDuration prometheus.Histogram
	windows      *prometheus.CounterVec
	sessions     prometheus.Counter
}

// New creates a Recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Pipeline steps by action and final status.",
		}, []string{"action", "status"}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of pipeline steps including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"action"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried attempts by error category.",
		}, []string{"category"}),
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locator_resolutions_total",
			Help:      "Locator resolutions by winning candidate position (\"none\" when nothing matched).",
		}, []string{"candidate"}),
		waits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waits_total",
			Help:      "Condition waits by outcome.",
		}, []string{"outcome"}),
		waitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wait_duration_seconds",
			Help:      "Time spent polling conditions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		windows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_transitions_total",
			Help:      "Navigational steps by branch taken (new_window, same_tab, mismatch).",
		}, []string{"branch"}),
		sessions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Driver sessions opened.",
		}),
	}
}

// Registry returns the underlying registry, or nil for a nil Recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordStep counts a finished step.
func (r *Recorder) RecordStep(action, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.steps.WithLabelValues(action, status).Inc()
	r.stepDuration.WithLabelValues(action).Observe(d.Seconds())
}

// RecordRetry counts one retried attempt.
func (r *Recorder) RecordRetry(category string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(category).Inc()
}

// RecordResolution counts a resolution; index < 0 means no candidate matched.
func (r *Recorder) RecordResolution(index int) {
	if r == nil {
		return
	}
	label := "none"
	if index >= 0 {
		label = strconv.Itoa(index)
	}
	r.resolutions.WithLabelValues(label).Inc()
}

// RecordWait counts a finished wait.
func (r *Recorder) RecordWait(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.waits.WithLabelValues(outcome).Inc()
	r.waitDuration.Observe(d.Seconds())
}

// RecordWindow counts a navigational branch.
func (r *Recorder) RecordWindow(branch string) {
	if r == nil {
		return
	}
	r.windows.WithLabelValues(branch).Inc()
}

// RecordSession counts an opened session.
func (r *Recorder) RecordSession() {
	if r == nil {
		return
	}
	r.sessions.Inc()
}
