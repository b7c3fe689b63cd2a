// Package observability exposes prometheus metrics for the agent runtime.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RunMetrics tracks health of the agent run loop.
type RunMetrics struct {
	runsStarted    prometheus.Counter
	runsCompleted  prometheus.CounterVec
	stepsExecuted  prometheus.Counter
	stepDuration   prometheus.Histogram
	toolExecutions prometheus.CounterVec
	pauses         prometheus.CounterVec
	continuations  prometheus.Counter
}

var (
	defaultRunMetrics     *RunMetrics
	defaultRunMetricsOnce sync.Once
)

// NewRunMetrics builds a RunMetrics recorder using the default registry.
func NewRunMetrics() *RunMetrics {
	defaultRunMetricsOnce.Do(func() {
		defaultRunMetrics = newRunMetrics(prometheus.DefaultRegisterer)
	})
	return defaultRunMetrics
}

// NewRunMetricsWithRegisterer allows tests to provide a dedicated registry.
func NewRunMetricsWithRegisterer(reg prometheus.Registerer) *RunMetrics {
	return newRunMetrics(reg)
}

func newRunMetrics(reg prometheus.Registerer) *RunMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &RunMetrics{
		runsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "agent",
			Name:      "runs_started_total",
			Help:      "Number of agent runs started",
		}),
		runsCompleted: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "agent",
			Name:      "runs_completed_total",
			Help:      "Number of agent runs reaching a terminal state",
		}, []string{"status"}),
		stepsExecuted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "agent",
			Name:      "steps_executed_total",
			Help:      "Number of plan steps executed",
		}),
		stepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aide",
			Subsystem: "agent",
			Name:      "step_duration_seconds",
			Help:      "Wall-clock duration of one plan step",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		toolExecutions: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "agent",
			Name:      "tool_executions_total",
			Help:      "Number of tool executions by outcome",
		}, []string{"outcome"}),
		pauses: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "agent",
			Name:      "pauses_total",
			Help:      "Number of run pauses by reason",
		}, []string{"reason"}),
		continuations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "agent",
			Name:      "continuations_total",
			Help:      "Number of scheduled run continuations",
		}),
	}
}

func (m *RunMetrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsStarted.Inc()
}

func (m *RunMetrics) RunCompleted(status string) {
	if m == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
}

func (m *RunMetrics) StepExecuted(duration time.Duration) {
	if m == nil {
		return
	}
	m.stepsExecuted.Inc()
	m.stepDuration.Observe(duration.Seconds())
}

func (m *RunMetrics) ToolExecuted(outcome string) {
	if m == nil {
		return
	}
	m.toolExecutions.WithLabelValues(outcome).Inc()
}

func (m *RunMetrics) Paused(reason string) {
	if m == nil {
		return
	}
	m.pauses.WithLabelValues(reason).Inc()
}

func (m *RunMetrics) ContinuationScheduled() {
	if m == nil {
		return
	}
	m.continuations.Inc()
}
