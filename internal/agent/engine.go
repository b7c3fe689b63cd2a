// Package agent runs multi-step, tool-using task runs: planning, step
// execution with progressive output, pause/resume for human input, and
// yield/continuation checkpointing against invocation budgets.
package agent

import (
	"context"
	"time"

	"aide/internal/agent/ports"
	"aide/internal/llm"
	"aide/internal/logging"
	"aide/internal/observability"
)

// Capabilities are the injected collaborators of the orchestration loop.
// Everything the loop touches outside its own state goes through one of
// these contracts.
type Capabilities struct {
	Tasks     ports.TaskStore
	Events    ports.EventStore
	Tools     ports.ToolRunner
	Settings  ports.SettingsStore
	Notifier  ports.Notifier
	Scheduler ports.ContinuationScheduler
}

// ClientFactory builds an LLM client from resolved settings.
type ClientFactory func(settings *ports.Settings) (ports.LLMClient, error)

// Engine drives task runs. Safe for concurrent use across tasks; a single
// task has at most one active invocation by construction.
type Engine struct {
	caps      Capabilities
	budgets   Budgets
	clock     ports.Clock
	sleep     func(ctx context.Context, d time.Duration)
	newClient ClientFactory
	logger    logging.Logger
	metrics   *observability.RunMetrics
}

// Option customizes Engine construction.
type Option func(*Engine)

// WithClock substitutes the wall clock. Tests use a fake to drive yields.
func WithClock(clock ports.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithSleep substitutes the pacing sleeper. Tests use a no-op.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// WithClientFactory substitutes the LLM client factory.
func WithClientFactory(factory ClientFactory) Option {
	return func(e *Engine) { e.newClient = factory }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(metrics *observability.RunMetrics) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// WithLogger substitutes the component logger.
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(logger) }
}

// NewEngine builds an engine over caps with the given budgets.
func NewEngine(caps Capabilities, budgets Budgets, opts ...Option) *Engine {
	e := &Engine{
		caps:    caps,
		budgets: budgets,
		clock:   ports.SystemClock{},
		sleep:   sleepWithContext,
		logger:  logging.NewComponentLogger("AgentEngine"),
	}
	e.newClient = func(settings *ports.Settings) (ports.LLMClient, error) {
		return llm.New(settings)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (e *Engine) writer(userID, taskID string) *progressWriter {
	return &progressWriter{
		budgets: e.budgets,
		clock:   e.clock,
		sleep:   e.sleep,
		patch: func(ctx context.Context, result string) error {
			return e.caps.Tasks.Patch(ctx, userID, taskID, ports.TaskPatch{Result: &result})
		},
	}
}
