package agent

import (
	"time"

	"aide/internal/config"
)

// Budgets bounds one run invocation. Tests shrink these to drive yield and
// pause paths deterministically.
type Budgets struct {
	// MaxElapsed is the wall-clock ceiling for one invocation; it stays
	// comfortably under the host's hard execution limit.
	MaxElapsed time.Duration
	// MaxStepsPerRun caps plan steps executed in one invocation.
	MaxStepsPerRun int

	MaxPlanSteps int

	// Tool-call loop limits per phase.
	MaxToolLoopIterations int
	PlanningToolCalls     int
	StepToolCalls         int
	FinalizeToolCalls     int

	// ContextSummaryLimit is the suffix-truncation cap for the rolling
	// summary carried between steps.
	ContextSummaryLimit int

	// Content-quality floors. Outputs shorter than these after trimming are
	// fatal for the run.
	MinStepOutput  int
	MinFinalOutput int

	// Pacing between steps and between progressive write chunks.
	StepPacing time.Duration
	ChunkDelay time.Duration

	// Progressive write shape.
	ChunkSize int
	MaxChunks int

	// Streaming flush gates for the finalize phase.
	StreamFlushBytes    int
	StreamFlushInterval time.Duration
}

// DefaultBudgets returns the production budgets.
func DefaultBudgets() Budgets {
	return Budgets{
		MaxElapsed:            50 * time.Second,
		MaxStepsPerRun:        3,
		MaxPlanSteps:          7,
		MaxToolLoopIterations: 12,
		PlanningToolCalls:     10,
		StepToolCalls:         10,
		FinalizeToolCalls:     2,
		ContextSummaryLimit:   1800,
		MinStepOutput:         10,
		MinFinalOutput:        40,
		StepPacing:            300 * time.Millisecond,
		ChunkDelay:            120 * time.Millisecond,
		ChunkSize:             400,
		MaxChunks:             5,
		StreamFlushBytes:      80,
		StreamFlushInterval:   500 * time.Millisecond,
	}
}

// BudgetsFromConfig overlays the configurable knobs onto the defaults.
func BudgetsFromConfig(cfg config.RuntimeConfig) Budgets {
	b := DefaultBudgets()
	if cfg.MaxRunElapsedSeconds > 0 {
		b.MaxElapsed = time.Duration(cfg.MaxRunElapsedSeconds) * time.Second
	}
	if cfg.MaxStepsPerRun > 0 {
		b.MaxStepsPerRun = cfg.MaxStepsPerRun
	}
	return b
}
