package agent

import "time"

// shouldYield decides whether the current invocation must checkpoint and
// hand the rest of the run to a scheduled continuation. Pure and monotone:
// once it returns true for an invocation it stays true.
func shouldYield(elapsed time.Duration, stepsCompleted int, b Budgets) bool {
	if b.MaxElapsed > 0 && elapsed >= b.MaxElapsed {
		return true
	}
	if b.MaxStepsPerRun > 0 && stepsCompleted >= b.MaxStepsPerRun {
		return true
	}
	return false
}
