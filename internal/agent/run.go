package agent

import (
	"context"
	"fmt"
	"math"
	"strings"

	"aide/internal/agent/ports"
	"aide/internal/llm"
	"aide/internal/parser"
	"aide/internal/runstate"
)

// Start idempotently (re)initializes a run: prior events and state are
// cleared and the run enters planning. Returns an error only when the task
// cannot be loaded or persisted; run-level failures are recorded on the task
// via fail and return nil.
func (e *Engine) Start(ctx context.Context, userID, taskID string) error {
	task, err := e.caps.Tasks.Get(ctx, userID, taskID)
	if err != nil {
		return err
	}
	e.metrics.RunStarted()
	e.logger.Info("starting run for task %s (%s)", taskID, task.Title)

	if err := e.caps.Events.ClearForTask(ctx, userID, taskID); err != nil {
		return err
	}
	now := e.clock.Now()
	running := ports.TaskStatusRunning
	progress := 5
	phase := "Starting"
	empty := ""
	if err := e.caps.Tasks.Patch(ctx, userID, taskID, ports.TaskPatch{
		Status:    &running,
		Progress:  &progress,
		Phase:     &phase,
		Plan:      []string{},
		Summary:   &empty,
		Result:    &empty,
		Error:     &empty,
		State:     &empty,
		StartedAt: &now,
	}); err != nil {
		return err
	}
	e.appendEvent(ctx, userID, taskID, ports.EventKindStatus, "Run started")

	return e.run(ctx, userID, taskID, runstate.New())
}

// Continue resumes a paused or yielded run. It is safe to call when nothing
// is pending and tolerates at-least-once scheduling: wait resolution and
// step position are re-checked from persisted state, never assumed.
func (e *Engine) Continue(ctx context.Context, userID, taskID string) error {
	task, err := e.caps.Tasks.Get(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if task.Status != ports.TaskStatusRunning {
		return nil
	}
	state := runstate.Decode(task.State)
	if state == nil {
		return nil
	}

	if state.Waiting() {
		event, err := e.caps.Events.Get(ctx, userID, state.WaitingForEventID)
		if err != nil {
			e.fail(ctx, userID, taskID, task, "lost track of the pending "+string(state.WaitingForKind))
			return nil
		}
		switch state.WaitingForKind {
		case runstate.WaitKindQuestion:
			if !event.Answered {
				e.patchPhase(ctx, userID, taskID, "Waiting for your answer", nil)
				return nil
			}
			state.ContextSummary = truncateSuffix(
				appendLine(state.ContextSummary, clarificationBlock(event.Message, event.Answer)),
				e.budgets.ContextSummaryLimit)
		case runstate.WaitKindApproval:
			if event.Approved == nil {
				e.patchPhase(ctx, userID, taskID, "Waiting for your approval", nil)
				return nil
			}
			if toolName, _ := event.Payload["tool"].(string); toolName != "" {
				state.Approve(toolName, *event.Approved)
			}
		}
		state.ClearWait()
		if err := e.persistState(ctx, userID, taskID, state); err != nil {
			return err
		}
	}

	return e.run(ctx, userID, taskID, state)
}

// run executes as much of the plan as the invocation budget allows, starting
// from the state's position.
func (e *Engine) run(ctx context.Context, userID, taskID string, state *runstate.State) error {
	start := e.clock.Now()
	task, err := e.caps.Tasks.Get(ctx, userID, taskID)
	if err != nil {
		return err
	}

	settings, err := e.caps.Settings.Settings(ctx, userID)
	if err != nil {
		e.fail(ctx, userID, taskID, task, "model not configured: "+err.Error())
		return nil
	}
	client, err := e.newClient(settings)
	if err != nil {
		e.fail(ctx, userID, taskID, task, "model not configured: "+err.Error())
		return nil
	}

	if len(state.PlanSteps) == 0 {
		e.patchPhase(ctx, userID, taskID, "Planning", intPtr(10))
		system := fmt.Sprintf(planSystem, e.budgets.MaxPlanSteps)
		prompt := planPrompt(task, state.ContextSummary)
		if !llm.SupportsToolCalls(client) {
			if extra := e.prefetchContext(ctx, userID, taskID); extra != "" {
				prompt += "\n\n" + extra
			}
		}
		text, pausedAt, err := e.modelCall(ctx, client, state, userID, taskID, system, prompt, e.budgets.PlanningToolCalls)
		if err != nil {
			e.fail(ctx, userID, taskID, task, "planning failed: "+err.Error())
			return nil
		}
		if pausedAt != nil {
			return e.pause(ctx, userID, taskID, state, pausedAt)
		}

		plan := parser.ParsePlan(text)
		if len(plan) == 0 {
			plan = fallbackPlan()
		}
		if len(plan) > e.budgets.MaxPlanSteps {
			plan = plan[:e.budgets.MaxPlanSteps]
		}
		state.PlanSteps = plan
		state.StepIndex = 0

		phase := "Executing"
		if err := e.caps.Tasks.Patch(ctx, userID, taskID, ports.TaskPatch{Plan: plan, Phase: &phase}); err != nil {
			return err
		}
		if err := e.persistState(ctx, userID, taskID, state); err != nil {
			return err
		}
		e.appendEvent(ctx, userID, taskID, ports.EventKindStatus, fmt.Sprintf("Planned %d steps", len(plan)))
	}

	writer := e.writer(userID, taskID)
	draft := task.Result
	stepsThisRun := 0

	for state.StepIndex < len(state.PlanSteps) {
		i, n := state.StepIndex, len(state.PlanSteps)
		stepStart := e.clock.Now()
		phase := fmt.Sprintf("Step %d/%d: %s", i+1, n, firstLine(state.PlanSteps[i]))
		e.patchPhase(ctx, userID, taskID, phase, intPtr(progressFor(i, n)))
		e.appendEvent(ctx, userID, taskID, ports.EventKindProgress, phase)
		if stepsThisRun > 0 {
			e.sleep(ctx, e.budgets.StepPacing)
		}

		recent, err := e.caps.Events.ListByTask(ctx, userID, taskID, 10)
		if err != nil {
			recent = nil
		}
		prompt := stepPrompt(task, state.PlanSteps, i, state.ContextSummary, draft, recent)
		text, pausedAt, err := e.modelCall(ctx, client, state, userID, taskID, stepSystem, prompt, e.budgets.StepToolCalls)
		if err != nil {
			e.fail(ctx, userID, taskID, task, fmt.Sprintf("step %d failed: %v", i+1, err))
			return nil
		}
		if pausedAt != nil {
			return e.pause(ctx, userID, taskID, state, pausedAt)
		}

		payload := parser.ParseStepPayload(text)
		output := strings.TrimSpace(payload.StepOutputMarkdown)
		if len(output) < e.budgets.MinStepOutput {
			e.fail(ctx, userID, taskID, task, fmt.Sprintf("step %d produced no usable output", i+1))
			return nil
		}

		addition := output + "\n\n"
		if err := writer.Append(ctx, draft, addition); err != nil {
			return err
		}
		draft += addition

		summary := payload.StepSummary
		if summary == "" {
			summary = firstLine(output)
		}
		state.ContextSummary = truncateSuffix(
			appendLine(state.ContextSummary, fmt.Sprintf("Step %d: %s", i+1, summary)),
			e.budgets.ContextSummaryLimit)
		state.StepIndex++
		if err := e.persistState(ctx, userID, taskID, state); err != nil {
			return err
		}
		stepsThisRun++
		e.metrics.StepExecuted(e.clock.Now().Sub(stepStart))

		if state.StepIndex < n && shouldYield(e.clock.Now().Sub(start), stepsThisRun, e.budgets) {
			return e.yield(ctx, userID, taskID)
		}
	}

	// The whole plan may be done with the budget already spent; finalize in a
	// fresh invocation rather than risk the ceiling mid-call.
	if shouldYield(e.clock.Now().Sub(start), stepsThisRun, e.budgets) {
		return e.yield(ctx, userID, taskID)
	}

	return e.finalize(ctx, client, userID, taskID, task, state, writer, draft)
}

func (e *Engine) finalize(ctx context.Context, client ports.LLMClient, userID, taskID string, task *ports.Task, state *runstate.State, writer *progressWriter, draft string) error {
	e.patchPhase(ctx, userID, taskID, "Finalizing", intPtr(95))
	prompt := finalPrompt(task, state.PlanSteps, state.ContextSummary, draft)
	messages := []ports.Message{
		{Role: "system", Content: finalSystem},
		{Role: "user", Content: prompt},
	}

	var text string
	if llm.SupportsToolCalls(client) {
		result, err := llm.RunToolLoop(ctx, client, e.caps.Tools, llm.ToolLoopRequest{
			System:        finalSystem,
			Prompt:        prompt,
			UserID:        userID,
			TaskID:        taskID,
			ApprovedTools: state.ApprovedTools,
			DeniedTools:   state.DeniedTools,
			Budget: llm.ToolLoopBudget{
				MaxIterations: e.budgets.MaxToolLoopIterations,
				MaxToolCalls:  e.budgets.FinalizeToolCalls,
			},
		})
		if err != nil {
			e.fail(ctx, userID, taskID, task, "finalize failed: "+err.Error())
			return nil
		}
		if result.Paused {
			// Resuming re-enters finalize: the step index already sits past
			// the last plan step.
			return e.pause(ctx, userID, taskID, state, result)
		}
		text = result.Text
	} else if streamer, ok := client.(ports.StreamingLLMClient); ok {
		flusher := newStreamFlusher(writer)
		resp, err := streamer.StreamComplete(ctx, ports.CompletionRequest{Messages: messages},
			ports.CompletionStreamCallbacks{OnDelta: func(delta string) {
				flusher.Push(ctx, delta)
			}})
		if err != nil {
			e.fail(ctx, userID, taskID, task, "finalize failed: "+err.Error())
			return nil
		}
		text = resp.Content
		if text == "" {
			text = flusher.Text()
		}
	} else {
		resp, err := client.Complete(ctx, ports.CompletionRequest{Messages: messages})
		if err != nil {
			e.fail(ctx, userID, taskID, task, "finalize failed: "+err.Error())
			return nil
		}
		text = resp.Content
	}

	final := parser.ParseFinalPayload(text, draft)
	result := strings.TrimSpace(final.ResultMarkdown)
	if len(result) < e.budgets.MinFinalOutput {
		e.fail(ctx, userID, taskID, task, "the run finished without a usable result")
		return nil
	}
	if err := writer.Replace(ctx, result); err != nil {
		return err
	}

	now := e.clock.Now()
	succeeded := ports.TaskStatusSucceeded
	progress := 100
	phase := "Done"
	empty := ""
	if err := e.caps.Tasks.Patch(ctx, userID, taskID, ports.TaskPatch{
		Status:      &succeeded,
		Progress:    &progress,
		Phase:       &phase,
		Summary:     &final.Summary,
		Error:       &empty,
		State:       &empty,
		CompletedAt: &now,
	}); err != nil {
		return err
	}
	e.appendEvent(ctx, userID, taskID, ports.EventKindResult, final.Summary)
	// Insight-sourced tasks notify through their own upstream path.
	if task.Source != "insight" {
		e.caps.Notifier.Notify(ctx, userID, "Task completed: "+task.Title, final.Summary)
	}
	e.metrics.RunCompleted("succeeded")
	e.logger.Info("task %s succeeded", taskID)
	return nil
}

// modelCall runs one phase through the model, with the tool-call loop when
// the provider supports it and a plain completion otherwise.
func (e *Engine) modelCall(ctx context.Context, client ports.LLMClient, state *runstate.State, userID, taskID, system, prompt string, toolBudget int) (string, *llm.ToolLoopResult, error) {
	if llm.SupportsToolCalls(client) {
		result, err := llm.RunToolLoop(ctx, client, e.caps.Tools, llm.ToolLoopRequest{
			System:        system,
			Prompt:        prompt,
			UserID:        userID,
			TaskID:        taskID,
			ApprovedTools: state.ApprovedTools,
			DeniedTools:   state.DeniedTools,
			Budget: llm.ToolLoopBudget{
				MaxIterations: e.budgets.MaxToolLoopIterations,
				MaxToolCalls:  toolBudget,
			},
		})
		if err != nil {
			return "", nil, err
		}
		if result.Paused {
			return "", result, nil
		}
		return result.Text, nil, nil
	}

	resp, err := client.Complete(ctx, ports.CompletionRequest{Messages: []ports.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}})
	if err != nil {
		return "", nil, err
	}
	return resp.Content, nil, nil
}

// pause checkpoints the wait pointer; the question/approval event itself was
// appended by the pausing tool.
func (e *Engine) pause(ctx context.Context, userID, taskID string, state *runstate.State, result *llm.ToolLoopResult) error {
	kind := runstate.WaitKindQuestion
	phase := "Waiting for your answer"
	if result.PauseReason == ports.PauseReasonApproval {
		kind = runstate.WaitKindApproval
		phase = "Waiting for your approval"
	}
	state.SetWait(kind, result.WaitingForEventID)
	if err := e.persistState(ctx, userID, taskID, state); err != nil {
		return err
	}
	e.patchPhase(ctx, userID, taskID, phase, nil)
	e.metrics.Paused(string(result.PauseReason))
	e.logger.Info("task %s paused: %s", taskID, phase)
	return nil
}

// yield hands the rest of the run to a scheduled continuation. State was
// persisted when the last step completed.
func (e *Engine) yield(ctx context.Context, userID, taskID string) error {
	e.appendEvent(ctx, userID, taskID, ports.EventKindStatus, "Continuing in a moment")
	e.patchPhase(ctx, userID, taskID, "Continuing", nil)
	e.caps.Scheduler.ScheduleContinuation(userID, taskID)
	e.metrics.ContinuationScheduled()
	return nil
}

// fail records a terminal failure. There is no automatic retry; restarting
// clears everything and begins fresh.
func (e *Engine) fail(ctx context.Context, userID, taskID string, task *ports.Task, message string) {
	now := e.clock.Now()
	failed := ports.TaskStatusFailed
	progress := 100
	phase := "Failed"
	empty := ""
	if err := e.caps.Tasks.Patch(ctx, userID, taskID, ports.TaskPatch{
		Status:      &failed,
		Progress:    &progress,
		Phase:       &phase,
		Error:       &message,
		State:       &empty,
		CompletedAt: &now,
	}); err != nil {
		e.logger.Error("recording failure for task %s: %v", taskID, err)
	}
	e.appendEvent(ctx, userID, taskID, ports.EventKindError, message)
	title := "Task failed"
	if task != nil {
		title = "Task failed: " + task.Title
	}
	e.caps.Notifier.Notify(ctx, userID, title, message)
	e.metrics.RunCompleted("failed")
	e.logger.Warn("task %s failed: %s", taskID, message)
}

func (e *Engine) persistState(ctx context.Context, userID, taskID string, state *runstate.State) error {
	encoded := runstate.Encode(state)
	return e.caps.Tasks.Patch(ctx, userID, taskID, ports.TaskPatch{State: &encoded})
}

func (e *Engine) patchPhase(ctx context.Context, userID, taskID, phase string, progress *int) {
	patch := ports.TaskPatch{Phase: &phase, Progress: progress}
	if err := e.caps.Tasks.Patch(ctx, userID, taskID, patch); err != nil {
		e.logger.Warn("patching phase for task %s: %v", taskID, err)
	}
}

func (e *Engine) appendEvent(ctx context.Context, userID, taskID string, kind ports.EventKind, message string) {
	if _, err := e.caps.Events.Append(ctx, &ports.TaskEvent{
		TaskID:  taskID,
		UserID:  userID,
		Kind:    kind,
		Message: message,
	}); err != nil {
		e.logger.Warn("appending %s event for task %s: %v", kind, taskID, err)
	}
}

// prefetchContext runs a few read-only, no-argument tools so providers
// without tool-call support still plan against live data.
func (e *Engine) prefetchContext(ctx context.Context, userID, taskID string) string {
	var b strings.Builder
	fetched := 0
	for _, def := range e.caps.Tools.List() {
		if def.SideEffect || len(def.Parameters.Required) > 0 {
			continue
		}
		outcome := e.caps.Tools.Execute(ctx, &ports.ToolRequest{
			UserID: userID,
			TaskID: taskID,
			Name:   def.Name,
			Input:  map[string]any{},
		})
		if outcome == nil || !outcome.OK || outcome.Pause || outcome.Result == "" {
			continue
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", def.Name, truncateSuffix(outcome.Result, 1200))
		fetched++
		if fetched == 3 {
			break
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "Context from tools:\n" + b.String()
}

func fallbackPlan() []string {
	return []string{
		"Gather the relevant context for the task",
		"Draft the core deliverable",
		"Review and refine the result",
	}
}

func progressFor(stepIndex, planLen int) int {
	if planLen <= 0 {
		return 20
	}
	return 20 + int(math.Round(70*float64(stepIndex+1)/float64(planLen)))
}

func appendLine(existing, line string) string {
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}

func intPtr(v int) *int { return &v }
