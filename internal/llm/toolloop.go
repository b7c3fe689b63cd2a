package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"aide/internal/agent/ports"
)

// ToolLoopBudget bounds one tool-call loop invocation. Exhausting either
// limit does not abort the run: the loop degrades to an error payload the
// tolerant parsers can absorb.
type ToolLoopBudget struct {
	MaxIterations int
	MaxToolCalls  int
}

// ToolLoopRequest drives one phase (planning, step, finalize) through the
// model with tool access.
type ToolLoopRequest struct {
	System string
	Prompt string

	UserID        string
	TaskID        string
	ApprovedTools map[string]bool
	DeniedTools   map[string]bool

	Temperature float64
	MaxTokens   int
	Budget      ToolLoopBudget
}

// ToolLoopResult is the outcome of a tool-call loop. When Paused is set the
// caller must stop stepping and persist a wait pointer at WaitingForEventID.
type ToolLoopResult struct {
	Text              string
	Paused            bool
	PauseReason       ports.PauseReason
	WaitingForEventID string
}

// degradedPayload produces a JSON error payload that flows back through the
// normal parsing path, so the run can still finalize with partial results.
func degradedPayload(reason string) string {
	raw, _ := json.Marshal(map[string]string{"error": reason})
	return string(raw)
}

// RunToolLoop alternates model calls and tool executions until the model
// answers without tool calls, a tool pauses the run, or the budget runs out.
func RunToolLoop(ctx context.Context, client ports.LLMClient, tools ports.ToolRunner, req ToolLoopRequest) (*ToolLoopResult, error) {
	messages := []ports.Message{
		{Role: "system", Content: req.System},
		{Role: "user", Content: req.Prompt},
	}
	defs := tools.List()
	toolCallsUsed := 0

	for iteration := 0; iteration < req.Budget.MaxIterations; iteration++ {
		resp, err := client.Complete(ctx, ports.CompletionRequest{
			Messages:    messages,
			Tools:       defs,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.ToolCalls) == 0 {
			return &ToolLoopResult{Text: resp.Content}, nil
		}

		messages = append(messages, ports.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			if toolCallsUsed >= req.Budget.MaxToolCalls {
				return &ToolLoopResult{Text: degradedPayload(fmt.Sprintf(
					"tool call budget of %d exhausted before the model produced a final answer", req.Budget.MaxToolCalls))}, nil
			}
			toolCallsUsed++

			outcome := tools.Execute(ctx, &ports.ToolRequest{
				UserID:        req.UserID,
				TaskID:        req.TaskID,
				Name:          call.Name,
				Input:         call.Arguments,
				ApprovedTools: req.ApprovedTools,
				DeniedTools:   req.DeniedTools,
			})
			if outcome.Pause {
				return &ToolLoopResult{
					Paused:            true,
					PauseReason:       outcome.PauseReason,
					WaitingForEventID: outcome.EventID,
				}, nil
			}
			content := outcome.Result
			if outcome.Err != "" {
				content = "Error: " + outcome.Err
			}
			messages = append(messages, ports.Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: call.ID,
			})
		}
	}

	return &ToolLoopResult{Text: degradedPayload(fmt.Sprintf(
		"tool loop did not converge within %d iterations", req.Budget.MaxIterations))}, nil
}
