package builtin

import (
	"context"
	"fmt"

	"aide/internal/agent/ports"
	"aide/internal/tools"
)

type sendNotificationTool struct{ deps *Deps }

func (t *sendNotificationTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "send_notification",
		Description: "Send an in-app notification to the user.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"title": {Type: "string", Description: "Notification title."},
				"body":  {Type: "string", Description: "Notification body."},
			},
			Required: []string{"title"},
		},
	}
}

func (t *sendNotificationTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	title := tools.StringArg(req.Input, "title")
	t.deps.Notifier.Notify(ctx, req.UserID, title, tools.StringArg(req.Input, "body"))
	return ports.ToolOK(renderJSON(map[string]string{"status": "sent"}), "Sent notification "+fmt.Sprintf("%q", title))
}

type askUserTool struct{ deps *Deps }

func (t *askUserTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "ask_user",
		Description: "Ask the user a clarifying question and pause until they answer. " +
			"Provide 2-6 options when a choice is expected.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"question": {Type: "string", Description: "The question to ask."},
				"options":  {Type: "array", Description: "Optional answer choices (2-6).", Items: &ports.Property{Type: "string"}},
			},
			Required: []string{"question"},
		},
	}
}

func (t *askUserTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	question := tools.StringArg(req.Input, "question")
	payload := map[string]any{"question": question}
	if options := tools.StringsArg(req.Input, "options"); len(options) >= 2 && len(options) <= 6 {
		payload["options"] = options
	}
	event, err := t.deps.Events.Append(ctx, &ports.TaskEvent{
		TaskID:  req.TaskID,
		UserID:  req.UserID,
		Kind:    ports.EventKindQuestion,
		Message: question,
		Payload: payload,
	})
	if err != nil {
		return ports.ToolError(fmt.Sprintf("recording question: %v", err))
	}
	return ports.ToolPause(ports.PauseReasonAskUser, event.ID, "Waiting for the user to answer.")
}

// requestApprovalTool lets the model pause for consent explicitly, naming the
// action it wants to take. The registry's gate covers side-effect tools; this
// covers everything else the model judges sensitive.
type requestApprovalTool struct{ deps *Deps }

func (t *requestApprovalTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "request_approval",
		Description: "Ask the user to approve a described action and pause until they decide.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"action": {Type: "string", Description: "Name of the action needing approval."},
				"reason": {Type: "string", Description: "Why the action is needed."},
			},
			Required: []string{"action"},
		},
	}
}

func (t *requestApprovalTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	action := tools.StringArg(req.Input, "action")
	event, err := t.deps.Events.Append(ctx, &ports.TaskEvent{
		TaskID:  req.TaskID,
		UserID:  req.UserID,
		Kind:    ports.EventKindApprovalRequest,
		Message: "Approval needed: " + action,
		Payload: map[string]any{"tool": action, "reason": tools.StringArg(req.Input, "reason"), "input": req.Input},
	})
	if err != nil {
		return ports.ToolError(fmt.Sprintf("recording approval request: %v", err))
	}
	return ports.ToolPause(ports.PauseReasonApproval, event.ID, "Waiting for the user to approve "+action+".")
}
