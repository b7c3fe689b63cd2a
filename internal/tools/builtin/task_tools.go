package builtin

import (
	"context"
	"fmt"

	"aide/internal/agent/ports"
	"aide/internal/tools"
)

type listTasksTool struct{ deps *Deps }

func (t *listTasksTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "list_tasks",
		Description: "List the user's tasks, most recently updated first.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"limit": {Type: "integer", Description: "Maximum number of tasks to return (default 20)."},
			},
		},
	}
}

func (t *listTasksTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	limit := tools.IntArg(req.Input, "limit", 20)
	list, err := t.deps.Tasks.ListTasks(ctx, req.UserID, limit)
	if err != nil {
		return ports.ToolError(fmt.Sprintf("listing tasks: %v", err))
	}
	type row struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Status string `json:"status"`
	}
	rows := make([]row, 0, len(list))
	for _, task := range list {
		rows = append(rows, row{ID: task.ID, Title: task.Title, Status: string(task.Status)})
	}
	return ports.ToolOK(renderJSON(rows), fmt.Sprintf("Listed %d tasks", len(rows)))
}

type createTaskTool struct{ deps *Deps }

func (t *createTaskTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "create_task",
		Description: "Create a new task for the user.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"title": {Type: "string", Description: "Short task title."},
				"note":  {Type: "string", Description: "Optional longer description."},
			},
			Required: []string{"title"},
		},
	}
}

func (t *createTaskTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	title := tools.StringArg(req.Input, "title")
	task, err := t.deps.Tasks.CreateTask(ctx, req.UserID, title, tools.StringArg(req.Input, "note"), "agent")
	if err != nil {
		return ports.ToolError(fmt.Sprintf("creating task: %v", err))
	}
	return ports.ToolOK(renderJSON(map[string]string{"id": task.ID, "title": task.Title}),
		fmt.Sprintf("Created task %q", title))
}

type updateTaskTool struct{ deps *Deps }

func (t *updateTaskTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "update_task",
		Description: "Update the note or summary of an existing task.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"task_id": {Type: "string", Description: "Task to update."},
				"summary": {Type: "string", Description: "New summary text."},
			},
			Required: []string{"task_id"},
		},
	}
}

func (t *updateTaskTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	taskID := tools.StringArg(req.Input, "task_id")
	patch := ports.TaskPatch{}
	if summary := tools.StringArg(req.Input, "summary"); summary != "" {
		patch.Summary = &summary
	}
	if err := t.deps.Tasks.Tasks().Patch(ctx, req.UserID, taskID, patch); err != nil {
		return ports.ToolError(fmt.Sprintf("updating task: %v", err))
	}
	return ports.ToolOK(renderJSON(map[string]string{"id": taskID, "status": "updated"}),
		"Updated task "+taskID)
}
