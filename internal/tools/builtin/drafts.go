package builtin

import (
	"context"
	"fmt"

	"aide/internal/agent/ports"
	"aide/internal/tools"
)

type readFileTool struct{ deps *Deps }

func (t *readFileTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "read_file",
		Description: "Read a file from the user's draft workspace.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path": {Type: "string", Description: "Workspace path of the file."},
			},
			Required: []string{"path"},
		},
	}
}

func (t *readFileTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	path := tools.StringArg(req.Input, "path")
	file, err := t.deps.Records.ReadFile(ctx, req.UserID, path)
	if err != nil {
		return ports.ToolError(fmt.Sprintf("reading %s: %v", path, err))
	}
	return ports.ToolOK(file.Content, "Read "+path)
}

type createDraftTool struct{ deps *Deps }

func (t *createDraftTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "create_draft",
		Description: "Create a new draft file in the user's workspace.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path":    {Type: "string", Description: "Workspace path for the new file."},
				"content": {Type: "string", Description: "Initial file content."},
			},
			Required: []string{"path", "content"},
		},
	}
}

func (t *createDraftTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	path := tools.StringArg(req.Input, "path")
	file, err := t.deps.Records.CreateDraft(ctx, req.UserID, path, tools.StringArg(req.Input, "content"))
	if err != nil {
		return ports.ToolError(fmt.Sprintf("creating %s: %v", path, err))
	}
	return ports.ToolOK(renderJSON(map[string]any{"path": file.Path, "bytes": len(file.Content)}),
		"Created draft "+path)
}

type updateDraftTool struct{ deps *Deps }

func (t *updateDraftTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "update_draft",
		Description: "Replace the content of an existing draft file.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"path":    {Type: "string", Description: "Workspace path of the draft."},
				"content": {Type: "string", Description: "New file content."},
			},
			Required: []string{"path", "content"},
		},
	}
}

func (t *updateDraftTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	path := tools.StringArg(req.Input, "path")
	file, err := t.deps.Records.UpdateDraft(ctx, req.UserID, path, tools.StringArg(req.Input, "content"))
	if err != nil {
		return ports.ToolError(fmt.Sprintf("updating %s: %v", path, err))
	}
	return ports.ToolOK(renderJSON(map[string]any{"path": file.Path, "bytes": len(file.Content)}),
		"Updated draft "+path)
}
