package builtin

import (
	"context"
	"fmt"

	"aide/internal/agent/ports"
	"aide/internal/tools"
)

type listIdeasTool struct{ deps *Deps }

func (t *listIdeasTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "list_ideas",
		Description: "List the user's saved ideas.",
		Parameters:  ports.ParameterSchema{Type: "object"},
	}
}

func (t *listIdeasTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	ideas, err := t.deps.Records.ListIdeas(ctx, req.UserID)
	if err != nil {
		return ports.ToolError(fmt.Sprintf("listing ideas: %v", err))
	}
	return ports.ToolOK(renderJSON(ideas), fmt.Sprintf("Listed %d ideas", len(ideas)))
}

type listIncomeStreamsTool struct{ deps *Deps }

func (t *listIncomeStreamsTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "list_income_streams",
		Description: "List the user's income streams with monthly amounts.",
		Parameters:  ports.ParameterSchema{Type: "object"},
	}
}

func (t *listIncomeStreamsTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	streams, err := t.deps.Records.ListIncomeStreams(ctx, req.UserID)
	if err != nil {
		return ports.ToolError(fmt.Sprintf("listing income streams: %v", err))
	}
	return ports.ToolOK(renderJSON(streams), fmt.Sprintf("Listed %d income streams", len(streams)))
}

type listMentorshipSessionsTool struct{ deps *Deps }

func (t *listMentorshipSessionsTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "list_mentorship_sessions",
		Description: "List the user's mentorship sessions.",
		Parameters:  ports.ParameterSchema{Type: "object"},
	}
}

func (t *listMentorshipSessionsTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	sessions, err := t.deps.Records.ListMentorshipSessions(ctx, req.UserID)
	if err != nil {
		return ports.ToolError(fmt.Sprintf("listing mentorship sessions: %v", err))
	}
	return ports.ToolOK(renderJSON(sessions), fmt.Sprintf("Listed %d mentorship sessions", len(sessions)))
}

type searchInsightsTool struct{ deps *Deps }

func (t *searchInsightsTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "search_insights",
		Description: "Search the user's saved insights by text.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {Type: "string", Description: "Text to search for."},
				"limit": {Type: "integer", Description: "Maximum results (default 10)."},
			},
			Required: []string{"query"},
		},
	}
}

func (t *searchInsightsTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	query := tools.StringArg(req.Input, "query")
	limit := tools.IntArg(req.Input, "limit", 10)
	insights, err := t.deps.Records.SearchInsights(ctx, req.UserID, query, limit)
	if err != nil {
		return ports.ToolError(fmt.Sprintf("searching insights: %v", err))
	}
	return ports.ToolOK(renderJSON(insights),
		fmt.Sprintf("Found %d insights for %q", len(insights), query))
}
