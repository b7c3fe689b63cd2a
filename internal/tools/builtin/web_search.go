package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"aide/internal/agent/ports"
	"aide/internal/tools"
)

type webSearchTool struct{ deps *Deps }

func (t *webSearchTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web for current information. Returns result summaries with URLs.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query":       {Type: "string", Description: "The search query to execute."},
				"max_results": {Type: "integer", Description: "Maximum number of results (1-10, default 5)."},
			},
			Required: []string{"query"},
		},
	}
}

func (t *webSearchTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	if t.deps.TavilyAPIKey == "" {
		return ports.ToolError("web search is not configured: missing search API key")
	}
	query := tools.StringArg(req.Input, "query")
	maxResults := tools.IntArg(req.Input, "max_results", 5)
	if maxResults < 1 {
		maxResults = 1
	}
	if maxResults > 10 {
		maxResults = 10
	}

	body, err := json.Marshal(map[string]any{
		"api_key":        t.deps.TavilyAPIKey,
		"query":          query,
		"max_results":    maxResults,
		"search_depth":   "basic",
		"include_answer": true,
	})
	if err != nil {
		return ports.ToolError(fmt.Sprintf("encoding search request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.deps.TavilyBaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return ports.ToolError(fmt.Sprintf("building search request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.deps.HTTPClient.Do(httpReq)
	if err != nil {
		return ports.ToolError(fmt.Sprintf("search request failed: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ports.ToolError(fmt.Sprintf("reading search response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return ports.ToolError(fmt.Sprintf("search API error (status %d): %s", resp.StatusCode, truncate(string(raw), 500)))
	}

	var parsed struct {
		Answer  string `json:"answer"`
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ports.ToolError(fmt.Sprintf("parsing search response: %v", err))
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Search: %s\n\n", query)
	if parsed.Answer != "" {
		fmt.Fprintf(&out, "Summary: %s\n\n", parsed.Answer)
	}
	for i, result := range parsed.Results {
		fmt.Fprintf(&out, "%d. %s\n   URL: %s\n   %s\n\n", i+1, result.Title, result.URL, result.Content)
	}
	return ports.ToolOK(out.String(), fmt.Sprintf("Searched the web for %q", query))
}
