package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"aide/internal/agent/ports"
	"aide/internal/tools"
)

// githubToken resolves a token from the connector store, falling back to the
// statically configured one.
func (d *Deps) githubToken(ctx context.Context, userID string) (string, error) {
	if d.Tokens != nil {
		if token, err := d.Tokens.Token(ctx, userID, "github"); err == nil && token.AccessToken != "" {
			return token.AccessToken, nil
		}
	}
	if d.GitHubToken != "" {
		return d.GitHubToken, nil
	}
	return "", fmt.Errorf("no GitHub credentials: connect GitHub or configure a token")
}

func (d *Deps) githubDo(ctx context.Context, userID, method, path string, payload any) ([]byte, *ports.ToolOutcome) {
	token, err := d.githubToken(ctx, userID)
	if err != nil {
		return nil, ports.ToolError(err.Error())
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, ports.ToolError(fmt.Sprintf("encoding GitHub request: %v", err))
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.GitHubBaseURL+path, body)
	if err != nil {
		return nil, ports.ToolError(fmt.Sprintf("building GitHub request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, ports.ToolError(fmt.Sprintf("GitHub request failed: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, ports.ToolError(fmt.Sprintf("reading GitHub response: %v", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ports.ToolError(fmt.Sprintf("GitHub API error (status %d): %s", resp.StatusCode, truncate(string(raw), 500)))
	}
	return raw, nil
}

func repoPath(req *ports.ToolRequest) (string, *ports.ToolOutcome) {
	owner := tools.StringArg(req.Input, "owner")
	repo := tools.StringArg(req.Input, "repo")
	if owner == "" || repo == "" {
		return "", ports.ToolError("owner and repo are required")
	}
	return "/repos/" + owner + "/" + repo, nil
}

type githubGetRepoTool struct{ deps *Deps }

func (t *githubGetRepoTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "github_get_repo",
		Description: "Get metadata for a GitHub repository (description, default branch, open issue count).",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"owner": {Type: "string", Description: "Repository owner."},
				"repo":  {Type: "string", Description: "Repository name."},
			},
			Required: []string{"owner", "repo"},
		},
	}
}

func (t *githubGetRepoTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	path, fail := repoPath(req)
	if fail != nil {
		return fail
	}
	raw, fail := t.deps.githubDo(ctx, req.UserID, http.MethodGet, path, nil)
	if fail != nil {
		return fail
	}
	var repo struct {
		FullName      string `json:"full_name"`
		Description   string `json:"description"`
		DefaultBranch string `json:"default_branch"`
		OpenIssues    int    `json:"open_issues_count"`
		HTMLURL       string `json:"html_url"`
	}
	if err := json.Unmarshal(raw, &repo); err != nil {
		return ports.ToolError(fmt.Sprintf("parsing GitHub response: %v", err))
	}
	return ports.ToolOK(renderJSON(repo), "Fetched repo "+repo.FullName)
}

type githubListIssuesTool struct{ deps *Deps }

func (t *githubListIssuesTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "github_list_issues",
		Description: "List issues in a GitHub repository.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"owner": {Type: "string", Description: "Repository owner."},
				"repo":  {Type: "string", Description: "Repository name."},
				"state": {Type: "string", Description: "Issue state filter.", Enum: []any{"open", "closed", "all"}},
				"limit": {Type: "integer", Description: "Maximum issues to return (default 10)."},
			},
			Required: []string{"owner", "repo"},
		},
	}
}

func (t *githubListIssuesTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	path, fail := repoPath(req)
	if fail != nil {
		return fail
	}
	state := tools.StringArg(req.Input, "state")
	if state == "" {
		state = "open"
	}
	limit := tools.IntArg(req.Input, "limit", 10)
	raw, fail := t.deps.githubDo(ctx, req.UserID, http.MethodGet,
		fmt.Sprintf("%s/issues?state=%s&per_page=%d", path, state, limit), nil)
	if fail != nil {
		return fail
	}
	var issues []struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		State  string `json:"state"`
		URL    string `json:"html_url"`
	}
	if err := json.Unmarshal(raw, &issues); err != nil {
		return ports.ToolError(fmt.Sprintf("parsing GitHub response: %v", err))
	}
	return ports.ToolOK(renderJSON(issues), fmt.Sprintf("Listed %d issues", len(issues)))
}

type githubCreateIssueTool struct{ deps *Deps }

func (t *githubCreateIssueTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "github_create_issue",
		Description: "Create an issue in a GitHub repository.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"owner": {Type: "string", Description: "Repository owner."},
				"repo":  {Type: "string", Description: "Repository name."},
				"title": {Type: "string", Description: "Issue title."},
				"body":  {Type: "string", Description: "Issue body markdown."},
			},
			Required: []string{"owner", "repo", "title"},
		},
		SideEffect: true,
	}
}

func (t *githubCreateIssueTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	path, fail := repoPath(req)
	if fail != nil {
		return fail
	}
	raw, fail := t.deps.githubDo(ctx, req.UserID, http.MethodPost, path+"/issues", map[string]string{
		"title": tools.StringArg(req.Input, "title"),
		"body":  tools.StringArg(req.Input, "body"),
	})
	if fail != nil {
		return fail
	}
	var issue struct {
		Number int    `json:"number"`
		URL    string `json:"html_url"`
	}
	if err := json.Unmarshal(raw, &issue); err != nil {
		return ports.ToolError(fmt.Sprintf("parsing GitHub response: %v", err))
	}
	return ports.ToolOK(renderJSON(issue), fmt.Sprintf("Created issue #%d", issue.Number))
}

type githubCreatePRTool struct{ deps *Deps }

func (t *githubCreatePRTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "github_create_pr",
		Description: "Open a pull request in a GitHub repository.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"owner": {Type: "string", Description: "Repository owner."},
				"repo":  {Type: "string", Description: "Repository name."},
				"title": {Type: "string", Description: "Pull request title."},
				"head":  {Type: "string", Description: "Branch with the changes."},
				"base":  {Type: "string", Description: "Branch to merge into."},
				"body":  {Type: "string", Description: "Pull request description."},
			},
			Required: []string{"owner", "repo", "title", "head", "base"},
		},
		SideEffect: true,
	}
}

func (t *githubCreatePRTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	path, fail := repoPath(req)
	if fail != nil {
		return fail
	}
	raw, fail := t.deps.githubDo(ctx, req.UserID, http.MethodPost, path+"/pulls", map[string]string{
		"title": tools.StringArg(req.Input, "title"),
		"head":  tools.StringArg(req.Input, "head"),
		"base":  tools.StringArg(req.Input, "base"),
		"body":  tools.StringArg(req.Input, "body"),
	})
	if fail != nil {
		return fail
	}
	var pr struct {
		Number int    `json:"number"`
		URL    string `json:"html_url"`
	}
	if err := json.Unmarshal(raw, &pr); err != nil {
		return ports.ToolError(fmt.Sprintf("parsing GitHub response: %v", err))
	}
	return ports.ToolOK(renderJSON(pr), fmt.Sprintf("Opened pull request #%d", pr.Number))
}
