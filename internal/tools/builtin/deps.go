// Package builtin provides the handlers behind the agent's tool catalog:
// assistant-data lookups, draft files, human interaction primitives, and
// external integrations (web search, URL fetch, GitHub, Gmail, Calendar).
package builtin

import (
	"context"
	"net/http"
	"time"

	"aide/internal/agent/ports"
	"aide/internal/httpclient"
	"aide/internal/logging"
)

// TaskDirectory is the slice of the task store the task tools need. Both the
// Postgres and the in-memory stores satisfy it.
type TaskDirectory interface {
	ListTasks(ctx context.Context, userID string, limit int) ([]*ports.Task, error)
	CreateTask(ctx context.Context, userID, title, note, source string) (*ports.Task, error)
	Tasks() ports.TaskStore
}

// Deps carries every collaborator the builtin handlers share. Base URLs
// default to the public provider endpoints and exist so tests can point at
// local servers.
type Deps struct {
	Records  RecordStore
	Tasks    TaskDirectory
	Events   ports.EventStore
	Notifier ports.Notifier
	Tokens   ports.TokenStore

	HTTPClient *http.Client
	Logger     logging.Logger

	TavilyAPIKey string
	GitHubToken  string

	TavilyBaseURL   string
	GitHubBaseURL   string
	GmailBaseURL    string
	CalendarBaseURL string
}

func (d *Deps) normalize() {
	if d.HTTPClient == nil {
		d.HTTPClient = httpclient.New(30 * time.Second)
	}
	d.Logger = logging.OrNop(d.Logger)
	if d.TavilyBaseURL == "" {
		d.TavilyBaseURL = "https://api.tavily.com"
	}
	if d.GitHubBaseURL == "" {
		d.GitHubBaseURL = "https://api.github.com"
	}
	if d.GmailBaseURL == "" {
		d.GmailBaseURL = "https://gmail.googleapis.com/gmail/v1"
	}
	if d.CalendarBaseURL == "" {
		d.CalendarBaseURL = "https://www.googleapis.com/calendar/v3"
	}
}

// All constructs the full builtin catalog against deps.
func All(deps *Deps) []ports.ToolHandler {
	deps.normalize()
	return []ports.ToolHandler{
		// Assistant data.
		&listTasksTool{deps},
		&createTaskTool{deps},
		&updateTaskTool{deps},
		&listIdeasTool{deps},
		&listIncomeStreamsTool{deps},
		&listMentorshipSessionsTool{deps},
		&searchInsightsTool{deps},
		// Draft workspace.
		&readFileTool{deps},
		&createDraftTool{deps},
		&updateDraftTool{deps},
		// Human interaction.
		&sendNotificationTool{deps},
		&askUserTool{deps},
		&requestApprovalTool{deps},
		// Web.
		&webSearchTool{deps},
		&fetchURLTool{deps},
		// GitHub.
		&githubGetRepoTool{deps},
		&githubListIssuesTool{deps},
		&githubCreateIssueTool{deps},
		&githubCreatePRTool{deps},
		// Google.
		&gmailListMessagesTool{deps},
		&gmailReadMessageTool{deps},
		&gmailCreateDraftTool{deps},
		&gmailSendEmailTool{deps},
		&calendarListEventsTool{deps},
		&calendarCreateEventTool{deps},
	}
}
