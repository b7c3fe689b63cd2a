package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	neturl "net/url"
	"time"

	"aide/internal/agent/ports"
	"aide/internal/tools"
)

type calendarListEventsTool struct{ deps *Deps }

func (t *calendarListEventsTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "calendar_list_events",
		Description: "List upcoming events from the user's primary Google Calendar.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"days":  {Type: "integer", Description: "How many days ahead to look (default 7)."},
				"limit": {Type: "integer", Description: "Maximum events to return (default 10)."},
			},
		},
	}
}

func (t *calendarListEventsTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	accessToken, fail := t.deps.googleAccessToken(ctx, req.UserID, scopeCalendarReadonly)
	if fail != nil {
		return fail
	}
	days := tools.IntArg(req.Input, "days", 7)
	limit := tools.IntArg(req.Input, "limit", 10)
	now := time.Now().UTC()

	query := neturl.Values{}
	query.Set("timeMin", now.Format(time.RFC3339))
	query.Set("timeMax", now.AddDate(0, 0, days).Format(time.RFC3339))
	query.Set("maxResults", fmt.Sprint(limit))
	query.Set("singleEvents", "true")
	query.Set("orderBy", "startTime")

	raw, fail := t.deps.googleGet(ctx, accessToken,
		t.deps.CalendarBaseURL+"/calendars/primary/events?"+query.Encode())
	if fail != nil {
		return fail
	}

	var listed struct {
		Items []struct {
			ID      string `json:"id"`
			Summary string `json:"summary"`
			Start   struct {
				DateTime string `json:"dateTime"`
				Date     string `json:"date"`
			} `json:"start"`
			End struct {
				DateTime string `json:"dateTime"`
				Date     string `json:"date"`
			} `json:"end"`
			Location string `json:"location"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &listed); err != nil {
		return ports.ToolError(fmt.Sprintf("parsing Calendar response: %v", err))
	}

	type row struct {
		ID       string `json:"id"`
		Summary  string `json:"summary"`
		Start    string `json:"start"`
		End      string `json:"end"`
		Location string `json:"location,omitempty"`
	}
	rows := make([]row, 0, len(listed.Items))
	for _, item := range listed.Items {
		start := item.Start.DateTime
		if start == "" {
			start = item.Start.Date
		}
		end := item.End.DateTime
		if end == "" {
			end = item.End.Date
		}
		rows = append(rows, row{ID: item.ID, Summary: item.Summary, Start: start, End: end, Location: item.Location})
	}
	return ports.ToolOK(renderJSON(rows), fmt.Sprintf("Listed %d calendar events", len(rows)))
}

type calendarCreateEventTool struct{ deps *Deps }

func (t *calendarCreateEventTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "calendar_create_event",
		Description: "Create an event on the user's primary Google Calendar.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"summary":     {Type: "string", Description: "Event title."},
				"start":       {Type: "string", Description: "Start time, RFC3339."},
				"end":         {Type: "string", Description: "End time, RFC3339."},
				"description": {Type: "string", Description: "Optional event description."},
				"location":    {Type: "string", Description: "Optional location."},
			},
			Required: []string{"summary", "start", "end"},
		},
		SideEffect: true,
	}
}

func (t *calendarCreateEventTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	accessToken, fail := t.deps.googleAccessToken(ctx, req.UserID, scopeCalendarEvents)
	if fail != nil {
		return fail
	}
	start := tools.StringArg(req.Input, "start")
	end := tools.StringArg(req.Input, "end")
	if _, err := time.Parse(time.RFC3339, start); err != nil {
		return ports.ToolError(fmt.Sprintf("invalid start time %q: %v", start, err))
	}
	if _, err := time.Parse(time.RFC3339, end); err != nil {
		return ports.ToolError(fmt.Sprintf("invalid end time %q: %v", end, err))
	}

	payload, err := json.Marshal(map[string]any{
		"summary":     tools.StringArg(req.Input, "summary"),
		"description": tools.StringArg(req.Input, "description"),
		"location":    tools.StringArg(req.Input, "location"),
		"start":       map[string]string{"dateTime": start},
		"end":         map[string]string{"dateTime": end},
	})
	if err != nil {
		return ports.ToolError(fmt.Sprintf("encoding event: %v", err))
	}

	raw, fail := t.deps.googleDo(ctx, accessToken, "POST",
		t.deps.CalendarBaseURL+"/calendars/primary/events", "application/json", bytes.NewReader(payload))
	if fail != nil {
		return fail
	}
	var created struct {
		ID   string `json:"id"`
		Link string `json:"htmlLink"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return ports.ToolError(fmt.Sprintf("parsing Calendar response: %v", err))
	}
	return ports.ToolOK(renderJSON(created), "Created calendar event "+created.ID)
}
