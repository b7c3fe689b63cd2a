package builtin

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	neturl "net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"aide/internal/agent/ports"
	"aide/internal/tools"
)

type gmailMessage struct {
	ID      string `json:"id"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Date    string `json:"date,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Body    string `json:"body,omitempty"`
}

type gmailListMessagesTool struct{ deps *Deps }

func (t *gmailListMessagesTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "gmail_list_messages",
		Description: "List recent Gmail messages, optionally filtered by a Gmail search query.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {Type: "string", Description: "Gmail search query, e.g. 'from:alice is:unread'."},
				"limit": {Type: "integer", Description: "Maximum messages to return (default 10, max 25)."},
			},
		},
	}
}

func (t *gmailListMessagesTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	accessToken, fail := t.deps.googleAccessToken(ctx, req.UserID, scopeGmailReadonly)
	if fail != nil {
		return fail
	}
	limit := tools.IntArg(req.Input, "limit", 10)
	if limit > 25 {
		limit = 25
	}

	listURL := fmt.Sprintf("%s/users/me/messages?maxResults=%d", t.deps.GmailBaseURL, limit)
	if query := tools.StringArg(req.Input, "query"); query != "" {
		listURL += "&q=" + neturl.QueryEscape(query)
	}
	raw, fail := t.deps.googleGet(ctx, accessToken, listURL)
	if fail != nil {
		return fail
	}

	var listed struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(raw, &listed); err != nil {
		return ports.ToolError(fmt.Sprintf("parsing Gmail response: %v", err))
	}
	if len(listed.Messages) == 0 {
		return ports.ToolOK("No messages matched.", "Listed 0 Gmail messages")
	}

	// Metadata fan-out: one request per message, bounded concurrency.
	messages := make([]*gmailMessage, len(listed.Messages))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(5)
	for i, ref := range listed.Messages {
		group.Go(func() error {
			metaURL := fmt.Sprintf(
				"%s/users/me/messages/%s?format=metadata&metadataHeaders=From&metadataHeaders=Subject&metadataHeaders=Date",
				t.deps.GmailBaseURL, ref.ID)
			raw, fail := t.deps.googleGet(groupCtx, accessToken, metaURL)
			if fail != nil {
				return fmt.Errorf("%s", fail.Err)
			}
			msg, err := parseGmailMessage(raw, false)
			if err != nil {
				return err
			}
			messages[i] = msg
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return ports.ToolError(fmt.Sprintf("fetching Gmail metadata: %v", err))
	}

	return ports.ToolOK(renderJSON(messages), fmt.Sprintf("Listed %d Gmail messages", len(messages)))
}

type gmailReadMessageTool struct{ deps *Deps }

func (t *gmailReadMessageTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "gmail_read_message",
		Description: "Read the full body of one Gmail message.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"message_id": {Type: "string", Description: "Gmail message id."},
			},
			Required: []string{"message_id"},
		},
	}
}

func (t *gmailReadMessageTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	accessToken, fail := t.deps.googleAccessToken(ctx, req.UserID, scopeGmailReadonly)
	if fail != nil {
		return fail
	}
	messageID := tools.StringArg(req.Input, "message_id")
	raw, fail := t.deps.googleGet(ctx, accessToken,
		fmt.Sprintf("%s/users/me/messages/%s?format=full", t.deps.GmailBaseURL, messageID))
	if fail != nil {
		return fail
	}
	msg, err := parseGmailMessage(raw, true)
	if err != nil {
		return ports.ToolError(fmt.Sprintf("parsing Gmail message: %v", err))
	}
	return ports.ToolOK(renderJSON(msg), "Read Gmail message "+messageID)
}

type gmailCreateDraftTool struct{ deps *Deps }

func (t *gmailCreateDraftTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "gmail_create_draft",
		Description: "Create a Gmail draft. Nothing is sent.",
		Parameters:  emailComposeSchema(),
	}
}

func (t *gmailCreateDraftTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	accessToken, fail := t.deps.googleAccessToken(ctx, req.UserID, scopeGmailCompose)
	if fail != nil {
		return fail
	}
	payload, err := json.Marshal(map[string]any{
		"message": map[string]string{"raw": encodeRFC822(req.Input)},
	})
	if err != nil {
		return ports.ToolError(fmt.Sprintf("encoding draft: %v", err))
	}
	raw, fail := t.deps.googleDo(ctx, accessToken, "POST",
		t.deps.GmailBaseURL+"/users/me/drafts", "application/json", bytes.NewReader(payload))
	if fail != nil {
		return fail
	}
	var draft struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &draft); err != nil {
		return ports.ToolError(fmt.Sprintf("parsing Gmail response: %v", err))
	}
	return ports.ToolOK(renderJSON(map[string]string{"draft_id": draft.ID}),
		"Created Gmail draft for "+tools.StringArg(req.Input, "to"))
}

type gmailSendEmailTool struct{ deps *Deps }

func (t *gmailSendEmailTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "gmail_send_email",
		Description: "Send an email from the user's Gmail account.",
		Parameters:  emailComposeSchema(),
		SideEffect:  true,
	}
}

func (t *gmailSendEmailTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	accessToken, fail := t.deps.googleAccessToken(ctx, req.UserID, scopeGmailSend)
	if fail != nil {
		return fail
	}
	payload, err := json.Marshal(map[string]string{"raw": encodeRFC822(req.Input)})
	if err != nil {
		return ports.ToolError(fmt.Sprintf("encoding message: %v", err))
	}
	raw, fail := t.deps.googleDo(ctx, accessToken, "POST",
		t.deps.GmailBaseURL+"/users/me/messages/send", "application/json", bytes.NewReader(payload))
	if fail != nil {
		return fail
	}
	var sent struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &sent); err != nil {
		return ports.ToolError(fmt.Sprintf("parsing Gmail response: %v", err))
	}
	return ports.ToolOK(renderJSON(map[string]string{"message_id": sent.ID}),
		"Sent email to "+tools.StringArg(req.Input, "to"))
}

func emailComposeSchema() ports.ParameterSchema {
	return ports.ParameterSchema{
		Type: "object",
		Properties: map[string]ports.Property{
			"to":      {Type: "string", Description: "Recipient address."},
			"subject": {Type: "string", Description: "Subject line."},
			"body":    {Type: "string", Description: "Plain-text body."},
		},
		Required: []string{"to", "subject", "body"},
	}
}

// encodeRFC822 builds the base64url message Gmail's API expects.
func encodeRFC822(input map[string]any) string {
	var msg strings.Builder
	fmt.Fprintf(&msg, "To: %s\r\n", tools.StringArg(input, "to"))
	fmt.Fprintf(&msg, "Subject: %s\r\n", tools.StringArg(input, "subject"))
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(tools.StringArg(input, "body"))
	return base64.URLEncoding.EncodeToString([]byte(msg.String()))
}

// parseGmailMessage flattens the API's nested payload into a gmailMessage.
func parseGmailMessage(raw []byte, includeBody bool) (*gmailMessage, error) {
	var parsed struct {
		ID      string `json:"id"`
		Snippet string `json:"snippet"`
		Payload struct {
			Headers []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"headers"`
			Body struct {
				Data string `json:"data"`
			} `json:"body"`
			Parts []struct {
				MimeType string `json:"mimeType"`
				Body     struct {
					Data string `json:"data"`
				} `json:"body"`
			} `json:"parts"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}

	msg := &gmailMessage{ID: parsed.ID, Snippet: parsed.Snippet}
	for _, header := range parsed.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "from":
			msg.From = header.Value
		case "to":
			msg.To = header.Value
		case "subject":
			msg.Subject = header.Value
		case "date":
			msg.Date = header.Value
		}
	}
	if includeBody {
		data := parsed.Payload.Body.Data
		if data == "" {
			for _, part := range parsed.Payload.Parts {
				if part.MimeType == "text/plain" && part.Body.Data != "" {
					data = part.Body.Data
					break
				}
			}
		}
		if data != "" {
			if decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(data); err == nil {
				msg.Body = string(decoded)
			}
		}
	}
	return msg, nil
}
