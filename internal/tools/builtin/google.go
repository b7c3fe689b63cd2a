package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aide/internal/agent/ports"
)

// Google OAuth scopes the tools declare.
const (
	scopeGmailReadonly    = "https://www.googleapis.com/auth/gmail.readonly"
	scopeGmailCompose     = "https://www.googleapis.com/auth/gmail.compose"
	scopeGmailSend        = "https://www.googleapis.com/auth/gmail.send"
	scopeCalendarReadonly = "https://www.googleapis.com/auth/calendar.readonly"
	scopeCalendarEvents   = "https://www.googleapis.com/auth/calendar.events"
)

// tokenExpirySlack refreshes tokens that are about to expire rather than
// racing the provider clock.
const tokenExpirySlack = 2 * time.Minute

// googleAccessToken fetches the user's Google token, refreshing just-in-time
// when expired or near expiry, and verifies the granted scopes cover what the
// calling tool needs.
func (d *Deps) googleAccessToken(ctx context.Context, userID string, required ...string) (string, *ports.ToolOutcome) {
	if d.Tokens == nil {
		return "", ports.ToolError("Google account not connected")
	}
	token, err := d.Tokens.Token(ctx, userID, "google")
	if err != nil {
		return "", ports.ToolError(fmt.Sprintf("Google account not connected: %v", err))
	}
	if time.Until(token.ExpiresAt) < tokenExpirySlack {
		token, err = d.Tokens.Refresh(ctx, userID, "google")
		if err != nil {
			return "", ports.ToolError(fmt.Sprintf("refreshing Google token: %v", err))
		}
	}

	granted := map[string]bool{}
	for _, scope := range token.Scopes {
		granted[scope] = true
	}
	for _, scope := range required {
		if !granted[scope] {
			short := scope[strings.LastIndex(scope, "/")+1:]
			return "", ports.ToolError(fmt.Sprintf(
				"missing Google permission %s: reconnect your Google account to grant it", short))
		}
	}
	return token.AccessToken, nil
}

// googleGet performs an authorized GET and returns the body or a tool error.
func (d *Deps) googleGet(ctx context.Context, accessToken, url string) ([]byte, *ports.ToolOutcome) {
	return d.googleDo(ctx, accessToken, http.MethodGet, url, "", nil)
}

func (d *Deps) googleDo(ctx context.Context, accessToken, method, url, contentType string, body io.Reader) ([]byte, *ports.ToolOutcome) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, ports.ToolError(fmt.Sprintf("building Google request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, ports.ToolError(fmt.Sprintf("Google request failed: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, ports.ToolError(fmt.Sprintf("reading Google response: %v", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ports.ToolError(fmt.Sprintf("Google API error (status %d): %s", resp.StatusCode, truncate(string(raw), 500)))
	}
	return raw, nil
}
