package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aide/internal/agent/ports"
	"aide/internal/taskstore"
)

type staticTokens struct {
	token      *ports.ConnectorToken
	refreshed  *ports.ConnectorToken
	refreshHit int
}

func (s *staticTokens) Token(ctx context.Context, userID, provider string) (*ports.ConnectorToken, error) {
	return s.token, nil
}

func (s *staticTokens) Refresh(ctx context.Context, userID, provider string) (*ports.ConnectorToken, error) {
	s.refreshHit++
	if s.refreshed != nil {
		return s.refreshed, nil
	}
	return s.token, nil
}

func testDeps(t *testing.T) (*Deps, *taskstore.MemoryStore) {
	t.Helper()
	store := taskstore.NewMemoryStore()
	deps := &Deps{
		Records: NewMemoryRecords(),
		Tasks:   store,
		Events:  store.Events(),
	}
	deps.normalize()
	return deps, store
}

func TestCatalogNamesAreUnique(t *testing.T) {
	deps, _ := testDeps(t)
	seen := map[string]bool{}
	for _, handler := range All(deps) {
		name := handler.Definition().Name
		assert.False(t, seen[name], "duplicate tool %s", name)
		seen[name] = true
	}
	assert.GreaterOrEqual(t, len(seen), 25)
}

func TestSideEffectToolsAreMarked(t *testing.T) {
	deps, _ := testDeps(t)
	want := map[string]bool{
		"gmail_send_email":      true,
		"calendar_create_event": true,
		"github_create_issue":   true,
		"github_create_pr":      true,
	}
	for _, handler := range All(deps) {
		def := handler.Definition()
		assert.Equal(t, want[def.Name], def.SideEffect, "tool %s", def.Name)
	}
}

func TestAskUserAppendsQuestionAndPauses(t *testing.T) {
	deps, store := testDeps(t)
	tool := &askUserTool{deps}

	outcome := tool.Execute(context.Background(), &ports.ToolRequest{
		UserID: "u1", TaskID: "t1",
		Input: map[string]any{
			"question": "Which tone should the email use?",
			"options":  []any{"formal", "casual"},
		},
	})
	require.True(t, outcome.Pause)
	assert.Equal(t, ports.PauseReasonAskUser, outcome.PauseReason)

	event, err := store.Events().Get(context.Background(), "u1", outcome.EventID)
	require.NoError(t, err)
	assert.Equal(t, ports.EventKindQuestion, event.Kind)
	assert.Equal(t, "Which tone should the email use?", event.Message)
	assert.Len(t, event.Payload["options"], 2)
}

func TestDraftLifecycle(t *testing.T) {
	deps, _ := testDeps(t)
	ctx := context.Background()
	req := func(input map[string]any) *ports.ToolRequest {
		return &ports.ToolRequest{UserID: "u1", TaskID: "t1", Input: input}
	}

	create := &createDraftTool{deps}
	outcome := create.Execute(ctx, req(map[string]any{"path": "outreach.md", "content": "Hi"}))
	require.True(t, outcome.OK, outcome.Err)

	// Creating the same path twice fails.
	outcome = create.Execute(ctx, req(map[string]any{"path": "outreach.md", "content": "Hi"}))
	assert.False(t, outcome.OK)

	update := &updateDraftTool{deps}
	outcome = update.Execute(ctx, req(map[string]any{"path": "outreach.md", "content": "Hello there"}))
	require.True(t, outcome.OK, outcome.Err)

	read := &readFileTool{deps}
	outcome = read.Execute(ctx, req(map[string]any{"path": "outreach.md"}))
	require.True(t, outcome.OK, outcome.Err)
	assert.Equal(t, "Hello there", outcome.Result)
}

func TestFetchURLExtractsText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Pricing</title><script>alert(1)</script></head>
<body><h1>Plans</h1><p>The starter plan costs ten dollars per month.</p>
<ul><li>Starter</li><li>Pro</li></ul></body></html>`))
	}))
	defer server.Close()

	deps, _ := testDeps(t)
	tool := &fetchURLTool{deps}
	outcome := tool.Execute(context.Background(), &ports.ToolRequest{
		UserID: "u1", Input: map[string]any{"url": server.URL},
	})
	require.True(t, outcome.OK, outcome.Err)
	assert.Contains(t, outcome.Result, "Title: Pricing")
	assert.Contains(t, outcome.Result, "# Plans")
	assert.Contains(t, outcome.Result, "starter plan")
	assert.Contains(t, outcome.Result, "- Pro")
	assert.NotContains(t, outcome.Result, "alert(1)")
}

func TestFetchURLRejectsBadScheme(t *testing.T) {
	deps, _ := testDeps(t)
	tool := &fetchURLTool{deps}
	outcome := tool.Execute(context.Background(), &ports.ToolRequest{
		Input: map[string]any{"url": "ftp://example.com"},
	})
	assert.False(t, outcome.OK)
}

func TestWebSearchRequiresKey(t *testing.T) {
	deps, _ := testDeps(t)
	tool := &webSearchTool{deps}
	outcome := tool.Execute(context.Background(), &ports.ToolRequest{
		Input: map[string]any{"query": "golang"},
	})
	assert.False(t, outcome.OK)
	assert.Contains(t, outcome.Err, "not configured")
}

func TestWebSearchFormatsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"Go is a language.","results":[
{"title":"Go","url":"https://go.dev","content":"The Go programming language."}]}`))
	}))
	defer server.Close()

	deps, _ := testDeps(t)
	deps.TavilyAPIKey = "key"
	deps.TavilyBaseURL = server.URL
	tool := &webSearchTool{deps}

	outcome := tool.Execute(context.Background(), &ports.ToolRequest{
		Input: map[string]any{"query": "golang"},
	})
	require.True(t, outcome.OK, outcome.Err)
	assert.Contains(t, outcome.Result, "Summary: Go is a language.")
	assert.Contains(t, outcome.Result, "https://go.dev")
}

func TestGitHubListIssues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/site/issues", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"number":7,"title":"Fix header","state":"open","html_url":"u"}]`))
	}))
	defer server.Close()

	deps, _ := testDeps(t)
	deps.GitHubToken = "tok"
	deps.GitHubBaseURL = server.URL
	tool := &githubListIssuesTool{deps}

	outcome := tool.Execute(context.Background(), &ports.ToolRequest{
		UserID: "u1",
		Input:  map[string]any{"owner": "acme", "repo": "site"},
	})
	require.True(t, outcome.OK, outcome.Err)
	assert.Contains(t, outcome.Result, "Fix header")
}

func TestGoogleTokenScopeCheck(t *testing.T) {
	deps, _ := testDeps(t)
	deps.Tokens = &staticTokens{token: &ports.ConnectorToken{
		Provider:    "google",
		AccessToken: "at",
		Scopes:      []string{scopeGmailReadonly},
		ExpiresAt:   time.Now().Add(time.Hour),
	}}

	_, fail := deps.googleAccessToken(context.Background(), "u1", scopeGmailSend)
	require.NotNil(t, fail)
	assert.Contains(t, fail.Err, "reconnect")

	token, fail := deps.googleAccessToken(context.Background(), "u1", scopeGmailReadonly)
	require.Nil(t, fail)
	assert.Equal(t, "at", token)
}

func TestGoogleTokenRefreshesNearExpiry(t *testing.T) {
	deps, _ := testDeps(t)
	tokens := &staticTokens{
		token: &ports.ConnectorToken{
			AccessToken: "stale",
			Scopes:      []string{scopeCalendarReadonly},
			ExpiresAt:   time.Now().Add(30 * time.Second),
		},
		refreshed: &ports.ConnectorToken{
			AccessToken: "fresh",
			Scopes:      []string{scopeCalendarReadonly},
			ExpiresAt:   time.Now().Add(time.Hour),
		},
	}
	deps.Tokens = tokens

	token, fail := deps.googleAccessToken(context.Background(), "u1", scopeCalendarReadonly)
	require.Nil(t, fail)
	assert.Equal(t, "fresh", token)
	assert.Equal(t, 1, tokens.refreshHit)
}

func TestGmailListMessagesFanOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[{"id":"m1"},{"id":"m2"}]}`))
	})
	mux.HandleFunc("/users/me/messages/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/users/me/messages/"):]
		_, _ = w.Write([]byte(`{"id":"` + id + `","snippet":"snippet of ` + id + `","payload":{"headers":[
{"name":"From","value":"alice@example.com"},{"name":"Subject","value":"Re: ` + id + `"}]}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	deps, _ := testDeps(t)
	deps.GmailBaseURL = server.URL
	deps.Tokens = &staticTokens{token: &ports.ConnectorToken{
		AccessToken: "at",
		Scopes:      []string{scopeGmailReadonly},
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	tool := &gmailListMessagesTool{deps}

	outcome := tool.Execute(context.Background(), &ports.ToolRequest{UserID: "u1", Input: map[string]any{}})
	require.True(t, outcome.OK, outcome.Err)
	assert.Contains(t, outcome.Result, "Re: m1")
	assert.Contains(t, outcome.Result, "Re: m2")
	assert.Contains(t, outcome.Result, "alice@example.com")
}
