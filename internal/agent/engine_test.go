package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aide/internal/agent/ports"
	"aide/internal/llm"
	"aide/internal/logging"
	"aide/internal/notification"
	"aide/internal/runstate"
	"aide/internal/taskstore"
	"aide/internal/tools"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingScheduler struct {
	mu    sync.Mutex
	calls []string
}

func (s *recordingScheduler) ScheduleContinuation(userID, taskID string) {
	s.mu.Lock()
	s.calls = append(s.calls, userID+"/"+taskID)
	s.mu.Unlock()
}

func (s *recordingScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type staticSettings struct {
	settings *ports.Settings
	err      error
}

func (s *staticSettings) Settings(ctx context.Context, userID string) (*ports.Settings, error) {
	return s.settings, s.err
}

type scriptedTool struct {
	def  ports.ToolDefinition
	fn   func(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome
	runs int
}

func (t *scriptedTool) Definition() ports.ToolDefinition { return t.def }

func (t *scriptedTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	t.runs++
	return t.fn(ctx, req)
}

type engineFixture struct {
	store    *taskstore.MemoryStore
	registry *tools.Registry
	notifier *notification.MemoryNotifier
	sched    *recordingScheduler
	client   *llm.MockClient
	clock    *fakeClock
	engine   *Engine
}

func testBudgets() Budgets {
	b := DefaultBudgets()
	b.MaxElapsed = time.Minute
	b.MaxStepsPerRun = 10
	b.StepPacing = 0
	b.ChunkDelay = 0
	b.ChunkSize = 0
	b.StreamFlushBytes = 1
	b.StreamFlushInterval = 0
	return b
}

func newEngineFixture(t *testing.T, budgets Budgets, responses ...*ports.CompletionResponse) *engineFixture {
	t.Helper()
	f := &engineFixture{
		store:    taskstore.NewMemoryStore(),
		notifier: notification.NewMemoryNotifier(),
		sched:    &recordingScheduler{},
		client:   llm.NewMockClient("mock-model", responses...),
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.registry = tools.NewRegistry(f.store.Events())
	f.engine = NewEngine(Capabilities{
		Tasks:     f.store.Tasks(),
		Events:    f.store.Events(),
		Tools:     f.registry,
		Settings:  &staticSettings{settings: &ports.Settings{Provider: "openai", Model: "gpt-test", APIKey: "key"}},
		Notifier:  f.notifier,
		Scheduler: f.sched,
	}, budgets,
		WithClock(f.clock),
		WithSleep(func(ctx context.Context, d time.Duration) {}),
		WithClientFactory(func(*ports.Settings) (ports.LLMClient, error) { return f.client, nil }),
		WithLogger(logging.Nop()),
	)
	return f
}

func (f *engineFixture) createTask(t *testing.T, title string) *ports.Task {
	t.Helper()
	task, err := f.store.CreateTask(context.Background(), "u1", title, "", "")
	require.NoError(t, err)
	return task
}

func (f *engineFixture) task(t *testing.T, id string) *ports.Task {
	t.Helper()
	task, err := f.store.Tasks().Get(context.Background(), "u1", id)
	require.NoError(t, err)
	return task
}

func (f *engineFixture) events(t *testing.T, taskID string, kind ports.EventKind) []*ports.TaskEvent {
	t.Helper()
	all, err := f.store.Events().ListByTask(context.Background(), "u1", taskID, 0)
	require.NoError(t, err)
	var out []*ports.TaskEvent
	for _, event := range all {
		if event.Kind == kind {
			out = append(out, event)
		}
	}
	return out
}

func textResp(content string) *ports.CompletionResponse {
	return &ports.CompletionResponse{Content: content}
}

func toolResp(name string, args map[string]any) *ports.CompletionResponse {
	return &ports.CompletionResponse{ToolCalls: []ports.ToolCall{{
		ID: "call_" + name, Name: name, Arguments: args,
	}}}
}

func planResp(steps ...string) *ports.CompletionResponse {
	raw, _ := json.Marshal(map[string]any{"planSteps": steps})
	return textResp(string(raw))
}

func stepResp(summary, output string) *ports.CompletionResponse {
	raw, _ := json.Marshal(map[string]string{
		"stepSummary":        summary,
		"stepOutputMarkdown": output,
	})
	return textResp(string(raw))
}

func finalResp(summary, markdown string) *ports.CompletionResponse {
	raw, _ := json.Marshal(map[string]string{
		"summary":        summary,
		"resultMarkdown": markdown,
	})
	return textResp(string(raw))
}

const finalMarkdown = "# Outreach email\n\nHi Jordan,\n\nI wanted to reach out about the upcoming partnership review.\n\nBest,\nSam"

func sendEmailTool(outcome *ports.ToolOutcome) *scriptedTool {
	return &scriptedTool{
		def: ports.ToolDefinition{
			Name:        "send_email",
			Description: "Send an email on the user's behalf",
			Parameters: ports.ParameterSchema{
				Type: "object",
				Properties: map[string]ports.Property{
					"to":   {Type: "string"},
					"body": {Type: "string"},
				},
				Required: []string{"to"},
			},
			SideEffect: true,
		},
		fn: func(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
			return outcome
		},
	}
}

func TestRunCompletesFreshTask(t *testing.T) {
	f := newEngineFixture(t, testBudgets(),
		planResp("Research the recipient", "Draft the email", "Polish the wording"),
		stepResp("Researched the recipient", "Jordan leads partnerships at Acme and prefers short emails."),
		stepResp("Drafted the email", "## Draft\n\nHi Jordan, reaching out about the partnership review."),
		stepResp("Polished the wording", "Tightened the opening line and fixed the sign-off."),
		finalResp("Drafted a concise outreach email to Jordan.", finalMarkdown),
	)
	task := f.createTask(t, "Draft outreach email")

	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))

	got := f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusSucceeded, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "Done", got.Phase)
	assert.Empty(t, got.State)
	assert.Equal(t, finalMarkdown, got.Result)
	assert.Equal(t, "Drafted a concise outreach email to Jordan.", got.Summary)
	assert.Len(t, got.Plan, 3)
	require.NotNil(t, got.CompletedAt)

	results := f.events(t, task.ID, ports.EventKindResult)
	require.Len(t, results, 1)

	notes := f.notifier.All()
	require.Len(t, notes, 1)
	assert.Equal(t, "Task completed: Draft outreach email", notes[0].Title)

	assert.Zero(t, f.sched.count())
}

func TestRunPausesForApprovalAndResumeIsIdempotent(t *testing.T) {
	f := newEngineFixture(t, testBudgets(),
		planResp("Send the update email"),
		toolResp("send_email", map[string]any{"to": "jordan@acme.test", "body": "Update attached."}),
	)
	f.registry.MustRegister(sendEmailTool(ports.ToolOK("sent", "Sent the email")))
	task := f.createTask(t, "Send weekly update")

	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))

	got := f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusRunning, got.Status)
	assert.Equal(t, "Waiting for your approval", got.Phase)

	state := runstate.Decode(got.State)
	require.NotNil(t, state)
	require.True(t, state.Waiting())
	assert.Equal(t, runstate.WaitKindApproval, state.WaitingForKind)

	requests := f.events(t, task.ID, ports.EventKindApprovalRequest)
	require.Len(t, requests, 1)
	assert.Equal(t, "send_email", requests[0].Payload["tool"])
	assert.Equal(t, state.WaitingForEventID, requests[0].ID)

	// A continuation delivered before the user decides must change nothing.
	callsBefore := len(f.client.Requests())
	require.NoError(t, f.engine.Continue(context.Background(), "u1", task.ID))
	assert.Len(t, f.client.Requests(), callsBefore)
	got = f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusRunning, got.Status)
	assert.Equal(t, "Waiting for your approval", got.Phase)
}

func TestApprovalIsRememberedForTheTask(t *testing.T) {
	f := newEngineFixture(t, testBudgets(),
		planResp("Send the update email"),
		toolResp("send_email", map[string]any{"to": "jordan@acme.test"}),
	)
	tool := sendEmailTool(ports.ToolOK("sent", "Sent the email"))
	f.registry.MustRegister(tool)
	task := f.createTask(t, "Send weekly update")

	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))
	state := runstate.Decode(f.task(t, task.ID).State)
	require.NotNil(t, state)
	require.True(t, state.Waiting())

	require.NoError(t, f.store.Events().SetApproval(context.Background(), "u1", state.WaitingForEventID, true))

	// The retried step sends twice; the second call must not re-request
	// approval.
	f.client.Enqueue(
		toolResp("send_email", map[string]any{"to": "jordan@acme.test"}),
		toolResp("send_email", map[string]any{"to": "sam@acme.test"}),
		stepResp("Sent both emails", "Both update emails went out to Jordan and Sam."),
		finalResp("Weekly update sent.", finalMarkdown),
	)
	require.NoError(t, f.engine.Continue(context.Background(), "u1", task.ID))

	got := f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusSucceeded, got.Status)
	assert.Empty(t, got.State)
	assert.Equal(t, 2, tool.runs)
	assert.Len(t, f.events(t, task.ID, ports.EventKindApprovalRequest), 1)
}

func TestDeniedToolStaysBlocked(t *testing.T) {
	f := newEngineFixture(t, testBudgets(),
		planResp("Send the update email"),
		toolResp("send_email", map[string]any{"to": "jordan@acme.test"}),
	)
	tool := sendEmailTool(ports.ToolOK("sent", "Sent the email"))
	f.registry.MustRegister(tool)
	task := f.createTask(t, "Send weekly update")

	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))
	state := runstate.Decode(f.task(t, task.ID).State)
	require.NotNil(t, state)

	require.NoError(t, f.store.Events().SetApproval(context.Background(), "u1", state.WaitingForEventID, false))

	f.client.Enqueue(
		toolResp("send_email", map[string]any{"to": "jordan@acme.test"}),
		stepResp("Could not send", "The user declined sending; summarized the update for manual delivery instead."),
		finalResp("Update summarized for manual sending.", finalMarkdown),
	)
	require.NoError(t, f.engine.Continue(context.Background(), "u1", task.ID))

	got := f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusSucceeded, got.Status)
	assert.Zero(t, tool.runs)
	assert.Len(t, f.events(t, task.ID, ports.EventKindApprovalRequest), 1)
}

func askUserTool(f *engineFixture) *scriptedTool {
	return &scriptedTool{
		def: ports.ToolDefinition{
			Name:        "ask_user",
			Description: "Ask the user a clarifying question",
			Parameters: ports.ParameterSchema{
				Type:       "object",
				Properties: map[string]ports.Property{"question": {Type: "string"}},
				Required:   []string{"question"},
			},
		},
		fn: func(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
			question, _ := req.Input["question"].(string)
			event, err := f.store.Events().Append(ctx, &ports.TaskEvent{
				TaskID:  req.TaskID,
				UserID:  req.UserID,
				Kind:    ports.EventKindQuestion,
				Message: question,
			})
			if err != nil {
				return ports.ToolError(err.Error())
			}
			return ports.ToolPause(ports.PauseReasonAskUser, event.ID, "")
		},
	}
}

func TestQuestionPauseFoldsAnswerIntoContext(t *testing.T) {
	f := newEngineFixture(t, testBudgets(),
		planResp("Book the meeting room"),
		toolResp("ask_user", map[string]any{"question": "Which day works for the meeting?"}),
	)
	f.registry.MustRegister(askUserTool(f))
	task := f.createTask(t, "Book a meeting room")

	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))

	got := f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusRunning, got.Status)
	assert.Equal(t, "Waiting for your answer", got.Phase)
	state := runstate.Decode(got.State)
	require.NotNil(t, state)
	assert.Equal(t, runstate.WaitKindQuestion, state.WaitingForKind)

	// Resume before the answer arrives is a no-op.
	callsBefore := len(f.client.Requests())
	require.NoError(t, f.engine.Continue(context.Background(), "u1", task.ID))
	assert.Len(t, f.client.Requests(), callsBefore)
	assert.Equal(t, "Waiting for your answer", f.task(t, task.ID).Phase)

	require.NoError(t, f.store.Events().SetAnswer(context.Background(), "u1", state.WaitingForEventID, "Thursday afternoon"))
	f.client.Enqueue(
		stepResp("Booked the room", "Reserved the large meeting room for Thursday afternoon."),
		finalResp("Meeting room booked.", finalMarkdown),
	)
	require.NoError(t, f.engine.Continue(context.Background(), "u1", task.ID))

	got = f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusSucceeded, got.Status)

	// The retried step prompt carries the user's answer.
	requests := f.client.Requests()
	require.GreaterOrEqual(t, len(requests), 3)
	stepPromptText := requests[2].Messages[1].Content
	assert.Contains(t, stepPromptText, "Thursday afternoon")
}

func TestQuestionPauseDuringPlanningResumes(t *testing.T) {
	// The model can ask a clarifying question before any plan exists. The
	// pause must survive the round trip through the persisted state, and the
	// replanned prompt must carry the answer.
	f := newEngineFixture(t, testBudgets(),
		toolResp("ask_user", map[string]any{"question": "Should the report include pricing?"}),
	)
	f.registry.MustRegister(askUserTool(f))
	task := f.createTask(t, "Prepare the partner report")

	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))

	got := f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusRunning, got.Status)
	assert.Equal(t, "Waiting for your answer", got.Phase)
	state := runstate.Decode(got.State)
	require.NotNil(t, state)
	assert.Empty(t, state.PlanSteps)
	assert.Equal(t, runstate.WaitKindQuestion, state.WaitingForKind)

	// Resume before the answer arrives is a no-op.
	callsBefore := len(f.client.Requests())
	require.NoError(t, f.engine.Continue(context.Background(), "u1", task.ID))
	assert.Len(t, f.client.Requests(), callsBefore)

	require.NoError(t, f.store.Events().SetAnswer(context.Background(), "u1", state.WaitingForEventID, "Yes, include pricing details"))
	f.client.Enqueue(
		planResp("Draft the report"),
		stepResp("Drafted the report", "Wrote the partner report with the pricing section included."),
		finalResp("Partner report ready.", finalMarkdown),
	)
	require.NoError(t, f.engine.Continue(context.Background(), "u1", task.ID))

	got = f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusSucceeded, got.Status)

	// The second planning prompt carries the user's answer.
	requests := f.client.Requests()
	require.GreaterOrEqual(t, len(requests), 2)
	replanPrompt := requests[1].Messages[1].Content
	assert.Contains(t, replanPrompt, "Yes, include pricing details")
}

func TestFinalizeCanUseTools(t *testing.T) {
	styleGuide := &scriptedTool{
		def: ports.ToolDefinition{
			Name:        "fetch_style_guide",
			Description: "Fetch the user's writing style guide",
			Parameters:  ports.ParameterSchema{Type: "object"},
		},
		fn: func(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
			return ports.ToolOK("Keep it short and warm.", "Fetched the style guide")
		},
	}
	f := newEngineFixture(t, testBudgets(),
		planResp("Draft the email"),
		stepResp("Drafted the email", "## Draft\n\nHi Jordan, reaching out about the partnership review."),
		toolResp("fetch_style_guide", map[string]any{}),
		finalResp("Email polished against the style guide.", finalMarkdown),
	)
	f.registry.MustRegister(styleGuide)
	task := f.createTask(t, "Draft outreach email")

	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))

	got := f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusSucceeded, got.Status)
	assert.Equal(t, finalMarkdown, got.Result)
	assert.Equal(t, 1, styleGuide.runs)
}

func TestStepBudgetYieldsExactlyOnce(t *testing.T) {
	budgets := testBudgets()
	budgets.MaxStepsPerRun = 2
	f := newEngineFixture(t, budgets,
		planResp("Collect inputs", "Write the report", "Proofread"),
		stepResp("Collected inputs", "Pulled the quarterly numbers from the shared sheet."),
		stepResp("Wrote the report", "Drafted the three main sections with the numbers."),
	)
	task := f.createTask(t, "Write quarterly report")

	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))

	got := f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusRunning, got.Status)
	assert.Equal(t, "Continuing", got.Phase)
	require.Equal(t, 1, f.sched.count())

	state := runstate.Decode(got.State)
	require.NotNil(t, state)
	assert.Equal(t, 2, state.StepIndex)
	assert.Len(t, state.PlanSteps, 3)

	f.client.Enqueue(
		stepResp("Proofread", "Fixed two typos and normalized the headings."),
		finalResp("Quarterly report written.", finalMarkdown),
	)
	require.NoError(t, f.engine.Continue(context.Background(), "u1", task.ID))

	got = f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusSucceeded, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Empty(t, got.State)
	assert.Equal(t, 1, f.sched.count())
}

func TestElapsedBudgetYields(t *testing.T) {
	budgets := testBudgets()
	budgets.MaxElapsed = 30 * time.Second
	budgets.StepPacing = 40 * time.Second
	f := newEngineFixture(t, budgets,
		planResp("Gather sources", "Summarize findings", "Write conclusion"),
		stepResp("Gathered sources", "Found four relevant articles on the topic."),
		stepResp("Summarized findings", "Condensed the articles into five key points."),
	)
	// Pacing advances the fake clock, so the second step crosses the ceiling.
	f.engine.sleep = func(ctx context.Context, d time.Duration) { f.clock.Advance(d) }
	task := f.createTask(t, "Research summary")

	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))

	got := f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusRunning, got.Status)
	assert.Equal(t, "Continuing", got.Phase)
	assert.Equal(t, 1, f.sched.count())
	state := runstate.Decode(got.State)
	require.NotNil(t, state)
	assert.Equal(t, 2, state.StepIndex)
}

func TestStartSupersedesPreviousRun(t *testing.T) {
	f := newEngineFixture(t, testBudgets(),
		planResp("Draft the email"),
		stepResp("Drafted", "Wrote the first version of the outreach email."),
		finalResp("First draft done.", "# First draft\n\nHi Jordan, here is the first version of the email."),
	)
	task := f.createTask(t, "Draft outreach email")

	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))
	require.Equal(t, ports.TaskStatusSucceeded, f.task(t, task.ID).Status)

	f.client.Enqueue(
		planResp("Redraft the email"),
		stepResp("Redrafted", "Rewrote the email with a sharper opening."),
		finalResp("Second draft done.", finalMarkdown),
	)
	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))

	got := f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusSucceeded, got.Status)
	assert.Equal(t, finalMarkdown, got.Result)
	assert.Equal(t, "Second draft done.", got.Summary)
	assert.Equal(t, []string{"Redraft the email"}, got.Plan)

	// The restart cleared the first run's timeline.
	started := f.events(t, task.ID, ports.EventKindStatus)
	var startCount int
	for _, event := range started {
		if event.Message == "Run started" {
			startCount++
		}
	}
	assert.Equal(t, 1, startCount)
	assert.Len(t, f.events(t, task.ID, ports.EventKindResult), 1)
}

func TestUnparseablePlanFallsBack(t *testing.T) {
	f := newEngineFixture(t, testBudgets(),
		textResp("I will just get started right away."),
		stepResp("Gathered context", "Collected the background the task needs."),
		stepResp("Drafted", "Produced the core deliverable for the task."),
		stepResp("Reviewed", "Checked the deliverable and fixed rough edges."),
		finalResp("Task finished.", finalMarkdown),
	)
	task := f.createTask(t, "Vague request")

	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))

	got := f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusSucceeded, got.Status)
	assert.Len(t, got.Plan, 3)
}

func TestShortStepOutputFailsTheRun(t *testing.T) {
	f := newEngineFixture(t, testBudgets(),
		planResp("Do the work"),
		stepResp("Done", "ok"),
	)
	task := f.createTask(t, "Tiny output")

	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))

	got := f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusFailed, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Contains(t, got.Error, "step 1 produced no usable output")
	assert.Empty(t, got.State)

	notes := f.notifier.All()
	require.Len(t, notes, 1)
	assert.Equal(t, "Task failed: Tiny output", notes[0].Title)
	assert.Len(t, f.events(t, task.ID, ports.EventKindError), 1)
}

func TestShortFinalOutputFailsTheRun(t *testing.T) {
	f := newEngineFixture(t, testBudgets(),
		planResp("Do the work"),
		stepResp("Did the work", "Produced a reasonable amount of step output here."),
		finalResp("Done.", "too short"),
	)
	task := f.createTask(t, "Thin result")

	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))

	got := f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusFailed, got.Status)
	assert.Contains(t, got.Error, "without a usable result")
}

func TestMissingModelConfigurationFailsTheRun(t *testing.T) {
	f := newEngineFixture(t, testBudgets())
	f.engine.caps.Settings = &staticSettings{err: assert.AnError}
	task := f.createTask(t, "No model")

	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))

	got := f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusFailed, got.Status)
	assert.Contains(t, got.Error, "model not configured")
}

func TestContinueWithoutStateIsNoOp(t *testing.T) {
	f := newEngineFixture(t, testBudgets())
	task := f.createTask(t, "Idle task")

	// Idle task: nothing to resume.
	require.NoError(t, f.engine.Continue(context.Background(), "u1", task.ID))
	assert.Empty(t, f.client.Requests())

	// Running but with no persisted state, e.g. after a crash mid-start.
	running := ports.TaskStatusRunning
	require.NoError(t, f.store.Tasks().Patch(context.Background(), "u1", task.ID, ports.TaskPatch{Status: &running}))
	require.NoError(t, f.engine.Continue(context.Background(), "u1", task.ID))
	assert.Empty(t, f.client.Requests())
}

func TestContinueFailsWhenWaitEventVanished(t *testing.T) {
	f := newEngineFixture(t, testBudgets())
	task := f.createTask(t, "Lost event")

	state := runstate.New()
	state.PlanSteps = []string{"Do the work"}
	state.SetWait(runstate.WaitKindApproval, "evt_gone")
	encoded := runstate.Encode(state)
	running := ports.TaskStatusRunning
	require.NoError(t, f.store.Tasks().Patch(context.Background(), "u1", task.ID, ports.TaskPatch{
		Status: &running,
		State:  &encoded,
	}))

	require.NoError(t, f.engine.Continue(context.Background(), "u1", task.ID))

	got := f.task(t, task.ID)
	assert.Equal(t, ports.TaskStatusFailed, got.Status)
	assert.Contains(t, got.Error, "lost track of the pending approval")
}

func TestPlainCompletionFallbackWithoutToolSupport(t *testing.T) {
	f := newEngineFixture(t, testBudgets(),
		planResp("Write the note"),
		stepResp("Wrote the note", "A short note covering the agreed follow-ups."),
		finalResp("Note written.", finalMarkdown),
	)
	f.client.SetSupportsToolCalls(false)
	task := f.createTask(t, "Write a note")

	require.NoError(t, f.engine.Start(context.Background(), "u1", task.ID))

	assert.Equal(t, ports.TaskStatusSucceeded, f.task(t, task.ID).Status)
	for _, req := range f.client.Requests() {
		assert.Empty(t, req.Tools)
	}
}
