package tools

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aide/internal/agent/ports"
	"aide/internal/observability"
	"aide/internal/taskstore"
)

type fakeTool struct {
	def     ports.ToolDefinition
	execute func(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome
}

func (t *fakeTool) Definition() ports.ToolDefinition { return t.def }
func (t *fakeTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	return t.execute(ctx, req)
}

func newTestRegistry(t *testing.T) (*Registry, *taskstore.MemoryStore) {
	t.Helper()
	store := taskstore.NewMemoryStore()
	return NewRegistry(store.Events()), store
}

func echoTool(name string, sideEffect bool) *fakeTool {
	return &fakeTool{
		def: ports.ToolDefinition{
			Name: name,
			Parameters: ports.ParameterSchema{
				Type: "object",
				Properties: map[string]ports.Property{
					"text":  {Type: "string"},
					"count": {Type: "integer"},
				},
				Required: []string{"text"},
			},
			SideEffect: sideEffect,
		},
		execute: func(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
			return ports.ToolOK(StringArg(req.Input, "text"), "echoed")
		},
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	registry, _ := newTestRegistry(t)
	outcome := registry.Execute(context.Background(), &ports.ToolRequest{Name: "nope"})
	assert.False(t, outcome.OK)
	assert.Contains(t, outcome.Err, "unknown tool")
}

func TestRegistryValidatesRequiredFields(t *testing.T) {
	registry, _ := newTestRegistry(t)
	registry.MustRegister(echoTool("echo", false))

	outcome := registry.Execute(context.Background(), &ports.ToolRequest{
		Name:  "echo",
		Input: map[string]any{"count": 2},
	})
	assert.False(t, outcome.OK)
	assert.Contains(t, outcome.Err, "missing required field")
}

func TestRegistryCoercesInput(t *testing.T) {
	registry, _ := newTestRegistry(t)
	var seen map[string]any
	tool := echoTool("echo", false)
	inner := tool.execute
	tool.execute = func(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
		seen = req.Input
		return inner(ctx, req)
	}
	registry.MustRegister(tool)

	outcome := registry.Execute(context.Background(), &ports.ToolRequest{
		Name:  "echo",
		Input: map[string]any{"text": "hi", "count": "3"},
	})
	require.True(t, outcome.OK)
	assert.Equal(t, 3, seen["count"])
}

func TestRegistryApprovalGate(t *testing.T) {
	registry, store := newTestRegistry(t)
	registry.MustRegister(echoTool("send_mail", true))

	ctx := context.Background()
	req := &ports.ToolRequest{
		UserID: "u1",
		TaskID: "t1",
		Name:   "send_mail",
		Input:  map[string]any{"text": "hello"},
	}

	// No prior decision: the call pauses and an approval request is recorded.
	outcome := registry.Execute(ctx, req)
	require.True(t, outcome.Pause)
	assert.Equal(t, ports.PauseReasonApproval, outcome.PauseReason)
	require.NotEmpty(t, outcome.EventID)

	event, err := store.Events().Get(ctx, "u1", outcome.EventID)
	require.NoError(t, err)
	assert.Equal(t, ports.EventKindApprovalRequest, event.Kind)

	// Approved: the handler runs.
	req.ApprovedTools = map[string]bool{"send_mail": true}
	outcome = registry.Execute(ctx, req)
	require.True(t, outcome.OK)
	assert.Equal(t, "hello", outcome.Result)

	// Denied: hard failure, no pause.
	req.ApprovedTools = nil
	req.DeniedTools = map[string]bool{"send_mail": true}
	outcome = registry.Execute(ctx, req)
	assert.False(t, outcome.OK)
	assert.False(t, outcome.Pause)
	assert.Contains(t, outcome.Err, "declined")
}

func TestRegistryRecoversPanics(t *testing.T) {
	registry, _ := newTestRegistry(t)
	registry.MustRegister(&fakeTool{
		def: ports.ToolDefinition{Name: "boom", Parameters: ports.ParameterSchema{Type: "object"}},
		execute: func(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
			panic("kaboom")
		},
	})

	outcome := registry.Execute(context.Background(), &ports.ToolRequest{Name: "boom"})
	assert.False(t, outcome.OK)
	assert.Contains(t, outcome.Err, "failed unexpectedly")
}

func TestRegistryRecordsToolEventPair(t *testing.T) {
	registry, store := newTestRegistry(t)
	registry.MustRegister(echoTool("echo", false))

	ctx := context.Background()
	outcome := registry.Execute(ctx, &ports.ToolRequest{
		UserID: "u1", TaskID: "t1", Name: "echo",
		Input: map[string]any{"text": "hi"},
	})
	require.True(t, outcome.OK)

	events, err := store.Events().ListByTask(ctx, "u1", "t1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ports.EventKindTool, events[0].Kind)
	assert.Equal(t, "Running echo", events[0].Message)
	assert.Equal(t, "request", events[0].Payload["stage"])
	assert.Equal(t, "hi", events[0].Payload["input"].(map[string]any)["text"])
	assert.Equal(t, ports.EventKindTool, events[1].Kind)
	assert.Equal(t, "echoed", events[1].Message)
	assert.Equal(t, "result", events[1].Payload["stage"])
	assert.Equal(t, true, events[1].Payload["ok"])
}

func TestRegistryPanicStillRecordsResult(t *testing.T) {
	registry, store := newTestRegistry(t)
	registry.MustRegister(&fakeTool{
		def: ports.ToolDefinition{Name: "boom", Parameters: ports.ParameterSchema{Type: "object"}},
		execute: func(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
			panic("kaboom")
		},
	})

	ctx := context.Background()
	outcome := registry.Execute(ctx, &ports.ToolRequest{UserID: "u1", TaskID: "t1", Name: "boom"})
	assert.False(t, outcome.OK)

	events, err := store.Events().ListByTask(ctx, "u1", "t1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "request", events[0].Payload["stage"])
	assert.Equal(t, "result", events[1].Payload["stage"])
	assert.Equal(t, false, events[1].Payload["ok"])
	assert.Contains(t, events[1].Payload["error"], "failed unexpectedly")
}

func TestRegistryCountsToolExecutions(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := taskstore.NewMemoryStore()
	registry := NewRegistry(store.Events()).WithMetrics(observability.NewRunMetricsWithRegisterer(reg))
	registry.MustRegister(echoTool("echo", false))

	outcome := registry.Execute(context.Background(), &ports.ToolRequest{
		UserID: "u1", TaskID: "t1", Name: "echo",
		Input: map[string]any{"text": "hi"},
	})
	require.True(t, outcome.OK)

	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, family := range families {
		if family.GetName() != "aide_agent_tool_executions_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, total)
}
