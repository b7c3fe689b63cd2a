// Package tools hosts the tool registry: the catalog of handlers the agent
// can invoke, plus the uniform execution path that validates input, enforces
// the approval gate for side-effect tools, and records tool events on the
// task timeline.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"aide/internal/agent/ports"
	"aide/internal/logging"
	"aide/internal/observability"
)

// Registry dispatches tool invocations by name.
type Registry struct {
	handlers map[string]ports.ToolHandler
	events   ports.EventStore
	logger   logging.Logger
	metrics  *observability.RunMetrics
}

// NewRegistry builds an empty registry. Tool and approval events are appended
// through events.
func NewRegistry(events ports.EventStore) *Registry {
	return &Registry{
		handlers: map[string]ports.ToolHandler{},
		events:   events,
		logger:   logging.NewComponentLogger("ToolRegistry"),
	}
}

// WithMetrics attaches the run metrics recorder and returns the registry.
func (r *Registry) WithMetrics(metrics *observability.RunMetrics) *Registry {
	r.metrics = metrics
	return r
}

// Register adds a handler. Duplicate names are a wiring bug.
func (r *Registry) Register(handler ports.ToolHandler) error {
	def := handler.Definition()
	if def.Name == "" {
		return fmt.Errorf("tool handler has empty name")
	}
	if _, exists := r.handlers[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.handlers[def.Name] = handler
	return nil
}

// MustRegister registers handlers and panics on conflict. Used at wiring time.
func (r *Registry) MustRegister(handlers ...ports.ToolHandler) {
	for _, handler := range handlers {
		if err := r.Register(handler); err != nil {
			panic(err)
		}
	}
}

// List returns every tool definition, sorted by name for stable prompts.
func (r *Registry) List() []ports.ToolDefinition {
	defs := make([]ports.ToolDefinition, 0, len(r.handlers))
	for _, handler := range r.handlers {
		defs = append(defs, handler.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute validates the request, runs the approval gate, then invokes the
// handler with panic recovery. Failures come back as outcome errors, never as
// Go errors, so the tool loop can always feed something to the model.
func (r *Registry) Execute(ctx context.Context, req *ports.ToolRequest) (outcome *ports.ToolOutcome) {
	handler, ok := r.handlers[req.Name]
	if !ok {
		return ports.ToolError(fmt.Sprintf("unknown tool: %s", req.Name))
	}
	def := handler.Definition()

	if req.Input == nil {
		req.Input = map[string]any{}
	}
	if err := validateInput(def.Parameters, req.Input); err != nil {
		return ports.ToolError(fmt.Sprintf("invalid input for %s: %v", req.Name, err))
	}

	if def.SideEffect {
		if req.DeniedTools[def.Name] {
			return ports.ToolError(fmt.Sprintf("the user declined to approve %s for this task", def.Name))
		}
		if !req.ApprovedTools[def.Name] {
			return r.requestApproval(ctx, req, def)
		}
	}

	r.recordToolRequest(ctx, req, def)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool %s panicked: %v", req.Name, rec)
			outcome = ports.ToolError(fmt.Sprintf("tool %s failed unexpectedly", req.Name))
		}
		if outcome == nil {
			outcome = ports.ToolError(fmt.Sprintf("tool %s returned no outcome", req.Name))
		}
		r.recordToolResult(ctx, req, def, outcome)
		r.metrics.ToolExecuted(outcomeLabel(outcome))
	}()

	outcome = handler.Execute(ctx, req)
	return outcome
}

func outcomeLabel(outcome *ports.ToolOutcome) string {
	switch {
	case outcome.Pause:
		return "paused"
	case outcome.OK:
		return "ok"
	default:
		return "error"
	}
}

// requestApproval synthesizes the approval_request event and pauses the run.
func (r *Registry) requestApproval(ctx context.Context, req *ports.ToolRequest, def ports.ToolDefinition) *ports.ToolOutcome {
	event, err := r.events.Append(ctx, &ports.TaskEvent{
		TaskID:  req.TaskID,
		UserID:  req.UserID,
		Kind:    ports.EventKindApprovalRequest,
		Message: fmt.Sprintf("Approval needed to run %s", def.Name),
		Payload: map[string]any{"tool": def.Name, "input": req.Input},
	})
	if err != nil {
		r.logger.Error("appending approval request for %s: %v", def.Name, err)
		return ports.ToolError(fmt.Sprintf("could not request approval for %s", def.Name))
	}
	return ports.ToolPause(ports.PauseReasonApproval, event.ID,
		fmt.Sprintf("Waiting for the user to approve %s.", def.Name))
}

// recordToolRequest marks the start of an execution on the timeline so a
// crashed or panicking tool still leaves a trace of having been invoked.
func (r *Registry) recordToolRequest(ctx context.Context, req *ports.ToolRequest, def ports.ToolDefinition) {
	if _, err := r.events.Append(ctx, &ports.TaskEvent{
		TaskID:  req.TaskID,
		UserID:  req.UserID,
		Kind:    ports.EventKindTool,
		Message: "Running " + def.Name,
		Payload: map[string]any{"tool": def.Name, "stage": "request", "input": req.Input},
	}); err != nil {
		r.logger.Warn("recording tool request for %s: %v", def.Name, err)
	}
}

func (r *Registry) recordToolResult(ctx context.Context, req *ports.ToolRequest, def ports.ToolDefinition, outcome *ports.ToolOutcome) {
	// Pause-producing tools (ask_user, the approval gate) append their own
	// question or approval events as the result half.
	if outcome.Pause {
		return
	}
	message := outcome.Summary
	if message == "" {
		message = "Ran " + def.Name
	}
	payload := map[string]any{"tool": def.Name, "stage": "result", "ok": outcome.OK}
	if outcome.Err != "" {
		payload["error"] = outcome.Err
	}
	if _, err := r.events.Append(ctx, &ports.TaskEvent{
		TaskID:  req.TaskID,
		UserID:  req.UserID,
		Kind:    ports.EventKindTool,
		Message: message,
		Payload: payload,
	}); err != nil {
		r.logger.Warn("recording tool result for %s: %v", def.Name, err)
	}
}

// validateInput checks required fields and coerces obvious mismatches in
// place. Model-produced JSON is loose: numbers arrive as float64, booleans
// and numbers sometimes arrive as strings.
func validateInput(schema ports.ParameterSchema, input map[string]any) error {
	for _, name := range schema.Required {
		if _, ok := input[name]; !ok {
			return fmt.Errorf("missing required field %q", name)
		}
	}
	for name, value := range input {
		prop, ok := schema.Properties[name]
		if !ok {
			// Unknown fields pass through untouched.
			continue
		}
		coerced, err := coerceValue(prop, value)
		if err != nil {
			return fmt.Errorf("field %q: %v", name, err)
		}
		input[name] = coerced
	}
	return nil
}

func coerceValue(prop ports.Property, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch prop.Type {
	case "string":
		switch v := value.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		}
		return nil, fmt.Errorf("expected string, got %T", value)
	case "integer":
		switch v := value.(type) {
		case float64:
			return int(v), nil
		case int:
			return v, nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", v)
			}
			return n, nil
		}
		return nil, fmt.Errorf("expected integer, got %T", value)
	case "number":
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("expected number, got %q", v)
			}
			return f, nil
		}
		return nil, fmt.Errorf("expected number, got %T", value)
	case "boolean":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", v)
			}
			return b, nil
		}
		return nil, fmt.Errorf("expected boolean, got %T", value)
	case "array":
		if _, ok := value.([]any); ok {
			return value, nil
		}
		if _, ok := value.([]string); ok {
			return value, nil
		}
		return nil, fmt.Errorf("expected array, got %T", value)
	default:
		return value, nil
	}
}

// StringArg reads an optional string field from coerced input.
func StringArg(input map[string]any, name string) string {
	if v, ok := input[name].(string); ok {
		return v
	}
	return ""
}

// IntArg reads an optional integer field from coerced input, with a default.
func IntArg(input map[string]any, name string, fallback int) int {
	switch v := input[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

// BoolArg reads an optional boolean field from coerced input.
func BoolArg(input map[string]any, name string) bool {
	v, _ := input[name].(bool)
	return v
}

// StringsArg reads an optional string-array field from coerced input.
func StringsArg(input map[string]any, name string) []string {
	switch v := input[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
