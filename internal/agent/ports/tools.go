package ports

import "context"

// PauseReason says why a tool could not complete without human input.
type PauseReason string

const (
	PauseReasonAskUser  PauseReason = "ask_user"
	PauseReasonApproval PauseReason = "approval"
)

// ToolDefinition is the schema-described contract of one tool.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`

	// SideEffect marks tools that mutate external systems and therefore
	// pass through the approval gate before executing.
	SideEffect bool `json:"-"`
}

// ParameterSchema describes a tool's input as a JSON-schema object.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one input field.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []any     `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// ToolRequest carries one invocation plus the task-scoped approval memory
// the gate consults for side-effect tools.
type ToolRequest struct {
	UserID string
	TaskID string
	Name   string
	Input  map[string]any

	ApprovedTools map[string]bool
	DeniedTools   map[string]bool
}

// ToolOutcome is the tagged result of a tool execution. Exactly one of the
// three shapes holds: success (OK, no pause), success-with-pause (OK with
// Pause set and EventID pointing at the question/approval event), or failure
// (Err non-empty). Executors never return Go errors to the loop.
type ToolOutcome struct {
	OK          bool        `json:"ok"`
	Result      string      `json:"result,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	Pause       bool        `json:"pause,omitempty"`
	PauseReason PauseReason `json:"pause_reason,omitempty"`
	EventID     string      `json:"event_id,omitempty"`
	Err         string      `json:"error,omitempty"`
}

// ToolOK builds a normal success outcome.
func ToolOK(result, summary string) *ToolOutcome {
	return &ToolOutcome{OK: true, Result: result, Summary: summary}
}

// ToolPause builds a success-with-pause outcome pointing at eventID.
func ToolPause(reason PauseReason, eventID, result string) *ToolOutcome {
	return &ToolOutcome{OK: true, Pause: true, PauseReason: reason, EventID: eventID, Result: result}
}

// ToolError builds a failure outcome.
func ToolError(msg string) *ToolOutcome {
	return &ToolOutcome{Err: msg}
}

// ToolHandler implements a single named tool.
type ToolHandler interface {
	Definition() ToolDefinition
	Execute(ctx context.Context, req *ToolRequest) *ToolOutcome
}

// ToolRunner is what the orchestration loop sees: the catalog plus a uniform
// invocation entry point that owns validation, the approval gate, and the
// request/result event pair.
type ToolRunner interface {
	List() []ToolDefinition
	Execute(ctx context.Context, req *ToolRequest) *ToolOutcome
}
