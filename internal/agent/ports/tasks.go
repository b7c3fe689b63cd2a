package ports

import (
	"context"
	"time"
)

// TaskStatus tracks the lifecycle of an agent run.
type TaskStatus string

const (
	TaskStatusIdle      TaskStatus = "idle"
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task is the unit of agentic work. The agent-run fields (Status through
// State) are owned by the orchestration loop; everything else is caller data.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Note        string     `json:"note,omitempty"`
	Source      string     `json:"source,omitempty"`
	Status      TaskStatus `json:"status"`
	Progress    int        `json:"progress"`
	Phase       string     `json:"phase,omitempty"`
	Plan        []string   `json:"plan,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	State       string     `json:"state,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskPatch is a partial update of the agent-run fields. Nil pointers leave
// the field untouched; State and Error use the empty string to clear.
type TaskPatch struct {
	Status      *TaskStatus
	Progress    *int
	Phase       *string
	Plan        []string
	Summary     *string
	Result      *string
	Error       *string
	State       *string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// EventKind classifies task timeline events.
type EventKind string

const (
	EventKindStatus          EventKind = "status"
	EventKindProgress        EventKind = "progress"
	EventKindTool            EventKind = "tool"
	EventKindQuestion        EventKind = "question"
	EventKindApprovalRequest EventKind = "approval_request"
	EventKindNote            EventKind = "note"
	EventKindResult          EventKind = "result"
	EventKindError           EventKind = "error"
)

// TaskEvent is an append-only timeline entry. Question and approval_request
// events carry the mutable response fields; they are the only channel through
// which a paused run learns the outcome of a human decision.
type TaskEvent struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id"`
	UserID    string         `json:"user_id"`
	Kind      EventKind      `json:"kind"`
	Message   string         `json:"message,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Answered  bool           `json:"answered,omitempty"`
	Answer    string         `json:"answer,omitempty"`
	Approved  *bool          `json:"approved,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TaskStore provides owner-scoped access to the mutable task record.
type TaskStore interface {
	Get(ctx context.Context, userID, taskID string) (*Task, error)
	Patch(ctx context.Context, userID, taskID string, patch TaskPatch) error
}

// EventStore provides owner- and task-scoped access to the event timeline.
type EventStore interface {
	Append(ctx context.Context, event *TaskEvent) (*TaskEvent, error)
	Get(ctx context.Context, userID, eventID string) (*TaskEvent, error)
	ListByTask(ctx context.Context, userID, taskID string, limit int) ([]*TaskEvent, error)
	ClearForTask(ctx context.Context, userID, taskID string) error
	SetAnswer(ctx context.Context, userID, eventID, answer string) error
	SetApproval(ctx context.Context, userID, eventID string, approved bool) error
}
