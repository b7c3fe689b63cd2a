package taskstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aide/internal/agent/ports"
	"aide/internal/logging"
)

const (
	taskTable  = "assistant_tasks"
	eventTable = "assistant_task_events"
)

// PostgresStore implements the task and event stores on a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		logger: logging.NewComponentLogger("TaskPostgresStore"),
	}
}

// Tasks returns the owner-scoped task view.
func (s *PostgresStore) Tasks() ports.TaskStore { return &pgTasks{s} }

// Events returns the owner- and task-scoped event view.
func (s *PostgresStore) Events() ports.EventStore { return &pgEvents{s} }

// EnsureSchema creates the task and event tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("task store not initialized")
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    note TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'idle',
    progress INTEGER NOT NULL DEFAULT 0,
    phase TEXT NOT NULL DEFAULT '',
    plan JSONB NOT NULL DEFAULT '[]'::jsonb,
    summary TEXT NOT NULL DEFAULT '',
    result TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assistant_tasks_user ON %[1]s (user_id, updated_at DESC);
CREATE TABLE IF NOT EXISTS %[2]s (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    payload JSONB,
    answered BOOLEAN NOT NULL DEFAULT FALSE,
    answer TEXT NOT NULL DEFAULT '',
    approved BOOLEAN,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assistant_task_events_task ON %[2]s (task_id, created_at);
`, taskTable, eventTable)

	_, err := s.pool.Exec(ctx, query)
	return err
}

// CreateTask inserts a fresh idle task and returns it.
func (s *PostgresStore) CreateTask(ctx context.Context, userID, title, note, source string) (*ports.Task, error) {
	now := time.Now().UTC()
	task := &ports.Task{
		ID:        newID("task"),
		UserID:    userID,
		Title:     title,
		Note:      note,
		Source:    source,
		Status:    ports.TaskStatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, user_id, title, note, source, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, taskTable)
	_, err := s.pool.Exec(ctx, query, task.ID, task.UserID, task.Title, task.Note, task.Source, string(task.Status), task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns the user's tasks, most recently updated first.
func (s *PostgresStore) ListTasks(ctx context.Context, userID string, limit int) ([]*ports.Task, error) {
	query := fmt.Sprintf(`SELECT id, user_id, title, note, source, status, progress, phase, plan,
summary, result, error, state, started_at, completed_at, created_at, updated_at
FROM %s WHERE user_id = $1 ORDER BY updated_at DESC`, taskTable)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ports.Task
	for rows.Next() {
		var task ports.Task
		var status string
		if err := rows.Scan(
			&task.ID, &task.UserID, &task.Title, &task.Note, &task.Source, &status,
			&task.Progress, &task.Phase, &task.Plan, &task.Summary, &task.Result,
			&task.Error, &task.State, &task.StartedAt, &task.CompletedAt,
			&task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, err
		}
		task.Status = ports.TaskStatus(status)
		out = append(out, &task)
	}
	return out, rows.Err()
}

type pgTasks struct{ s *PostgresStore }

func (v *pgTasks) Get(ctx context.Context, userID, taskID string) (*ports.Task, error) {
	query := fmt.Sprintf(`SELECT id, user_id, title, note, source, status, progress, phase, plan,
summary, result, error, state, started_at, completed_at, created_at, updated_at
FROM %s WHERE id = $1 AND user_id = $2`, taskTable)

	var task ports.Task
	var status string
	err := v.s.pool.QueryRow(ctx, query, taskID, userID).Scan(
		&task.ID, &task.UserID, &task.Title, &task.Note, &task.Source, &status,
		&task.Progress, &task.Phase, &task.Plan, &task.Summary, &task.Result,
		&task.Error, &task.State, &task.StartedAt, &task.CompletedAt,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	if err != nil {
		return nil, err
	}
	task.Status = ports.TaskStatus(status)
	return &task, nil
}

func (v *pgTasks) Patch(ctx context.Context, userID, taskID string, patch ports.TaskPatch) error {
	assignments := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}
	add := func(column string, value any) {
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.Progress != nil {
		add("progress", *patch.Progress)
	}
	if patch.Phase != nil {
		add("phase", *patch.Phase)
	}
	if patch.Plan != nil {
		add("plan", patch.Plan)
	}
	if patch.Summary != nil {
		add("summary", *patch.Summary)
	}
	if patch.Result != nil {
		add("result", *patch.Result)
	}
	if patch.Error != nil {
		add("error", *patch.Error)
	}
	if patch.State != nil {
		add("state", *patch.State)
	}
	if patch.StartedAt != nil {
		add("started_at", *patch.StartedAt)
	}
	if patch.CompletedAt != nil {
		add("completed_at", *patch.CompletedAt)
	}

	args = append(args, taskID, userID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d AND user_id = $%d",
		taskTable, strings.Join(assignments, ", "), len(args)-1, len(args))
	tag, err := v.s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s not found", taskID)
	}
	return nil
}

type pgEvents struct{ s *PostgresStore }

func (v *pgEvents) Append(ctx context.Context, event *ports.TaskEvent) (*ports.TaskEvent, error) {
	stored := *event
	if stored.ID == "" {
		stored.ID = newID("evt")
	}
	stored.CreatedAt = time.Now().UTC()
	query := fmt.Sprintf(`INSERT INTO %s (id, task_id, user_id, kind, message, payload, answered, answer, approved, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, eventTable)
	_, err := v.s.pool.Exec(ctx, query,
		stored.ID, stored.TaskID, stored.UserID, string(stored.Kind), stored.Message,
		stored.Payload, stored.Answered, stored.Answer, stored.Approved, stored.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (v *pgEvents) Get(ctx context.Context, userID, eventID string) (*ports.TaskEvent, error) {
	query := fmt.Sprintf(`SELECT id, task_id, user_id, kind, message, payload, answered, answer, approved, created_at
FROM %s WHERE id = $1 AND user_id = $2`, eventTable)

	var event ports.TaskEvent
	var kind string
	err := v.s.pool.QueryRow(ctx, query, eventID, userID).Scan(
		&event.ID, &event.TaskID, &event.UserID, &kind, &event.Message,
		&event.Payload, &event.Answered, &event.Answer, &event.Approved, &event.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %s not found", eventID)
	}
	if err != nil {
		return nil, err
	}
	event.Kind = ports.EventKind(kind)
	return &event, nil
}

func (v *pgEvents) ListByTask(ctx context.Context, userID, taskID string, limit int) ([]*ports.TaskEvent, error) {
	query := fmt.Sprintf(`SELECT id, task_id, user_id, kind, message, payload, answered, answer, approved, created_at
FROM %s WHERE task_id = $1 AND user_id = $2 ORDER BY created_at`, eventTable)
	if limit > 0 {
		query = fmt.Sprintf(`SELECT * FROM (%s DESC LIMIT %d) sub ORDER BY created_at`, query, limit)
	}

	rows, err := v.s.pool.Query(ctx, query, taskID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ports.TaskEvent
	for rows.Next() {
		var event ports.TaskEvent
		var kind string
		if err := rows.Scan(
			&event.ID, &event.TaskID, &event.UserID, &kind, &event.Message,
			&event.Payload, &event.Answered, &event.Answer, &event.Approved, &event.CreatedAt,
		); err != nil {
			return nil, err
		}
		event.Kind = ports.EventKind(kind)
		out = append(out, &event)
	}
	return out, rows.Err()
}

func (v *pgEvents) ClearForTask(ctx context.Context, userID, taskID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE task_id = $1 AND user_id = $2", eventTable)
	_, err := v.s.pool.Exec(ctx, query, taskID, userID)
	return err
}

func (v *pgEvents) SetAnswer(ctx context.Context, userID, eventID, answer string) error {
	query := fmt.Sprintf(`UPDATE %s SET answered = TRUE, answer = $1
WHERE id = $2 AND user_id = $3 AND kind = $4`, eventTable)
	tag, err := v.s.pool.Exec(ctx, query, answer, eventID, userID, string(ports.EventKindQuestion))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("question event %s not found", eventID)
	}
	return nil
}

func (v *pgEvents) SetApproval(ctx context.Context, userID, eventID string, approved bool) error {
	query := fmt.Sprintf(`UPDATE %s SET approved = $1
WHERE id = $2 AND user_id = $3 AND kind = $4`, eventTable)
	tag, err := v.s.pool.Exec(ctx, query, approved, eventID, userID, string(ports.EventKindApprovalRequest))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("approval event %s not found", eventID)
	}
	return nil
}
