// Package taskstore persists tasks and their event timelines. The Postgres
// store backs production; the in-memory store backs tests and local runs
// without a database.
package taskstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"aide/internal/agent/ports"
)

// MemoryStore is an in-memory implementation of the task and event stores.
// Tasks() and Events() expose the two capability views.
type MemoryStore struct {
	mu     sync.RWMutex
	tasks  map[string]*ports.Task
	events map[string]*ports.TaskEvent
	seq    int64
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:  map[string]*ports.Task{},
		events: map[string]*ports.TaskEvent{},
	}
}

// Tasks returns the owner-scoped task view.
func (s *MemoryStore) Tasks() ports.TaskStore { return &memoryTasks{s} }

// Events returns the owner- and task-scoped event view.
func (s *MemoryStore) Events() ports.EventStore { return &memoryEvents{s} }

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// CreateTask inserts a fresh idle task and returns it.
func (s *MemoryStore) CreateTask(ctx context.Context, userID, title, note, source string) (*ports.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
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
	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()
	clone := *task
	return &clone, nil
}

// ListTasks returns the user's tasks, most recently updated first.
func (s *MemoryStore) ListTasks(ctx context.Context, userID string, limit int) ([]*ports.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ports.Task
	for _, task := range s.tasks {
		if task.UserID == userID {
			clone := *task
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryTasks struct{ s *MemoryStore }

func (v *memoryTasks) Get(ctx context.Context, userID, taskID string) (*ports.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	task, ok := v.s.tasks[taskID]
	if !ok || task.UserID != userID {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	clone := *task
	clone.Plan = append([]string(nil), task.Plan...)
	return &clone, nil
}

func (v *memoryTasks) Patch(ctx context.Context, userID, taskID string, patch ports.TaskPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	task, ok := v.s.tasks[taskID]
	if !ok || task.UserID != userID {
		return fmt.Errorf("task %s not found", taskID)
	}
	applyPatch(task, patch)
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func applyPatch(task *ports.Task, patch ports.TaskPatch) {
	if patch.Status != nil {
		task.Status = *patch.Status
	}
	if patch.Progress != nil {
		task.Progress = *patch.Progress
	}
	if patch.Phase != nil {
		task.Phase = *patch.Phase
	}
	if patch.Plan != nil {
		task.Plan = append([]string(nil), patch.Plan...)
	}
	if patch.Summary != nil {
		task.Summary = *patch.Summary
	}
	if patch.Result != nil {
		task.Result = *patch.Result
	}
	if patch.Error != nil {
		task.Error = *patch.Error
	}
	if patch.State != nil {
		task.State = *patch.State
	}
	if patch.StartedAt != nil {
		task.StartedAt = patch.StartedAt
	}
	if patch.CompletedAt != nil {
		task.CompletedAt = patch.CompletedAt
	}
}

type memoryEvents struct{ s *MemoryStore }

func (v *memoryEvents) Append(ctx context.Context, event *ports.TaskEvent) (*ports.TaskEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	stored := *event
	if stored.ID == "" {
		stored.ID = newID("evt")
	}
	v.s.seq++
	// Sequence-derived timestamps keep ordering stable even when events land
	// within the same clock tick.
	stored.CreatedAt = time.Now().UTC().Add(time.Duration(v.s.seq) * time.Microsecond)
	v.s.events[stored.ID] = &stored
	clone := stored
	return &clone, nil
}

func (v *memoryEvents) Get(ctx context.Context, userID, eventID string) (*ports.TaskEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	event, ok := v.s.events[eventID]
	if !ok || event.UserID != userID {
		return nil, fmt.Errorf("event %s not found", eventID)
	}
	clone := *event
	return &clone, nil
}

func (v *memoryEvents) ListByTask(ctx context.Context, userID, taskID string, limit int) ([]*ports.TaskEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []*ports.TaskEvent
	for _, event := range v.s.events {
		if event.TaskID == taskID && event.UserID == userID {
			clone := *event
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (v *memoryEvents) ClearForTask(ctx context.Context, userID, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for id, event := range v.s.events {
		if event.TaskID == taskID && event.UserID == userID {
			delete(v.s.events, id)
		}
	}
	return nil
}

func (v *memoryEvents) SetAnswer(ctx context.Context, userID, eventID, answer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	event, ok := v.s.events[eventID]
	if !ok || event.UserID != userID {
		return fmt.Errorf("event %s not found", eventID)
	}
	if event.Kind != ports.EventKindQuestion {
		return fmt.Errorf("event %s is not a question", eventID)
	}
	event.Answered = true
	event.Answer = answer
	return nil
}

func (v *memoryEvents) SetApproval(ctx context.Context, userID, eventID string, approved bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	event, ok := v.s.events[eventID]
	if !ok || event.UserID != userID {
		return fmt.Errorf("event %s not found", eventID)
	}
	if event.Kind != ports.EventKindApprovalRequest {
		return fmt.Errorf("event %s is not an approval request", eventID)
	}
	decision := approved
	event.Approved = &decision
	return nil
}
