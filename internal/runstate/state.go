// Package runstate serializes the resumable execution state of an agent run.
// The encoded blob lives in the task's state field and is owned exclusively
// by the orchestration loop.
package runstate

import "encoding/json"

// Version is the schema version tag. A blob carrying any other version is
// treated as absent.
const Version = 1

// WaitKind says what a paused run is waiting for.
type WaitKind string

const (
	WaitKindQuestion WaitKind = "question"
	WaitKindApproval WaitKind = "approval"
)

// State is the continuation token for a run. PlanSteps is frozen after
// planning; StepIndex points at the next step to execute. The wait pointer
// fields are set together while paused and cleared together on resume.
type State struct {
	Version           int             `json:"v"`
	StepIndex         int             `json:"step_index"`
	PlanSteps         []string        `json:"plan_steps"`
	ContextSummary    string          `json:"context_summary,omitempty"`
	WaitingForEventID string          `json:"waiting_for_event_id,omitempty"`
	WaitingForKind    WaitKind        `json:"waiting_for_kind,omitempty"`
	ApprovedTools     map[string]bool `json:"approved_tools,omitempty"`
	DeniedTools       map[string]bool `json:"denied_tools,omitempty"`
}

// New returns an empty state at the current schema version.
func New() *State {
	return &State{Version: Version}
}

// Waiting reports whether the state carries a wait pointer.
func (s *State) Waiting() bool {
	return s.WaitingForEventID != "" && s.WaitingForKind != ""
}

// SetWait records a pause at eventID.
func (s *State) SetWait(kind WaitKind, eventID string) {
	s.WaitingForEventID = eventID
	s.WaitingForKind = kind
}

// ClearWait removes the wait pointer.
func (s *State) ClearWait() {
	s.WaitingForEventID = ""
	s.WaitingForKind = ""
}

// Approve records a per-tool approval decision for the rest of the task.
func (s *State) Approve(tool string, approved bool) {
	if approved {
		if s.ApprovedTools == nil {
			s.ApprovedTools = map[string]bool{}
		}
		s.ApprovedTools[tool] = true
		delete(s.DeniedTools, tool)
		return
	}
	if s.DeniedTools == nil {
		s.DeniedTools = map[string]bool{}
	}
	s.DeniedTools[tool] = true
	delete(s.ApprovedTools, tool)
}

// Encode serializes the state. Empty approval maps are normalized to nil so
// the stored blob stays minimal; a nil plan is normalized to an empty array
// so a pre-planning pause encodes a blob Decode will accept.
func Encode(s *State) string {
	if s == nil {
		return ""
	}
	clone := *s
	clone.Version = Version
	if clone.PlanSteps == nil {
		clone.PlanSteps = []string{}
	}
	clone.ApprovedTools = sparseTrue(s.ApprovedTools)
	clone.DeniedTools = sparseTrue(s.DeniedTools)
	raw, err := json.Marshal(&clone)
	if err != nil {
		return ""
	}
	return string(raw)
}

// Decode parses a stored blob. It returns nil, never an error, whenever the
// blob cannot be fully trusted: empty input, malformed JSON, a version tag
// other than the current one, a missing plan array, a bad step index, or a
// wait pointer with only one of its two fields set. A corrupted state must
// never be half-trusted into a live loop.
func Decode(raw string) *State {
	if raw == "" {
		return nil
	}
	var probe struct {
		Version   *int             `json:"v"`
		StepIndex *float64         `json:"step_index"`
		PlanSteps *json.RawMessage `json:"plan_steps"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil
	}
	if probe.Version == nil || *probe.Version != Version {
		return nil
	}
	if probe.StepIndex == nil {
		return nil
	}
	if probe.PlanSteps == nil {
		return nil
	}
	var planProbe []string
	if err := json.Unmarshal(*probe.PlanSteps, &planProbe); err != nil {
		return nil
	}

	var s State
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil
	}
	if s.StepIndex < 0 || s.StepIndex > len(s.PlanSteps) {
		return nil
	}
	if (s.WaitingForEventID == "") != (s.WaitingForKind == "") {
		return nil
	}
	switch s.WaitingForKind {
	case "", WaitKindQuestion, WaitKindApproval:
	default:
		return nil
	}
	s.ApprovedTools = sparseTrue(s.ApprovedTools)
	s.DeniedTools = sparseTrue(s.DeniedTools)
	return &s
}

// sparseTrue keeps only literal true entries, normalizing empty maps to nil.
func sparseTrue(m map[string]bool) map[string]bool {
	var out map[string]bool
	for k, v := range m {
		if !v {
			continue
		}
		if out == nil {
			out = map[string]bool{}
		}
		out[k] = true
	}
	return out
}
