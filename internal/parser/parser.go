// Package parser extracts structured payloads from free-form model output.
// All parsers share the same tolerant strategy: slice from the first '{' to
// the last '}', try to decode, attempt a jsonrepair pass, and fall back to a
// deterministic default. Nothing here ever returns an error; a malformed
// model response must never block the pipeline.
package parser

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// MaxPlanSteps caps how many steps a parsed plan may carry.
const MaxPlanSteps = 7

// StepPayload is the structured output of one executed step.
type StepPayload struct {
	StepSummary        string `json:"stepSummary"`
	StepOutputMarkdown string `json:"stepOutputMarkdown"`
}

// FinalPayload is the structured output of the finalize phase.
type FinalPayload struct {
	Summary        string `json:"summary"`
	ResultMarkdown string `json:"resultMarkdown"`
}

// extractObject returns the first-{ to last-} slice of text, or "" when no
// object candidate exists.
func extractObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// unmarshalLenient decodes candidate into v, retrying once through jsonrepair
// for the almost-JSON the models occasionally emit.
func unmarshalLenient(candidate string, v any) bool {
	if candidate == "" {
		return false
	}
	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return true
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(repaired), v) == nil
}

// ParsePlan extracts {"planSteps": [...]} from text. Steps are trimmed,
// empties dropped, order preserved, and the list capped at MaxPlanSteps.
// Returns nil on any failure; the caller substitutes a generic fallback plan.
func ParsePlan(text string) []string {
	var payload struct {
		PlanSteps []string `json:"planSteps"`
	}
	if !unmarshalLenient(extractObject(text), &payload) {
		return nil
	}
	steps := make([]string, 0, len(payload.PlanSteps))
	for _, s := range payload.PlanSteps {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}
	if len(steps) == 0 {
		return nil
	}
	if len(steps) > MaxPlanSteps {
		steps = steps[:MaxPlanSteps]
	}
	return steps
}

// ParseStepPayload extracts {stepSummary, stepOutputMarkdown} from text.
// When no JSON object is present at all, the entire trimmed text becomes the
// output markdown: models that ignore the JSON instruction still produce a
// usable step.
func ParseStepPayload(text string) StepPayload {
	var payload StepPayload
	if unmarshalLenient(extractObject(text), &payload) && payload.StepOutputMarkdown != "" {
		payload.StepSummary = strings.TrimSpace(payload.StepSummary)
		payload.StepOutputMarkdown = strings.TrimSpace(payload.StepOutputMarkdown)
		return payload
	}
	return StepPayload{StepOutputMarkdown: strings.TrimSpace(text)}
}

// ParseFinalPayload extracts {summary, resultMarkdown} from text. Raw text
// wins over fallbackMarkdown when present; fallbackMarkdown (the draft
// accumulated so far) is used only when the model produced nothing usable.
func ParseFinalPayload(text, fallbackMarkdown string) FinalPayload {
	var payload FinalPayload
	if unmarshalLenient(extractObject(text), &payload) && payload.ResultMarkdown != "" {
		payload.Summary = strings.TrimSpace(payload.Summary)
		payload.ResultMarkdown = strings.TrimSpace(payload.ResultMarkdown)
		if payload.Summary == "" {
			payload.Summary = "Task completed."
		}
		return payload
	}
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		return FinalPayload{Summary: "Task completed.", ResultMarkdown: trimmed}
	}
	return FinalPayload{Summary: "Task completed.", ResultMarkdown: fallbackMarkdown}
}
