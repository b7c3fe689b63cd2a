package agent

import (
	"fmt"
	"strings"

	"aide/internal/agent/ports"
	"aide/internal/llm"
)

// draftTokenCap bounds how much of the accumulated draft a step or finalize
// prompt carries.
const draftTokenCap = 2000

const planSystem = `You are a capable personal assistant planning how to complete a task for the user.
Break the task into a short sequence of concrete steps. Use the available tools to gather
context before planning when that helps. Respond with a JSON object:
{"planSteps": ["step one", "step two", ...]} with at most %d steps.`

const stepSystem = `You are a capable personal assistant executing one step of an agreed plan.
Use the available tools when they help. When the step needs information only the user has,
use ask_user. Respond with a JSON object: {"stepSummary": "one line on what you did",
"stepOutputMarkdown": "the markdown output this step contributes"}.`

const finalSystem = `You are a capable personal assistant wrapping up a completed task.
Synthesize the work below into a polished deliverable. Respond with a JSON object:
{"summary": "one or two sentences on the outcome", "resultMarkdown": "the full final markdown"}.`

func planPrompt(task *ports.Task, contextSummary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task.Title)
	if task.Note != "" {
		fmt.Fprintf(&b, "Details: %s\n", task.Note)
	}
	if contextSummary != "" {
		fmt.Fprintf(&b, "\nContext gathered so far:\n%s\n", contextSummary)
	}
	b.WriteString("\nPlan the steps to complete this task.")
	return b.String()
}

func stepPrompt(task *ports.Task, plan []string, stepIndex int, contextSummary, draft string, recent []*ports.TaskEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task.Title)
	if task.Note != "" {
		fmt.Fprintf(&b, "Details: %s\n", task.Note)
	}
	b.WriteString("\nPlan:\n")
	for i, step := range plan {
		marker := " "
		if i == stepIndex {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %d. %s\n", marker, i+1, step)
	}
	if contextSummary != "" {
		fmt.Fprintf(&b, "\nProgress so far:\n%s\n", contextSummary)
	}
	if len(recent) > 0 {
		b.WriteString("\nRecent activity:\n")
		for _, event := range recent {
			fmt.Fprintf(&b, "- [%s] %s", event.Kind, event.Message)
			if event.Kind == ports.EventKindQuestion && event.Answered {
				fmt.Fprintf(&b, " (user answered: %s)", event.Answer)
			}
			b.WriteString("\n")
		}
	}
	if draft != "" {
		fmt.Fprintf(&b, "\nDraft output so far:\n%s\n", capTokens(draft, draftTokenCap))
	}
	fmt.Fprintf(&b, "\nExecute step %d now: %s", stepIndex+1, plan[stepIndex])
	return b.String()
}

func finalPrompt(task *ports.Task, plan []string, contextSummary, draft string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task.Title)
	if task.Note != "" {
		fmt.Fprintf(&b, "Details: %s\n", task.Note)
	}
	b.WriteString("\nCompleted plan:\n")
	for i, step := range plan {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	if contextSummary != "" {
		fmt.Fprintf(&b, "\nStep summaries:\n%s\n", contextSummary)
	}
	if draft != "" {
		fmt.Fprintf(&b, "\nDraft assembled during the run:\n%s\n", capTokens(draft, draftTokenCap))
	}
	b.WriteString("\nProduce the final deliverable.")
	return b.String()
}

// clarificationBlock folds a resolved question into the rolling summary so
// later steps see the user's answer.
func clarificationBlock(question, answer string) string {
	return fmt.Sprintf("User clarification: asked %q, user answered %q.", question, answer)
}

// firstLine extracts a one-line summary from markdown output.
func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimLeft(text, "# ")
	if len(text) > 120 {
		text = text[:120] + "..."
	}
	return text
}

// capTokens trims text to roughly limit tokens, keeping the tail.
func capTokens(text string, limit int) string {
	if limit <= 0 || llm.CountTokens(text) <= limit {
		return text
	}
	return truncateSuffix(text, limit*4)
}

// truncateSuffix keeps the trailing limit bytes of text, cutting at a line
// boundary where possible.
func truncateSuffix(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := text[len(text)-limit:]
	if idx := strings.IndexByte(cut, '\n'); idx >= 0 && idx < len(cut)-1 {
		cut = cut[idx+1:]
	}
	return cut
}
