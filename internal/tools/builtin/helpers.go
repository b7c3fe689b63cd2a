package builtin

import "encoding/json"

// renderJSON marshals tool results for the model. Indented output reads
// better in transcripts and debug logs.
func renderJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
