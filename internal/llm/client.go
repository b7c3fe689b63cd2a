// Package llm implements the provider clients and the tool-call loop that
// drive the orchestration engine.
package llm

import (
	"fmt"
	"strings"

	"aide/internal/agent/ports"
)

// Config carries provider connection settings.
type Config struct {
	APIKey     string
	BaseURL    string
	TimeoutSec int
	Headers    map[string]string
}

// New builds a client for the provider named in settings. Providers speaking
// the OpenAI chat-completions wire share one implementation; Anthropic has
// its own messages-wire client.
func New(settings *ports.Settings) (ports.LLMClient, error) {
	if settings == nil {
		return nil, fmt.Errorf("no model settings configured")
	}
	if strings.TrimSpace(settings.APIKey) == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", settings.Provider)
	}
	cfg := Config{APIKey: settings.APIKey, BaseURL: settings.BaseURL}
	switch strings.ToLower(strings.TrimSpace(settings.Provider)) {
	case "anthropic", "claude":
		return NewAnthropicClient(settings.Model, cfg)
	case "", "openai", "openrouter", "deepseek":
		return NewOpenAIClient(settings.Model, cfg)
	default:
		return nil, fmt.Errorf("unsupported provider %q", settings.Provider)
	}
}

// SupportsToolCalls reports whether the engine may run a structured tool-call
// loop against this client. Clients without native tool calling fall back to
// a single call augmented with pre-fetched read-only tool results.
func SupportsToolCalls(client ports.LLMClient) bool {
	type toolCapable interface{ SupportsToolCalls() bool }
	if tc, ok := client.(toolCapable); ok {
		return tc.SupportsToolCalls()
	}
	return false
}
