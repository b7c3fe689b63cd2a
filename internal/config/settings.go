package config

import (
	"context"
	"fmt"

	"aide/internal/agent/ports"
)

// StaticSettings serves every user the provider settings from the process
// configuration. Per-user settings lookup belongs to the surrounding SaaS
// backend; the engine only depends on the ports.SettingsStore contract.
type StaticSettings struct {
	settings ports.Settings
}

// NewStaticSettings builds a settings store from the runtime configuration.
func NewStaticSettings(cfg RuntimeConfig) *StaticSettings {
	return &StaticSettings{settings: ports.Settings{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		APIKey:   cfg.LLMAPIKey,
		BaseURL:  cfg.LLMBaseURL,
	}}
}

func (s *StaticSettings) Settings(ctx context.Context, userID string) (*ports.Settings, error) {
	if s.settings.APIKey == "" {
		return nil, fmt.Errorf("no model API key configured: set AIDE_LLM_API_KEY or llm_api_key in the config file")
	}
	clone := s.settings
	return &clone, nil
}
