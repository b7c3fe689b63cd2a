// Package config loads runtime configuration from an optional JSON file and
// environment variables. Precedence: defaults < file < environment.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultLLMProvider = "openai"
	DefaultLLMModel    = "gpt-4o-mini"
	DefaultServerHost  = "0.0.0.0"
	DefaultServerPort  = 8080
)

// RuntimeConfig is the resolved configuration for the server process.
type RuntimeConfig struct {
	ServerHost     string   `json:"server_host"`
	ServerPort     int      `json:"server_port"`
	AllowedOrigins []string `json:"allowed_origins"`

	// DatabaseURL selects the Postgres store; empty runs on in-memory stores.
	DatabaseURL string `json:"database_url"`

	LLMProvider string `json:"llm_provider"`
	LLMModel    string `json:"llm_model"`
	LLMAPIKey   string `json:"llm_api_key"`
	LLMBaseURL  string `json:"llm_base_url"`

	TavilyAPIKey       string `json:"tavily_api_key"`
	GitHubToken        string `json:"github_token"`
	GoogleClientID     string `json:"google_client_id"`
	GoogleClientSecret string `json:"google_client_secret"`

	// Run budgets. MaxRunElapsedSeconds stays comfortably under the host's
	// hard execution ceiling; MaxStepsPerRun caps steps per invocation.
	MaxRunElapsedSeconds int `json:"max_run_elapsed_seconds"`
	MaxStepsPerRun       int `json:"max_steps_per_run"`
}

// Load resolves the runtime configuration. configPath may be empty, in which
// case ~/.aide-config.json is consulted when present.
func Load(configPath string) (RuntimeConfig, error) {
	cfg := RuntimeConfig{
		ServerHost:           DefaultServerHost,
		ServerPort:           DefaultServerPort,
		LLMProvider:          DefaultLLMProvider,
		LLMModel:             DefaultLLMModel,
		MaxRunElapsedSeconds: 50,
		MaxStepsPerRun:       3,
	}

	if configPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configPath = filepath.Join(home, ".aide-config.json")
		}
	}
	if configPath != "" {
		if raw, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *RuntimeConfig) {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setInt := func(dst *int, key string) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	setString(&cfg.ServerHost, "AIDE_SERVER_HOST")
	setInt(&cfg.ServerPort, "AIDE_SERVER_PORT")
	setString(&cfg.DatabaseURL, "AIDE_DATABASE_URL")
	setString(&cfg.LLMProvider, "AIDE_LLM_PROVIDER")
	setString(&cfg.LLMModel, "AIDE_LLM_MODEL")
	setString(&cfg.LLMAPIKey, "AIDE_LLM_API_KEY")
	setString(&cfg.LLMBaseURL, "AIDE_LLM_BASE_URL")
	setString(&cfg.TavilyAPIKey, "TAVILY_API_KEY")
	setString(&cfg.GitHubToken, "AIDE_GITHUB_TOKEN")
	setString(&cfg.GoogleClientID, "AIDE_GOOGLE_CLIENT_ID")
	setString(&cfg.GoogleClientSecret, "AIDE_GOOGLE_CLIENT_SECRET")
	setInt(&cfg.MaxRunElapsedSeconds, "AIDE_MAX_RUN_ELAPSED_SECONDS")
	setInt(&cfg.MaxStepsPerRun, "AIDE_MAX_STEPS_PER_RUN")

	if v, ok := os.LookupEnv("AIDE_ALLOWED_ORIGINS"); ok && v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		cfg.AllowedOrigins = origins
	}
}
