package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"aide/internal/agent/ports"
	aideerrors "aide/internal/errors"
)

const (
	defaultAnthropicBaseURL   = "https://api.anthropic.com/v1"
	defaultAnthropicVersion   = "2023-06-01"
	anthropicVersionHeaderKey = "anthropic-version"
	anthropicAPIKeyHeaderKey  = "x-api-key"
	anthropicMessagesPath     = "/messages"
	defaultAnthropicMaxTokens = 4096
)

// anthropicClient speaks the Anthropic messages API.
type anthropicClient struct {
	baseClient
}

// NewAnthropicClient constructs an LLM client for the Anthropic messages wire.
func NewAnthropicClient(model string, config Config) (ports.LLMClient, error) {
	return &anthropicClient{
		baseClient: newBaseClient(model, config, baseClientOpts{
			defaultBaseURL: defaultAnthropicBaseURL,
			logComponent:   "llm-anthropic",
		}),
	}, nil
}

func (c *anthropicClient) SupportsToolCalls() bool { return true }

func (c *anthropicClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set(anthropicAPIKeyHeaderKey, c.apiKey)
	}
	if req.Header.Get(anthropicVersionHeaderKey) == "" {
		req.Header.Set(anthropicVersionHeaderKey, defaultAnthropicVersion)
	}
}

// convertMessages maps the portable message list onto the Anthropic shape:
// the system prompt travels as a top-level field, assistant tool calls become
// tool_use content blocks, and tool results become tool_result blocks on a
// user message.
func (c *anthropicClient) convertMessages(messages []ports.Message) ([]map[string]any, string) {
	var system string
	out := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case "tool":
			out = append(out, map[string]any{
				"role": "user",
				"content": []map[string]any{{
					"type":        "tool_result",
					"tool_use_id": m.ToolCallID,
					"content":     m.Content,
				}},
			})
		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, map[string]any{"role": "assistant", "content": m.Content})
				continue
			}
			blocks := make([]map[string]any, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			out = append(out, map[string]any{"role": "assistant", "content": blocks})
		default:
			out = append(out, map[string]any{"role": "user", "content": m.Content})
		}
	}
	return out, system
}

func convertAnthropicTools(tools []ports.ToolDefinition) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": t.Parameters,
		})
	}
	return out
}

func (c *anthropicClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	messages, system := c.convertMessages(req.Messages)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	payload := map[string]any{
		"model":      c.model,
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	if system != "" {
		payload["system"] = system
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if len(req.Tools) > 0 {
		payload["tools"] = convertAnthropicTools(req.Tools)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + anthropicMessagesPath
	c.logger.Debug("POST %s model=%s messages=%d tools=%d", endpoint, c.model, len(messages), len(req.Tools))

	resp, err := c.doPost(ctx, endpoint, body, c.authorize)
	if err != nil {
		return nil, aideerrors.NewTransientError(err, "LLM request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, aideerrors.FromHTTPStatus(resp.StatusCode, respBody)
	}

	var aResp struct {
		Content []struct {
			Type  string          `json:"type"`
			Text  string          `json:"text"`
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &aResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(aResp.Content) == 0 {
		return nil, aideerrors.NewTransientError(errors.New("no content blocks in response"), "LLM returned an empty response")
	}

	result := &ports.CompletionResponse{
		StopReason: aResp.StopReason,
		Usage: ports.TokenUsage{
			PromptTokens:     aResp.Usage.InputTokens,
			CompletionTokens: aResp.Usage.OutputTokens,
			TotalTokens:      aResp.Usage.InputTokens + aResp.Usage.OutputTokens,
		},
	}
	for _, block := range aResp.Content {
		switch block.Type {
		case "text":
			result.Content += block.Text
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					c.logger.Warn("unparseable tool_use input for %s: %v", block.Name, err)
					continue
				}
			}
			result.ToolCalls = append(result.ToolCalls, ports.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	c.logger.Debug("response stop=%s content=%dB tool_calls=%d tokens=%d",
		result.StopReason, len(result.Content), len(result.ToolCalls), result.Usage.TotalTokens)
	return result, nil
}
