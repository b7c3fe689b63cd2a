package llm

import (
	"context"
	"fmt"
	"sync"

	"aide/internal/agent/ports"
)

// MockClient is a scripted LLM client for engine tests. Each Complete call
// pops the next queued response; StreamComplete streams the popped content
// through OnDelta in small fragments.
type MockClient struct {
	mu        sync.Mutex
	model     string
	responses []*ports.CompletionResponse
	requests  []ports.CompletionRequest
	toolCalls bool
}

// NewMockClient builds a mock that reports tool-call support.
func NewMockClient(model string, responses ...*ports.CompletionResponse) *MockClient {
	return &MockClient{model: model, responses: responses, toolCalls: true}
}

// Enqueue appends responses to the script.
func (m *MockClient) Enqueue(responses ...*ports.CompletionResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// Requests returns a copy of every request seen so far.
func (m *MockClient) Requests() []ports.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.CompletionRequest(nil), m.requests...)
}

func (m *MockClient) Model() string          { return m.model }
func (m *MockClient) SupportsToolCalls() bool { return m.toolCalls }

// SetSupportsToolCalls toggles the tool-call capability for fallback tests.
func (m *MockClient) SetSupportsToolCalls(v bool) { m.toolCalls = v }

func (m *MockClient) pop(req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		return nil, fmt.Errorf("mock client script exhausted after %d calls", len(m.requests))
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *MockClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.pop(req)
}

func (m *MockClient) StreamComplete(ctx context.Context, req ports.CompletionRequest, callbacks ports.CompletionStreamCallbacks) (*ports.CompletionResponse, error) {
	resp, err := m.pop(req)
	if err != nil {
		return nil, err
	}
	if callbacks.OnDelta != nil {
		const fragment = 16
		for i := 0; i < len(resp.Content); i += fragment {
			end := i + fragment
			if end > len(resp.Content) {
				end = len(resp.Content)
			}
			callbacks.OnDelta(resp.Content[i:end])
		}
	}
	return resp, nil
}
