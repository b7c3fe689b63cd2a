package llm

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"aide/internal/httpclient"
	"aide/internal/logging"
)

// baseClient holds fields and helpers shared by HTTP-based LLM clients.
type baseClient struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
	headers    map[string]string
}

// baseClientOpts configures provider-specific defaults for newBaseClient.
type baseClientOpts struct {
	defaultBaseURL string
	defaultTimeout time.Duration
	logComponent   string
}

// Model returns the model name used by this client.
func (c *baseClient) Model() string {
	return c.model
}

// newBaseClient constructs the shared fields for an HTTP-based LLM client.
func newBaseClient(model string, config Config, opts baseClientOpts) baseClient {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = opts.defaultBaseURL
	}
	timeout := opts.defaultTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if config.TimeoutSec > 0 {
		timeout = time.Duration(config.TimeoutSec) * time.Second
	}
	return baseClient{
		model:      model,
		apiKey:     config.APIKey,
		baseURL:    baseURL,
		httpClient: httpclient.New(timeout),
		logger:     logging.NewComponentLogger(opts.logComponent),
		headers:    config.Headers,
	}
}

// doPost sends a JSON POST with the provider headers applied by configure.
func (c *baseClient) doPost(ctx context.Context, endpoint string, body []byte, configure func(*http.Request)) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	if configure != nil {
		configure(httpReq)
	}
	return c.httpClient.Do(httpReq)
}

func readBody(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, 8<<20))
}
