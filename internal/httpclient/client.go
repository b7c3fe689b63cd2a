// Package httpclient builds the shared HTTP clients used for provider and
// connector calls.
package httpclient

import (
	"net/http"
	"time"
)

// New returns an HTTP client with the given total-request timeout.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
