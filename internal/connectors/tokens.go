// Package connectors stores OAuth tokens for external providers and keeps
// them fresh. Reads go through a small LRU cache; refreshes hit the
// provider's token endpoint and write back to persistence.
package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"aide/internal/agent/ports"
	"aide/internal/httpclient"
	"aide/internal/logging"
)

const (
	googleTokenEndpoint = "https://oauth2.googleapis.com/token"
	cacheSize           = 512
	cacheExpirySlack    = 2 * time.Minute
)

// TokenSource is the persistence boundary for connector tokens.
type TokenSource interface {
	LoadToken(ctx context.Context, userID, provider string) (*ports.ConnectorToken, error)
	SaveToken(ctx context.Context, userID, provider string, token *ports.ConnectorToken) error
}

// Service implements ports.TokenStore on a TokenSource.
type Service struct {
	source TokenSource
	cache  *lru.Cache[string, *ports.ConnectorToken]
	client *http.Client
	logger logging.Logger

	googleClientID     string
	googleClientSecret string
	googleEndpoint     string
}

// Option tweaks Service construction.
type Option func(*Service)

// WithGoogleCredentials sets the client credentials used by the refresh grant.
func WithGoogleCredentials(clientID, clientSecret string) Option {
	return func(s *Service) {
		s.googleClientID = clientID
		s.googleClientSecret = clientSecret
	}
}

// WithGoogleEndpoint overrides the token endpoint. Tests point it at a local
// server.
func WithGoogleEndpoint(endpoint string) Option {
	return func(s *Service) { s.googleEndpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.client = client }
}

// NewService builds a token store over source.
func NewService(source TokenSource, opts ...Option) *Service {
	cache, _ := lru.New[string, *ports.ConnectorToken](cacheSize)
	s := &Service{
		source:         source,
		cache:          cache,
		client:         httpclient.New(15 * time.Second),
		logger:         logging.NewComponentLogger("Connectors"),
		googleEndpoint: googleTokenEndpoint,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cacheKey(userID, provider string) string { return userID + "/" + provider }

// Token returns the stored token for the provider, served from cache while it
// is comfortably valid. Expiry-driven refresh is the caller's decision; the
// cache only steps aside when the token is stale.
func (s *Service) Token(ctx context.Context, userID, provider string) (*ports.ConnectorToken, error) {
	key := cacheKey(userID, provider)
	if token, ok := s.cache.Get(key); ok && time.Until(token.ExpiresAt) > cacheExpirySlack {
		clone := *token
		return &clone, nil
	}
	token, err := s.source.LoadToken(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, token)
	clone := *token
	return &clone, nil
}

// Refresh exchanges the stored refresh token for a fresh access token and
// persists the result. Only Google implements a refresh grant here; other
// providers re-read persistence.
func (s *Service) Refresh(ctx context.Context, userID, provider string) (*ports.ConnectorToken, error) {
	token, err := s.source.LoadToken(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if provider != "google" {
		s.cache.Add(cacheKey(userID, provider), token)
		clone := *token
		return &clone, nil
	}
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token stored for %s: reconnect the account", provider)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", token.RefreshToken)
	form.Set("client_id", s.googleClientID)
	form.Set("client_secret", s.googleClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.googleEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refreshing %s token: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token refresh failed (status %d): %s", resp.StatusCode, truncateBody(raw))
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Scope       string `json:"scope"`
	}
	if err := json.Unmarshal(raw, &grant); err != nil {
		return nil, fmt.Errorf("parsing token refresh response: %w", err)
	}

	refreshed := &ports.ConnectorToken{
		Provider:     provider,
		AccessToken:  grant.AccessToken,
		RefreshToken: token.RefreshToken,
		Scopes:       token.Scopes,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(grant.ExpiresIn) * time.Second),
	}
	if grant.Scope != "" {
		refreshed.Scopes = strings.Fields(grant.Scope)
	}
	if err := s.source.SaveToken(ctx, userID, provider, refreshed); err != nil {
		s.logger.Warn("persisting refreshed %s token for %s: %v", provider, userID, err)
	}
	s.cache.Add(cacheKey(userID, provider), refreshed)
	clone := *refreshed
	return &clone, nil
}

func truncateBody(raw []byte) string {
	s := string(raw)
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}
