package connectors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aide/internal/agent/ports"
)

const tokenTable = "connector_tokens"

// MemorySource is an in-memory TokenSource for tests and local runs.
type MemorySource struct {
	mu     sync.RWMutex
	tokens map[string]*ports.ConnectorToken
}

// NewMemorySource builds an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{tokens: map[string]*ports.ConnectorToken{}}
}

func (m *MemorySource) LoadToken(ctx context.Context, userID, provider string) (*ports.ConnectorToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[cacheKey(userID, provider)]
	if !ok {
		return nil, fmt.Errorf("no %s connection for this account", provider)
	}
	clone := *token
	return &clone, nil
}

func (m *MemorySource) SaveToken(ctx context.Context, userID, provider string, token *ports.ConnectorToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *token
	m.tokens[cacheKey(userID, provider)] = &clone
	return nil
}

// PostgresSource persists connector tokens in Postgres.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource builds a Postgres-backed token source.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// EnsureSchema creates the token table if it does not exist.
func (p *PostgresSource) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    user_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    access_token TEXT NOT NULL,
    refresh_token TEXT NOT NULL DEFAULT '',
    scopes TEXT[] NOT NULL DEFAULT '{}',
    expires_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (user_id, provider)
);`, tokenTable)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresSource) LoadToken(ctx context.Context, userID, provider string) (*ports.ConnectorToken, error) {
	query := fmt.Sprintf(`SELECT access_token, refresh_token, scopes, expires_at
FROM %s WHERE user_id = $1 AND provider = $2`, tokenTable)

	token := &ports.ConnectorToken{Provider: provider}
	err := p.pool.QueryRow(ctx, query, userID, provider).Scan(
		&token.AccessToken, &token.RefreshToken, &token.Scopes, &token.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no %s connection for this account", provider)
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

func (p *PostgresSource) SaveToken(ctx context.Context, userID, provider string, token *ports.ConnectorToken) error {
	query := fmt.Sprintf(`INSERT INTO %s (user_id, provider, access_token, refresh_token, scopes, expires_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, provider) DO UPDATE SET
    access_token = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    scopes = EXCLUDED.scopes,
    expires_at = EXCLUDED.expires_at,
    updated_at = EXCLUDED.updated_at`, tokenTable)
	_, err := p.pool.Exec(ctx, query, userID, provider,
		token.AccessToken, token.RefreshToken, token.Scopes, token.ExpiresAt, time.Now().UTC())
	return err
}
