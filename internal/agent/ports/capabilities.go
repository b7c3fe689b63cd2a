package ports

import (
	"context"
	"time"
)

// Settings resolves the caller's model configuration.
type Settings struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url,omitempty"`
}

// SettingsStore looks up per-user provider settings.
type SettingsStore interface {
	Settings(ctx context.Context, userID string) (*Settings, error)
}

// ConnectorToken is a stored OAuth credential with scope metadata.
type ConnectorToken struct {
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TokenStore provides OAuth tokens per provider, refreshing on demand.
type TokenStore interface {
	Token(ctx context.Context, userID, provider string) (*ConnectorToken, error)
	Refresh(ctx context.Context, userID, provider string) (*ConnectorToken, error)
}

// Notifier creates a user-visible notification. Fire-and-forget: failures
// are logged by implementations, never surfaced to the run.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string)
}

// ContinuationScheduler re-invokes the resume entrypoint asynchronously,
// immediately, exactly once per call. Delivery is at-least-once; resume is
// idempotent to compensate.
type ContinuationScheduler interface {
	ScheduleContinuation(userID, taskID string)
}

// Clock abstracts wall-clock reads for budget checks.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
