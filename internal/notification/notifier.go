// Package notification creates user-visible notifications. Delivery is
// fire-and-forget: the agent never blocks or fails because a notification
// could not be written.
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"aide/internal/logging"
)

const notificationTable = "notifications"

// Notification is one stored user notification.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// PostgresNotifier writes notifications to Postgres.
type PostgresNotifier struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewPostgresNotifier builds a Postgres-backed notifier.
func NewPostgresNotifier(pool *pgxpool.Pool) *PostgresNotifier {
	return &PostgresNotifier{
		pool:   pool,
		logger: logging.NewComponentLogger("Notifier"),
	}
}

// EnsureSchema creates the notification table if it does not exist.
func (n *PostgresNotifier) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    body TEXT NOT NULL DEFAULT '',
    read BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON %s (user_id, created_at DESC);`,
		notificationTable, notificationTable)
	_, err := n.pool.Exec(ctx, query)
	return err
}

// Notify stores one notification. Errors are swallowed after logging.
func (n *PostgresNotifier) Notify(ctx context.Context, userID, title, body string) {
	query := fmt.Sprintf(`INSERT INTO %s (id, user_id, title, body, created_at)
VALUES ($1, $2, $3, $4, $5)`, notificationTable)
	_, err := n.pool.Exec(ctx, query, "ntf_"+uuid.NewString(), userID, title, body, time.Now().UTC())
	if err != nil {
		n.logger.Warn("writing notification for %s: %v", userID, err)
	}
}

// MemoryNotifier collects notifications in memory for tests and local runs.
type MemoryNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

// NewMemoryNotifier builds an empty in-memory notifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (n *MemoryNotifier) Notify(ctx context.Context, userID, title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, Notification{
		ID:        "ntf_" + uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	})
}

// All returns a copy of everything notified so far.
func (n *MemoryNotifier) All() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.notifications...)
}
