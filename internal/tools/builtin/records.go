package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Idea is a captured business or content idea.
type Idea struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IncomeStream is one tracked revenue source.
type IncomeStream struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	MonthlyAmount float64 `json:"monthly_amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status,omitempty"`
}

// MentorshipSession is a scheduled or past mentorship meeting.
type MentorshipSession struct {
	ID          string    `json:"id"`
	Mentor      string    `json:"mentor"`
	Topic       string    `json:"topic,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `json:"notes,omitempty"`
}

// Insight is a saved piece of knowledge, searchable by text.
type Insight struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// DraftFile is a task-scoped workspace file the agent can read and write.
type DraftFile struct {
	Path      string    `json:"path"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordStore is the assistant-data boundary the lookup and draft tools sit
// on. The production implementation lives with the rest of the SaaS backend;
// MemoryRecords backs tests and local runs.
type RecordStore interface {
	ListIdeas(ctx context.Context, userID string) ([]Idea, error)
	ListIncomeStreams(ctx context.Context, userID string) ([]IncomeStream, error)
	ListMentorshipSessions(ctx context.Context, userID string) ([]MentorshipSession, error)
	SearchInsights(ctx context.Context, userID, query string, limit int) ([]Insight, error)

	ReadFile(ctx context.Context, userID, path string) (*DraftFile, error)
	CreateDraft(ctx context.Context, userID, path, content string) (*DraftFile, error)
	UpdateDraft(ctx context.Context, userID, path, content string) (*DraftFile, error)
}

// MemoryRecords is an in-memory RecordStore.
type MemoryRecords struct {
	mu       sync.RWMutex
	ideas    map[string][]Idea
	income   map[string][]IncomeStream
	sessions map[string][]MentorshipSession
	insights map[string][]Insight
	files    map[string]map[string]*DraftFile
}

// NewMemoryRecords builds an empty in-memory record store.
func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{
		ideas:    map[string][]Idea{},
		income:   map[string][]IncomeStream{},
		sessions: map[string][]MentorshipSession{},
		insights: map[string][]Insight{},
		files:    map[string]map[string]*DraftFile{},
	}
}

// Seed helpers for tests and local fixtures.

func (m *MemoryRecords) AddIdea(userID string, idea Idea) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ideas[userID] = append(m.ideas[userID], idea)
}

func (m *MemoryRecords) AddIncomeStream(userID string, stream IncomeStream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.income[userID] = append(m.income[userID], stream)
}

func (m *MemoryRecords) AddMentorshipSession(userID string, session MentorshipSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = append(m.sessions[userID], session)
}

func (m *MemoryRecords) AddInsight(userID string, insight Insight) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insights[userID] = append(m.insights[userID], insight)
}

func (m *MemoryRecords) ListIdeas(ctx context.Context, userID string) ([]Idea, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Idea(nil), m.ideas[userID]...), nil
}

func (m *MemoryRecords) ListIncomeStreams(ctx context.Context, userID string) ([]IncomeStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]IncomeStream(nil), m.income[userID]...), nil
}

func (m *MemoryRecords) ListMentorshipSessions(ctx context.Context, userID string) ([]MentorshipSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MentorshipSession(nil), m.sessions[userID]...), nil
}

func (m *MemoryRecords) SearchInsights(ctx context.Context, userID, query string, limit int) ([]Insight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(query))
	var out []Insight
	for _, insight := range m.insights[userID] {
		if needle == "" ||
			strings.Contains(strings.ToLower(insight.Title), needle) ||
			strings.Contains(strings.ToLower(insight.Content), needle) {
			out = append(out, insight)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryRecords) ReadFile(ctx context.Context, userID, path string) (*DraftFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	file, ok := m.files[userID][path]
	if !ok {
		return nil, fmt.Errorf("file %s not found", path)
	}
	clone := *file
	return &clone, nil
}

func (m *MemoryRecords) CreateDraft(ctx context.Context, userID, path, content string) (*DraftFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[userID] == nil {
		m.files[userID] = map[string]*DraftFile{}
	}
	if _, exists := m.files[userID][path]; exists {
		return nil, fmt.Errorf("file %s already exists", path)
	}
	file := &DraftFile{Path: path, Content: content, UpdatedAt: time.Now().UTC()}
	m.files[userID][path] = file
	clone := *file
	return &clone, nil
}

func (m *MemoryRecords) UpdateDraft(ctx context.Context, userID, path, content string) (*DraftFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[userID][path]
	if !ok {
		return nil, fmt.Errorf("file %s not found", path)
	}
	file.Content = content
	file.UpdatedAt = time.Now().UTC()
	clone := *file
	return &clone, nil
}

// ListFiles returns the user's draft paths, sorted. Used by tests.
func (m *MemoryRecords) ListFiles(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var paths []string
	for path := range m.files[userID] {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
