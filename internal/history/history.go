// Package history persists an audit row for every AI generation.
//
// Recording is a best-effort side channel: store failures are logged and
// swallowed so they never fail a generation that already succeeded.
package history

import (
	"context"
	"time"
)

// Type labels the assist feature that produced an entry.
type Type string

const (
	TypeSummary           Type = "summary"
	TypeWritingSuggestion Type = "writing_suggestion"
	TypeSEO               Type = "seo"
	TypeCompletion        Type = "completion"
)

// Entry is one generation_history row. It is never mutated after insert.
type Entry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	Type       Type      `json:"type"`
	Prompt     string    `json:"prompt"`
	Result     string    `json:"result"`
	TokensUsed int       `json:"tokens_used"`
	Model      string    `json:"model"`
	Provider   string    `json:"provider"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is a history backend.
type Store interface {
	// Insert persists e and returns the new record id.
	Insert(ctx context.Context, e Entry) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
