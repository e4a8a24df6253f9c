package domain

import (
	"context"
	"time"
)

// SessionSummary is a compact listing entry for a persisted session.
type SessionSummary struct {
	ID        string        `json:"id"`
	Query     string        `json:"query"`
	Primary   string        `json:"primary"`
	Mode      Mode          `json:"mode"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// SessionStore persists finished collaboration sessions.
type SessionStore interface {
	Save(ctx context.Context, session *CollaborationSession) error
	// Get returns ErrSessionNotFound when id is unknown.
	Get(ctx context.Context, id string) (*CollaborationSession, error)
	// List returns up to limit summaries, newest first.
	List(ctx context.Context, limit int) ([]SessionSummary, error)
	// Search returns up to limit summaries whose query or final response
	// match text, best match first. Empty text behaves like List.
	Search(ctx context.Context, text string, limit int) ([]SessionSummary, error)
	Close() error
}
