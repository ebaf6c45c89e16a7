package auditlog

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one append-only audit record. Rows are never updated or
// deleted; corrections show up as new entries.
type Entry struct {
	ID           string
	TenantID     string
	UserID       string
	UserEmail    string
	Action       string
	EntityType   string
	EntityID     string
	Before       json.RawMessage
	After        json.RawMessage
	IP           string
	UserAgent    string
	Success      bool
	ErrorMessage string
	Context      json.RawMessage
	CreatedAt    time.Time
}

type FindParams struct {
	UserID     string
	EntityType string
	Action     string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, params *FindParams) ([]*Entry, error)
	Count(ctx context.Context, params *FindParams) (int64, error)
}
