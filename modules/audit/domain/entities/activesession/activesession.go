package activesession

import (
	"context"
	"time"
)

// Record mirrors a live session into the central database for oversight.
// It is monitoring data only: session validity is decided by the tenant's
// own sessions table, never by this mirror.
type Record struct {
	Token      string
	TenantID   string
	UserID     string
	IP         string
	UserAgent  string
	CreatedAt  time.Time
	LastSeenAt time.Time
	EndedAt    *time.Time
}

type Repository interface {
	Create(ctx context.Context, rec *Record) error
	UpdateActivity(ctx context.Context, tenantID, token string, seenAt time.Time) error
	End(ctx context.Context, tenantID, token string, endedAt time.Time) error
	ListActive(ctx context.Context) ([]*Record, error)
}
