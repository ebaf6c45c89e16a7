package loginattempt

import (
	"context"
	"time"
)

// Record is one login attempt, successful or not. Kept centrally so
// security staff can watch attempts across every tenant.
type Record struct {
	ID        string
	TenantID  string
	UserID    string
	Email     string
	IP        string
	UserAgent string
	Success   bool
	CreatedAt time.Time
}

type Repository interface {
	Create(ctx context.Context, rec *Record) error
	List(ctx context.Context, limit, offset int) ([]*Record, error)
}
