package persistence

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/veridian-labs/grc-sdk/modules/audit/domain/entities/activesession"
	"github.com/veridian-labs/grc-sdk/modules/audit/domain/entities/loginattempt"
	"github.com/veridian-labs/grc-sdk/pkg/composables"
	"github.com/veridian-labs/grc-sdk/pkg/repo"
)

// Both monitoring tables are central and created by the startup
// migrations, never on the fly.
const (
	loginAttemptInsertQuery = `
		INSERT INTO login_attempts (id, tenant_id, user_id, email, ip, user_agent, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	loginAttemptListQuery = `
		SELECT id, tenant_id, user_id, email, ip, user_agent, success, created_at
		FROM login_attempts ORDER BY created_at DESC
	`

	activeSessionInsertQuery = `
		INSERT INTO active_sessions (token, tenant_id, user_id, ip, user_agent, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	activeSessionTouchQuery = `
		UPDATE active_sessions SET last_seen_at = $3
		WHERE tenant_id = $1 AND token = $2 AND ended_at IS NULL
	`
	activeSessionEndQuery = `
		UPDATE active_sessions SET ended_at = $3
		WHERE tenant_id = $1 AND token = $2 AND ended_at IS NULL
	`
	activeSessionListQuery = `
		SELECT token, tenant_id, user_id, ip, user_agent, created_at, last_seen_at, ended_at
		FROM active_sessions WHERE ended_at IS NULL ORDER BY last_seen_at DESC
	`
)

type LoginAttemptRepository struct{}

func NewLoginAttemptRepository() loginattempt.Repository {
	return &LoginAttemptRepository{}
}

func (r *LoginAttemptRepository) Create(ctx context.Context, rec *loginattempt.Record) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	if _, err := tx.Exec(
		ctx,
		loginAttemptInsertQuery,
		rec.ID,
		rec.TenantID,
		rec.UserID,
		rec.Email,
		rec.IP,
		rec.UserAgent,
		rec.Success,
		rec.CreatedAt,
	); err != nil {
		return errors.Wrap(err, "failed to insert login attempt")
	}
	return nil
}

func (r *LoginAttemptRepository) List(ctx context.Context, limit, offset int) ([]*loginattempt.Record, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	query := loginAttemptListQuery + " " + repo.FormatLimitOffset(limit, offset)
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query login attempts")
	}
	defer rows.Close()

	var records []*loginattempt.Record
	for rows.Next() {
		var rec loginattempt.Record
		if err := rows.Scan(
			&rec.ID,
			&rec.TenantID,
			&rec.UserID,
			&rec.Email,
			&rec.IP,
			&rec.UserAgent,
			&rec.Success,
			&rec.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan login attempt")
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

type ActiveSessionRepository struct{}

func NewActiveSessionRepository() activesession.Repository {
	return &ActiveSessionRepository{}
}

func (r *ActiveSessionRepository) Create(ctx context.Context, rec *activesession.Record) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(
		ctx,
		activeSessionInsertQuery,
		rec.Token,
		rec.TenantID,
		rec.UserID,
		rec.IP,
		rec.UserAgent,
		rec.CreatedAt,
		rec.LastSeenAt,
	); err != nil {
		return errors.Wrap(err, "failed to insert active session")
	}
	return nil
}

func (r *ActiveSessionRepository) UpdateActivity(ctx context.Context, tenantID, token string, seenAt time.Time) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, activeSessionTouchQuery, tenantID, token, seenAt); err != nil {
		return errors.Wrap(err, "failed to update session activity")
	}
	return nil
}

func (r *ActiveSessionRepository) End(ctx context.Context, tenantID, token string, endedAt time.Time) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, activeSessionEndQuery, tenantID, token, endedAt); err != nil {
		return errors.Wrap(err, "failed to end session record")
	}
	return nil
}

func (r *ActiveSessionRepository) ListActive(ctx context.Context) ([]*activesession.Record, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, activeSessionListQuery)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query active sessions")
	}
	defer rows.Close()

	var records []*activesession.Record
	for rows.Next() {
		var rec activesession.Record
		if err := rows.Scan(
			&rec.Token,
			&rec.TenantID,
			&rec.UserID,
			&rec.IP,
			&rec.UserAgent,
			&rec.CreatedAt,
			&rec.LastSeenAt,
			&rec.EndedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan active session")
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
