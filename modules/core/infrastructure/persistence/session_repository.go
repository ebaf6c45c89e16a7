package persistence

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/veridian-labs/grc-sdk/modules/core/domain/entities/session"
	"github.com/veridian-labs/grc-sdk/modules/core/infrastructure/persistence/models"
	"github.com/veridian-labs/grc-sdk/pkg/composables"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	sessionInsertQuery = `
		INSERT INTO sessions (token, user_id, session_data, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	sessionFindQuery = `
		SELECT token, user_id, session_data, expires_at, created_at
		FROM sessions WHERE token = $1
	`
	sessionDeleteQuery = `DELETE FROM sessions WHERE token = $1`

	// Sessions live in each tenant's own database, so the table cannot be
	// provisioned by a central migration. The first write against a fresh
	// tenant creates it; IF NOT EXISTS keeps concurrent bootstraps safe.
	sessionSchemaDDL = `
		CREATE TABLE IF NOT EXISTS sessions (
			token VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			session_data JSONB NOT NULL DEFAULT '{}'::jsonb,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions (expires_at);
	`
)

// SessionRepository stores sessions in the tenant database found on the
// context. Tenant isolation is structural: a token issued under one tenant
// can never be looked up through another tenant's pool.
type SessionRepository struct{}

func NewSessionRepository() session.Repository {
	return &SessionRepository{}
}

func (r *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(sess.Payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session payload")
	}

	return r.withBootstrap(ctx, func() error {
		if _, err := tx.Exec(
			ctx,
			sessionInsertQuery,
			sess.Token,
			sess.UserID,
			data,
			sess.ExpiresAt,
			sess.CreatedAt,
		); err != nil {
			return errors.Wrap(err, "failed to insert session")
		}
		return nil
	})
}

func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*session.Session, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var row models.Session
	err = r.withBootstrap(ctx, func() error {
		return tx.QueryRow(ctx, sessionFindQuery, token).Scan(
			&row.Token,
			&row.UserID,
			&row.SessionData,
			&row.ExpiresAt,
			&row.CreatedAt,
		)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "failed to query session")
	}

	payload, err := session.ParsePayload(row.SessionData)
	if err != nil {
		return nil, err
	}

	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	return &session.Session{
		Token:     row.Token,
		TenantID:  tenantID,
		UserID:    row.UserID,
		Payload:   payload,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	return r.withBootstrap(ctx, func() error {
		if _, err := tx.Exec(ctx, sessionDeleteQuery, token); err != nil {
			return errors.Wrap(err, "failed to delete session")
		}
		return nil
	})
}

// withBootstrap retries fn once after creating the sessions table when the
// tenant database has never seen a session before.
func (r *SessionRepository) withBootstrap(ctx context.Context, fn func() error) error {
	err := fn()
	if !isUndefinedTable(err) {
		return err
	}

	tx, txErr := composables.UseTx(ctx)
	if txErr != nil {
		return txErr
	}
	if _, ddlErr := tx.Exec(ctx, sessionSchemaDDL); ddlErr != nil {
		return errors.Wrap(ddlErr, "failed to bootstrap sessions table")
	}
	return fn()
}

// isUndefinedTable reports the postgres undefined_table condition (42P01).
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
