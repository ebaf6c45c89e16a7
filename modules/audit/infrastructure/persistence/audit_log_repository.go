package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/veridian-labs/grc-sdk/modules/audit/domain/entities/auditlog"
	"github.com/veridian-labs/grc-sdk/pkg/composables"
	"github.com/veridian-labs/grc-sdk/pkg/repo"
)

const (
	auditInsertQuery = `
		INSERT INTO audit_logs (
			id, tenant_id, user_id, user_email, action, entity_type, entity_id,
			before_data, after_data, ip, user_agent, success, error_message, context, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	auditSelectColumns = `
		id, tenant_id, user_id, user_email, action, entity_type, entity_id,
		before_data, after_data, ip, user_agent, success, error_message, context, created_at
	`

	// Audit entries live in the tenant database next to the data they
	// describe. As with sessions, the table cannot come from a central
	// migration; the first query against a fresh tenant provisions it.
	auditSchemaDDL = `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id VARCHAR(36) PRIMARY KEY,
			tenant_id VARCHAR(255) NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			user_email VARCHAR(255) NOT NULL,
			action VARCHAR(255) NOT NULL,
			entity_type VARCHAR(255) NOT NULL,
			entity_id VARCHAR(255) NOT NULL DEFAULT '',
			before_data JSONB,
			after_data JSONB,
			ip VARCHAR(255) NOT NULL DEFAULT '',
			user_agent VARCHAR(1024) NOT NULL DEFAULT '',
			success BOOLEAN NOT NULL DEFAULT TRUE,
			error_message TEXT NOT NULL DEFAULT '',
			context JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs (user_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs (entity_type, entity_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs (created_at);
	`
)

type AuditLogRepository struct{}

func NewAuditLogRepository() auditlog.Repository {
	return &AuditLogRepository{}
}

// Create appends one entry. No DDL runs here: the write path has to stay
// cheap, so a missing table surfaces as an error for the service to absorb.
func (r *AuditLogRepository) Create(ctx context.Context, entry *auditlog.Entry) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if _, err := tx.Exec(
		ctx,
		auditInsertQuery,
		entry.ID,
		entry.TenantID,
		entry.UserID,
		entry.UserEmail,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.Before,
		entry.After,
		entry.IP,
		entry.UserAgent,
		entry.Success,
		entry.ErrorMessage,
		entry.Context,
		entry.CreatedAt,
	); err != nil {
		return errors.Wrap(err, "failed to insert audit entry")
	}
	return nil
}

func (r *AuditLogRepository) List(ctx context.Context, params *auditlog.FindParams) ([]*auditlog.Entry, error) {
	where, args := buildAuditFilters(params)
	query := fmt.Sprintf(
		"SELECT %s FROM audit_logs %s ORDER BY created_at DESC %s",
		auditSelectColumns,
		where,
		repo.FormatLimitOffset(params.Limit, params.Offset),
	)

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var entries []*auditlog.Entry
	err = r.withBootstrap(ctx, func() error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		entries = entries[:0]
		for rows.Next() {
			var e auditlog.Entry
			if err := rows.Scan(
				&e.ID,
				&e.TenantID,
				&e.UserID,
				&e.UserEmail,
				&e.Action,
				&e.EntityType,
				&e.EntityID,
				&e.Before,
				&e.After,
				&e.IP,
				&e.UserAgent,
				&e.Success,
				&e.ErrorMessage,
				&e.Context,
				&e.CreatedAt,
			); err != nil {
				return errors.Wrap(err, "failed to scan audit entry")
			}
			entries = append(entries, &e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to query audit entries")
	}
	return entries, nil
}

func (r *AuditLogRepository) Count(ctx context.Context, params *auditlog.FindParams) (int64, error) {
	where, args := buildAuditFilters(params)
	query := "SELECT COUNT(*) FROM audit_logs " + where

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	err = r.withBootstrap(ctx, func() error {
		return tx.QueryRow(ctx, query, args...).Scan(&count)
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to count audit entries")
	}
	return count, nil
}

func buildAuditFilters(params *auditlog.FindParams) (string, []any) {
	var conditions []string
	var args []any

	add := func(condition string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if params.UserID != "" {
		add("user_id = $%d", params.UserID)
	}
	if params.EntityType != "" {
		add("entity_type = $%d", params.EntityType)
	}
	if params.Action != "" {
		add("action = $%d", params.Action)
	}
	if !params.From.IsZero() {
		add("created_at >= $%d", params.From)
	}
	if !params.To.IsZero() {
		add("created_at <= $%d", params.To)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *AuditLogRepository) withBootstrap(ctx context.Context, fn func() error) error {
	err := fn()
	if !isUndefinedTable(err) {
		return err
	}

	tx, txErr := composables.UseTx(ctx)
	if txErr != nil {
		return txErr
	}
	if _, ddlErr := tx.Exec(ctx, auditSchemaDDL); ddlErr != nil {
		return errors.Wrap(ddlErr, "failed to bootstrap audit_logs table")
	}
	return fn()
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
