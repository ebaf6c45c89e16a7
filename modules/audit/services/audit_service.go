package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/veridian-labs/grc-sdk/modules/audit/domain/entities/activesession"
	"github.com/veridian-labs/grc-sdk/modules/audit/domain/entities/auditlog"
	"github.com/veridian-labs/grc-sdk/modules/audit/domain/entities/loginattempt"
	"github.com/veridian-labs/grc-sdk/pkg/composables"
	"github.com/veridian-labs/grc-sdk/pkg/configuration"
	"github.com/veridian-labs/grc-sdk/pkg/metrics"
	"github.com/veridian-labs/grc-sdk/pkg/repo"
)

type AuditService struct {
	logs     auditlog.Repository
	attempts loginattempt.Repository
	sessions activesession.Repository
	central  repo.Pool
	logger   *logrus.Logger
}

func NewAuditService(
	logs auditlog.Repository,
	attempts loginattempt.Repository,
	sessions activesession.Repository,
	central repo.Pool,
	logger *logrus.Logger,
) *AuditService {
	return &AuditService{
		logs:     logs,
		attempts: attempts,
		sessions: sessions,
		central:  central,
		logger:   logger,
	}
}

// Log appends an audit entry into the current tenant's database. It never
// returns an error: auditing must not break the operation being audited.
// Entries with no actor identity are dropped, failed inserts are absorbed;
// both leave a warning and a counter increment behind.
//
// Writes are synchronous and unretried, so an entry can be lost when the
// tenant database is briefly unavailable.
func (s *AuditService) Log(ctx context.Context, entry *auditlog.Entry) {
	if entry.UserID == "" || entry.UserEmail == "" {
		s.logger.WithFields(logrus.Fields{
			"action":      entry.Action,
			"entity_type": entry.EntityType,
		}).Warn("audit: dropping entry without actor identity")
		metrics.AuditEntriesDropped.Inc()
		return
	}

	if entry.TenantID == "" {
		if tenantID, err := composables.UseTenantID(ctx); err == nil {
			entry.TenantID = tenantID
		}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := s.logs.Create(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action":      entry.Action,
			"entity_type": entry.EntityType,
			"entity_id":   entry.EntityID,
			"user_id":     entry.UserID,
		}).Warn("audit: entry write failed")
		metrics.AuditWriteFailures.Inc()
		return
	}
	metrics.AuditEntriesWritten.Inc()
}

// Query reads audit entries for the current tenant with the total count.
func (s *AuditService) Query(ctx context.Context, params *auditlog.FindParams) ([]*auditlog.Entry, int64, error) {
	conf := configuration.Use()
	if params == nil {
		params = &auditlog.FindParams{}
	}
	if params.Limit <= 0 {
		params.Limit = conf.PageSize
	}
	if params.Limit > conf.MaxPageSize {
		params.Limit = conf.MaxPageSize
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	entries, err := s.logs.List(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.logs.Count(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// centralCtx pins the context to the central pool: the monitoring mirror
// is cross-tenant by design.
func (s *AuditService) centralCtx(ctx context.Context) context.Context {
	return composables.WithPool(ctx, s.central)
}

func (s *AuditService) RecordLoginAttempt(ctx context.Context, rec *loginattempt.Record) {
	if err := s.attempts.Create(s.centralCtx(ctx), rec); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"tenant_id": rec.TenantID,
			"user_id":   rec.UserID,
		}).Warn("audit: login attempt write failed")
	}
}

func (s *AuditService) CreateSessionRecord(ctx context.Context, rec *activesession.Record) {
	if err := s.sessions.Create(s.centralCtx(ctx), rec); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"tenant_id": rec.TenantID,
			"user_id":   rec.UserID,
		}).Warn("audit: active session write failed")
	}
}

func (s *AuditService) UpdateActivity(ctx context.Context, tenantID, token string) {
	if err := s.sessions.UpdateActivity(s.centralCtx(ctx), tenantID, token, time.Now()); err != nil {
		s.logger.WithError(err).WithField("tenant_id", tenantID).Warn("audit: session activity update failed")
	}
}

func (s *AuditService) EndSession(ctx context.Context, tenantID, token string) {
	if err := s.sessions.End(s.centralCtx(ctx), tenantID, token, time.Now()); err != nil {
		s.logger.WithError(err).WithField("tenant_id", tenantID).Warn("audit: session end failed")
	}
}

func (s *AuditService) ListActiveSessions(ctx context.Context) ([]*activesession.Record, error) {
	return s.sessions.ListActive(s.centralCtx(ctx))
}

func (s *AuditService) ListLoginAttempts(ctx context.Context, limit, offset int) ([]*loginattempt.Record, error) {
	conf := configuration.Use()
	if limit <= 0 {
		limit = conf.PageSize
	}
	if limit > conf.MaxPageSize {
		limit = conf.MaxPageSize
	}
	return s.attempts.List(s.centralCtx(ctx), limit, offset)
}
