package handlers

import (
	"context"
	"time"

	"github.com/veridian-labs/grc-sdk/modules/audit/domain/entities/activesession"
	"github.com/veridian-labs/grc-sdk/modules/audit/domain/entities/loginattempt"
	"github.com/veridian-labs/grc-sdk/modules/audit/services"
	"github.com/veridian-labs/grc-sdk/modules/core/domain/entities/session"
	"github.com/veridian-labs/grc-sdk/pkg/application"
)

// SessionEventsHandler mirrors session lifecycle events into the central
// monitoring tables. It observes; it never influences whether a session is
// valid.
type SessionEventsHandler struct {
	app     application.Application
	service *services.AuditService
}

func RegisterSessionEventHandlers(app application.Application) {
	handler := &SessionEventsHandler{
		app:     app,
		service: app.Service(services.AuditService{}).(*services.AuditService),
	}
	app.EventPublisher().Subscribe(handler.onSessionCreated)
	app.EventPublisher().Subscribe(handler.onSessionDestroyed)
	app.EventPublisher().Subscribe(handler.onLoginAttempted)
}

func (h *SessionEventsHandler) onSessionCreated(event session.CreatedEvent) {
	h.service.CreateSessionRecord(context.Background(), &activesession.Record{
		Token:      event.Result.Token,
		TenantID:   event.Result.TenantID,
		UserID:     event.Result.UserID,
		IP:         event.IP,
		UserAgent:  event.UserAgent,
		CreatedAt:  event.Result.CreatedAt,
		LastSeenAt: event.Result.CreatedAt,
	})
}

func (h *SessionEventsHandler) onSessionDestroyed(event session.DestroyedEvent) {
	h.service.EndSession(context.Background(), event.TenantID, event.Token)
}

func (h *SessionEventsHandler) onLoginAttempted(event session.LoginAttemptedEvent) {
	h.service.RecordLoginAttempt(context.Background(), &loginattempt.Record{
		TenantID:  event.TenantID,
		UserID:    event.UserID,
		Email:     event.Email,
		IP:        event.IP,
		UserAgent: event.UserAgent,
		Success:   event.Success,
		CreatedAt: time.Now(),
	})
}
