package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/veridian-labs/grc-sdk/modules/audit/domain/entities/auditlog"
	"github.com/veridian-labs/grc-sdk/modules/audit/services"
	"github.com/veridian-labs/grc-sdk/pkg/application"
	"github.com/veridian-labs/grc-sdk/pkg/composables"
	"github.com/veridian-labs/grc-sdk/pkg/httpapi"
)

type auditLogsResponse struct {
	Data  []*auditlog.Entry `json:"data"`
	Total int64             `json:"total"`
}

func NewAuditController(app application.Application) application.Controller {
	return &AuditController{
		app:          app,
		auditService: app.Service(services.AuditService{}).(*services.AuditService),
	}
}

type AuditController struct {
	app          application.Application
	auditService *services.AuditService
}

func (c *AuditController) Key() string {
	return "/audit"
}

func (c *AuditController) Register(r *mux.Router) {
	router := r.PathPrefix("/audit").Subrouter()
	router.HandleFunc("/logs", c.Logs).Methods(http.MethodGet)
	router.HandleFunc("/login-attempts", c.LoginAttempts).Methods(http.MethodGet)
	router.HandleFunc("/active-sessions", c.ActiveSessions).Methods(http.MethodGet)
}

// Logs lists the current tenant's audit entries, newest first.
func (c *AuditController) Logs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	params := &auditlog.FindParams{
		UserID:     q.Get("user_id"),
		EntityType: q.Get("entity_type"),
		Action:     q.Get("action"),
		Limit:      intQuery(q.Get("limit")),
		Offset:     intQuery(q.Get("offset")),
	}
	if from, err := timeQuery(q.Get("from")); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid from timestamp", nil)
		return
	} else {
		params.From = from
	}
	if to, err := timeQuery(q.Get("to")); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid to timestamp", nil)
		return
	} else {
		params.To = to
	}

	entries, total, err := c.auditService.Query(ctx, params)
	if err != nil {
		composables.UseLogger(ctx).WithError(err).Error("audit log query failed")
		_ = httpapi.WriteInternalError(w)
		return
	}
	if entries == nil {
		entries = []*auditlog.Entry{}
	}

	_ = httpapi.WriteJSON(w, http.StatusOK, &auditLogsResponse{Data: entries, Total: total})
}

func (c *AuditController) LoginAttempts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	records, err := c.auditService.ListLoginAttempts(ctx, intQuery(q.Get("limit")), intQuery(q.Get("offset")))
	if err != nil {
		composables.UseLogger(ctx).WithError(err).Error("login attempt query failed")
		_ = httpapi.WriteInternalError(w)
		return
	}

	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"data": records})
}

func (c *AuditController) ActiveSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := c.auditService.ListActiveSessions(ctx)
	if err != nil {
		composables.UseLogger(ctx).WithError(err).Error("active session query failed")
		_ = httpapi.WriteInternalError(w)
		return
	}

	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"data": records})
}

func intQuery(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func timeQuery(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
