package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/mux"

	"github.com/veridian-labs/grc-sdk/modules/core/domain/entities/session"
	"github.com/veridian-labs/grc-sdk/modules/core/services"
	"github.com/veridian-labs/grc-sdk/pkg/application"
	"github.com/veridian-labs/grc-sdk/pkg/composables"
	"github.com/veridian-labs/grc-sdk/pkg/configuration"
	"github.com/veridian-labs/grc-sdk/pkg/httpapi"
	"github.com/veridian-labs/grc-sdk/pkg/middleware"
	"github.com/veridian-labs/grc-sdk/pkg/tenantdb"
)

// LoginDTO is the identity asserted by the upstream gateway. Credential
// verification happened before this service was reached; login here means
// minting a session for an already-authenticated user.
type LoginDTO struct {
	TenantID string   `json:"tenant_id"`
	UserID   string   `json:"user_id"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles,omitempty"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewAuthController(app application.Application) application.Controller {
	return &AuthController{
		app:            app,
		sessionService: app.Service(services.SessionService{}).(*services.SessionService),
	}
}

type AuthController struct {
	app            application.Application
	sessionService *services.SessionService
}

func (c *AuthController) Key() string {
	return "/login"
}

func (c *AuthController) Register(r *mux.Router) {
	conf := configuration.Use()

	loginRouter := r.PathPrefix("/login").Subrouter()
	if conf.RateLimit.Enabled {
		loginRouter.Use(middleware.IPRateLimitPeriod(int64(conf.RateLimit.LoginPerMinute), time.Minute))
	}
	loginRouter.HandleFunc("", c.Login).Methods(http.MethodPost)

	r.HandleFunc("/logout", c.Logout).Methods(http.MethodPost)
}

func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := composables.UseLogger(ctx)
	ip, ua := clientMeta(r)

	var dto LoginDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		c.recordAttempt(&dto, ip, ua, false, "malformed body")
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid login request", nil)
		return
	}

	payload := &session.Payload{
		Version:  session.PayloadVersion,
		UserID:   dto.UserID,
		TenantID: dto.TenantID,
		Email:    dto.Email,
		Roles:    dto.Roles,
	}

	sess, err := c.sessionService.Create(ctx, payload, ip, ua)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidPayload):
			c.recordAttempt(&dto, ip, ua, false, "invalid payload")
			_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid login request", nil)
		case errors.Is(err, tenantdb.ErrTenantNotFound), errors.Is(err, tenantdb.ErrInvalidTenant):
			// Same response as a malformed payload: login must not confirm
			// which tenants exist.
			c.recordAttempt(&dto, ip, ua, false, "unknown tenant")
			_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid login request", nil)
		default:
			logger.WithError(err).Error("login failed")
			c.recordAttempt(&dto, ip, ua, false, "internal error")
			_ = httpapi.WriteInternalError(w)
		}
		return
	}

	for _, cookie := range c.sessionService.Cookies(sess) {
		http.SetCookie(w, cookie)
	}
	c.recordAttempt(&dto, ip, ua, true, "")

	_ = httpapi.WriteJSON(w, http.StatusOK, &loginResponse{
		Token:     sess.Token,
		TenantID:  sess.TenantID,
		UserID:    sess.UserID,
		ExpiresAt: sess.ExpiresAt,
	})
}

// Logout destroys the session named by the sid/tid cookie pair. It always
// clears the cookies and always answers 204: a stale or absent session is
// not an error the client can act on.
func (c *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := composables.UseLogger(ctx)
	conf := configuration.Use()

	defer func() {
		for _, cookie := range c.sessionService.ExpiredCookies() {
			http.SetCookie(w, cookie)
		}
		w.WriteHeader(http.StatusNoContent)
	}()

	sid, err := r.Cookie(conf.SidCookieKey)
	if err != nil {
		return
	}
	tid, err := r.Cookie(conf.TenantCookieKey)
	if err != nil {
		return
	}

	if err := c.sessionService.Destroy(ctx, tid.Value, sid.Value); err != nil {
		logger.WithError(err).Warn("logout: session destroy failed")
	}
}

func (c *AuthController) recordAttempt(dto *LoginDTO, ip, ua string, success bool, reason string) {
	c.app.EventPublisher().Publish(session.LoginAttemptedEvent{
		TenantID:  dto.TenantID,
		UserID:    dto.UserID,
		Email:     dto.Email,
		IP:        ip,
		UserAgent: ua,
		Success:   success,
		Reason:    reason,
	})
}

func clientMeta(r *http.Request) (string, string) {
	ctx := r.Context()
	ip, ok := composables.UseIP(ctx)
	if !ok || ip == "" {
		ip = r.RemoteAddr
	}
	ua, ok := composables.UseUserAgent(ctx)
	if !ok || ua == "" {
		ua = r.UserAgent()
	}
	return ip, ua
}
