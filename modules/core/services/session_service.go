package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/veridian-labs/grc-sdk/modules/core/domain/entities/session"
	"github.com/veridian-labs/grc-sdk/modules/core/infrastructure/persistence"
	"github.com/veridian-labs/grc-sdk/pkg/composables"
	"github.com/veridian-labs/grc-sdk/pkg/configuration"
	"github.com/veridian-labs/grc-sdk/pkg/eventbus"
	"github.com/veridian-labs/grc-sdk/pkg/tenantdb"
)

const tokenBytes = 24

type SessionService struct {
	repo      session.Repository
	tenants   *tenantdb.Registry
	publisher eventbus.EventBus
}

func NewSessionService(repo session.Repository, tenants *tenantdb.Registry, publisher eventbus.EventBus) *SessionService {
	return &SessionService{
		repo:      repo,
		tenants:   tenants,
		publisher: publisher,
	}
}

// tenantCtx resolves the tenant's pool and scopes the context to it. Every
// session operation goes through here so a token is only ever read or
// written inside its owning tenant's database.
func (s *SessionService) tenantCtx(ctx context.Context, tenantID string) (context.Context, error) {
	pool, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ctx = composables.WithTenantID(ctx, tenantID)
	return composables.WithPool(ctx, pool), nil
}

// Create issues a fresh session for the payload's user in the payload's
// tenant and announces it on the event bus.
func (s *SessionService) Create(ctx context.Context, payload *session.Payload, ip, userAgent string) (*session.Session, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	ctx, err := s.tenantCtx(ctx, payload.TenantID)
	if err != nil {
		return nil, err
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	conf := configuration.Use()
	now := time.Now()
	sess := &session.Session{
		Token:     token,
		TenantID:  payload.TenantID,
		UserID:    payload.UserID,
		Payload:   payload,
		ExpiresAt: now.Add(conf.SessionDuration),
		CreatedAt: now,
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}

	s.publisher.Publish(session.CreatedEvent{
		Result:    *sess,
		IP:        ip,
		UserAgent: userAgent,
	})
	return sess, nil
}

// Get looks a token up in the given tenant. A missing or expired session
// yields (nil, nil): the caller cannot distinguish the two, and an expired
// row is deleted on the way out.
func (s *SessionService) Get(ctx context.Context, tenantID, token string) (*session.Session, error) {
	ctx, err := s.tenantCtx(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, persistence.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if sess.Expired(time.Now()) {
		if err := s.repo.Delete(ctx, token); err != nil {
			return nil, err
		}
		s.publisher.Publish(session.DestroyedEvent{
			Token:    sess.Token,
			TenantID: sess.TenantID,
			UserID:   sess.UserID,
		})
		return nil, nil
	}

	return sess, nil
}

// Destroy deletes the token's session. Destroying a token that no longer
// exists is a no-op, so logout retries are safe.
func (s *SessionService) Destroy(ctx context.Context, tenantID, token string) error {
	ctx, err := s.tenantCtx(ctx, tenantID)
	if err != nil {
		return err
	}

	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, persistence.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	if err := s.repo.Delete(ctx, token); err != nil {
		return err
	}

	s.publisher.Publish(session.DestroyedEvent{
		Token:    sess.Token,
		TenantID: sess.TenantID,
		UserID:   sess.UserID,
	})
	return nil
}

// Cookies returns the paired sid and tid cookies for a session. Both carry
// the same lifetime as the session row; neither is HttpOnly because the
// frontend reads them to decide whether a login screen is needed.
func (s *SessionService) Cookies(sess *session.Session) []*http.Cookie {
	conf := configuration.Use()
	maxAge := int(conf.SessionDuration.Seconds())
	secure := conf.GoAppEnvironment == configuration.Production
	return []*http.Cookie{
		{
			Name:     conf.SidCookieKey,
			Value:    sess.Token,
			Path:     "/",
			MaxAge:   maxAge,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		},
		{
			Name:     conf.TenantCookieKey,
			Value:    sess.TenantID,
			Path:     "/",
			MaxAge:   maxAge,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		},
	}
}

// ExpiredCookies returns the same pair with a negative MaxAge so browsers
// drop them immediately.
func (s *SessionService) ExpiredCookies() []*http.Cookie {
	conf := configuration.Use()
	secure := conf.GoAppEnvironment == configuration.Production
	expired := func(name string) *http.Cookie {
		return &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		}
	}
	return []*http.Cookie{expired(conf.SidCookieKey), expired(conf.TenantCookieKey)}
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "failed to generate session token")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
