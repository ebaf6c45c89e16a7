package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/veridian-labs/grc-sdk/modules/core/domain/entities/session"
	"github.com/veridian-labs/grc-sdk/modules/core/domain/entities/tenant"
	"github.com/veridian-labs/grc-sdk/modules/core/infrastructure/persistence"
	"github.com/veridian-labs/grc-sdk/modules/core/services"
	"github.com/veridian-labs/grc-sdk/pkg/application"
	"github.com/veridian-labs/grc-sdk/pkg/composables"
	"github.com/veridian-labs/grc-sdk/pkg/configuration"
	"github.com/veridian-labs/grc-sdk/pkg/eventbus"
	"github.com/veridian-labs/grc-sdk/pkg/repo"
	"github.com/veridian-labs/grc-sdk/pkg/tenantdb"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "grc-auth-controller")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)
	os.Setenv("LOG_PATH", filepath.Join(dir, "app.log"))
	os.Exit(m.Run())
}

type fakePool struct{}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (f *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePool) Close() {}

type fakeDirectory struct {
	tenants map[string]*tenant.Tenant
}

func (d *fakeDirectory) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	t, ok := d.tenants[id]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	return t, nil
}

func (d *fakeDirectory) Create(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	d.tenants[t.ID()] = t
	return t, nil
}

func (d *fakeDirectory) List(ctx context.Context) ([]*tenant.Tenant, error) {
	out := make([]*tenant.Tenant, 0, len(d.tenants))
	for _, t := range d.tenants {
		out = append(out, t)
	}
	return out, nil
}

type memorySessionRepo struct {
	mu   sync.Mutex
	rows map[string]map[string]session.Session
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{rows: make(map[string]map[string]session.Session)}
}

func (r *memorySessionRepo) Create(ctx context.Context, sess *session.Session) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows[tenantID] == nil {
		r.rows[tenantID] = make(map[string]session.Session)
	}
	r.rows[tenantID][sess.Token] = *sess
	return nil
}

func (r *memorySessionRepo) GetByToken(ctx context.Context, token string) (*session.Session, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.rows[tenantID][token]
	if !ok {
		return nil, persistence.ErrSessionNotFound
	}
	out := sess
	return &out, nil
}

func (r *memorySessionRepo) Delete(ctx context.Context, token string) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows[tenantID], token)
	return nil
}

func (r *memorySessionRepo) count(tenantID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows[tenantID])
}

func newTestApp(store session.Repository) application.Application {
	dir := &fakeDirectory{tenants: map[string]*tenant.Tenant{
		"acme": tenant.New("acme", tenant.WithConnectionString("dsn-acme")),
	}}
	registry := tenantdb.New(&fakePool{}, dir, tenantdb.WithOpener(
		func(ctx context.Context, connString string) (repo.Pool, error) {
			return &fakePool{}, nil
		},
	))
	logger := logrus.New()
	app := application.New(&application.ApplicationOptions{
		Pool:     &fakePool{},
		Registry: registry,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	app.RegisterServices(services.NewSessionService(store, registry, app.EventPublisher()))
	return app
}

func newAuthRouter(app application.Application) *mux.Router {
	r := mux.NewRouter()
	NewAuthController(app).Register(r)
	return r
}

func doLogin(t *testing.T, router *mux.Router, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthController_Login_CreatesSessionAndSetsCookies(t *testing.T) {
	store := newMemorySessionRepo()
	app := newTestApp(store)

	var attempts []session.LoginAttemptedEvent
	app.EventPublisher().Subscribe(func(e session.LoginAttemptedEvent) {
		attempts = append(attempts, e)
	})
	var created []session.CreatedEvent
	app.EventPublisher().Subscribe(func(e session.CreatedEvent) {
		created = append(created, e)
	})

	rec := doLogin(t, newAuthRouter(app), LoginDTO{
		TenantID: "acme",
		UserID:   "u1",
		Email:    "user@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token     string    `json:"token"`
		TenantID  string    `json:"tenant_id"`
		UserID    string    `json:"user_id"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	require.Equal(t, "acme", resp.TenantID)
	require.Equal(t, "u1", resp.UserID)
	require.True(t, resp.ExpiresAt.After(time.Now()))

	conf := configuration.Use()
	cookies := rec.Result().Cookies()
	byName := map[string]*http.Cookie{}
	for _, c := range cookies {
		byName[c.Name] = c
	}
	require.Equal(t, resp.Token, byName[conf.SidCookieKey].Value)
	require.Equal(t, "acme", byName[conf.TenantCookieKey].Value)

	require.Equal(t, 1, store.count("acme"))
	require.Len(t, created, 1)
	require.Len(t, attempts, 1)
	require.True(t, attempts[0].Success)
	require.Equal(t, "u1", attempts[0].UserID)
}

func TestAuthController_Login_RejectsMissingUser(t *testing.T) {
	store := newMemorySessionRepo()
	app := newTestApp(store)

	var attempts []session.LoginAttemptedEvent
	app.EventPublisher().Subscribe(func(e session.LoginAttemptedEvent) {
		attempts = append(attempts, e)
	})

	rec := doLogin(t, newAuthRouter(app), LoginDTO{TenantID: "acme"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 0, store.count("acme"))
	require.Len(t, attempts, 1)
	require.False(t, attempts[0].Success)
}

func TestAuthController_Login_UnknownTenantLooksLikeBadRequest(t *testing.T) {
	app := newTestApp(newMemorySessionRepo())
	router := newAuthRouter(app)

	unknown := doLogin(t, router, LoginDTO{TenantID: "ghost", UserID: "u1"})
	malformed := doLogin(t, router, LoginDTO{TenantID: "acme"})

	require.Equal(t, http.StatusBadRequest, unknown.Code)
	// Indistinguishable from a malformed payload.
	require.JSONEq(t, malformed.Body.String(), unknown.Body.String())
}

func TestAuthController_Logout_DestroysSessionAndClearsCookies(t *testing.T) {
	store := newMemorySessionRepo()
	app := newTestApp(store)
	router := newAuthRouter(app)

	var destroyed []session.DestroyedEvent
	app.EventPublisher().Subscribe(func(e session.DestroyedEvent) {
		destroyed = append(destroyed, e)
	})

	login := doLogin(t, router, LoginDTO{TenantID: "acme", UserID: "u1"})
	require.Equal(t, http.StatusOK, login.Code)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 0, store.count("acme"))
	require.Len(t, destroyed, 1)
	for _, c := range rec.Result().Cookies() {
		require.Negative(t, c.MaxAge)
	}
}

func TestAuthController_Logout_WithoutCookiesStillClears(t *testing.T) {
	app := newTestApp(newMemorySessionRepo())
	router := newAuthRouter(app)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, rec.Result().Cookies(), 2)
	for _, c := range rec.Result().Cookies() {
		require.Negative(t, c.MaxAge)
	}
}

func TestAuthController_Login_RateLimited(t *testing.T) {
	app := newTestApp(newMemorySessionRepo())
	router := newAuthRouter(app)
	conf := configuration.Use()

	var last int
	for i := 0; i < conf.RateLimit.LoginPerMinute+1; i++ {
		rec := doLogin(t, router, LoginDTO{TenantID: "acme", UserID: "u1"})
		last = rec.Code
	}
	require.Equal(t, http.StatusTooManyRequests, last)
}
