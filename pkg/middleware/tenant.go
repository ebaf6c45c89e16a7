package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/veridian-labs/grc-sdk/modules/core/domain/entities/session"
	"github.com/veridian-labs/grc-sdk/pkg/composables"
	"github.com/veridian-labs/grc-sdk/pkg/configuration"
	"github.com/veridian-labs/grc-sdk/pkg/httpapi"
	"github.com/veridian-labs/grc-sdk/pkg/tenantdb"
)

// TenantContextOptions configures the request context resolver.
type TenantContextOptions struct {
	// AuthPaths are endpoints that run with an anonymous context: no tenant
	// is required yet and both session cookies are cleared.
	AuthPaths []string
}

func DefaultTenantContextOptions() TenantContextOptions {
	return TenantContextOptions{
		AuthPaths: []string{"/login", "/logout"},
	}
}

// RequireTenantContext derives the per-request tenant context: tenant pool
// from the tenant header, acting user from the gateway-asserted session
// payload header. Any failure ends the request with a generic internal
// error before the wrapped handler runs.
//
// Trust boundary: the payload header is accepted as pre-authenticated.
// When GATEWAY_HMAC_SECRET is set, the signature header is verified here;
// without it, the deployment must guarantee the header cannot be forged by
// the eventual caller (internal-only hop behind the gateway).
func RequireTenantContext(registry *tenantdb.Registry, opts TenantContextOptions) mux.MiddlewareFunc {
	conf := configuration.Use()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isAuthPath(r.URL.Path, opts.AuthPaths) {
				clearSessionCookies(w, conf)
				next.ServeHTTP(w, r)
				return
			}

			logger := composables.UseLogger(r.Context())

			// Fail closed: the handler must never observe a request whose
			// tenant could not be resolved.
			defer func() {
				if recovered := recover(); recovered != nil {
					logger.WithField("panic", recovered).Error("tenant context resolution panicked")
					_ = httpapi.WriteInternalError(w)
				}
			}()

			tenantID := strings.TrimSpace(r.Header.Get(conf.TenantHeader))
			if tenantID == "" {
				logger.Warn("missing tenant header")
				_ = httpapi.WriteInternalError(w)
				return
			}

			pool, err := registry.Resolve(r.Context(), tenantID)
			if err != nil {
				logger.WithError(err).WithField("tenant", tenantID).Warn("failed to resolve tenant")
				_ = httpapi.WriteInternalError(w)
				return
			}

			raw := r.Header.Get(conf.SessionPayloadHeader)
			if raw == "" {
				logger.Warn("missing session payload header")
				_ = httpapi.WriteInternalError(w)
				return
			}

			if conf.GatewayHMACSecret != "" {
				if !verifySignature(raw, r.Header.Get(conf.SignatureHeader), conf.GatewayHMACSecret) {
					logger.Warn("session payload signature mismatch")
					_ = httpapi.WriteInternalError(w)
					return
				}
			}

			payload, err := session.ParsePayload([]byte(raw))
			if err != nil {
				logger.WithError(err).Warn("malformed session payload")
				_ = httpapi.WriteInternalError(w)
				return
			}

			// The tenant header is authoritative for tenant selection; the
			// payload's tenant id records who the gateway authenticated
			// against, not which database this request touches.
			ctx := composables.WithTenantID(r.Context(), tenantID)
			ctx = composables.WithPool(ctx, pool)
			ctx = composables.WithSession(ctx, payload)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isAuthPath(path string, authPaths []string) bool {
	for _, p := range authPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func verifySignature(payload, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func clearSessionCookies(w http.ResponseWriter, conf *configuration.Configuration) {
	for _, name := range []string{conf.SidCookieKey, conf.TenantCookieKey} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
