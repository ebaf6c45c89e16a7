package composables

import (
	"context"
	"errors"
	"strings"

	"github.com/veridian-labs/grc-sdk/modules/core/domain/entities/session"
	"github.com/veridian-labs/grc-sdk/pkg/constants"
)

var (
	ErrNoTenantID = errors.New("no tenant id found in context")
	ErrNoSession  = errors.New("no session found in context")
)

// WithTenantID returns a new context carrying the resolved tenant id.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, constants.TenantIDKey, tenantID)
}

func UseTenantID(ctx context.Context) (string, error) {
	tenantID, ok := ctx.Value(constants.TenantIDKey).(string)
	if !ok || strings.TrimSpace(tenantID) == "" {
		return "", ErrNoTenantID
	}
	return tenantID, nil
}

// WithSession returns a new context carrying the validated session payload.
func WithSession(ctx context.Context, payload *session.Payload) context.Context {
	return context.WithValue(ctx, constants.SessionKey, payload)
}

func UseSession(ctx context.Context) (*session.Payload, error) {
	payload, ok := ctx.Value(constants.SessionKey).(*session.Payload)
	if !ok || payload == nil {
		return nil, ErrNoSession
	}
	return payload, nil
}

// UseUserID returns the acting user id from the session payload.
func UseUserID(ctx context.Context) (string, error) {
	payload, err := UseSession(ctx)
	if err != nil {
		return "", err
	}
	return payload.UserID, nil
}
