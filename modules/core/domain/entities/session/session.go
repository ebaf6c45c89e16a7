package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/veridian-labs/grc-sdk/pkg/constants"
)

// PayloadVersion is the current shape of the session payload. Older
// payloads with no version field are treated as version 1.
const PayloadVersion = 1

var ErrInvalidPayload = errors.New("invalid session payload")

// Payload is the typed core of a session. The upstream gateway asserts it
// per request; it is also what gets serialized into the sessions table on
// login. Extra carries forward-compatible fields without loosening the
// typed core.
type Payload struct {
	Version  int                        `json:"version"`
	UserID   string                     `json:"user_id" validate:"required"`
	TenantID string                     `json:"tenant_id" validate:"required"`
	Email    string                     `json:"email"`
	Roles    []string                   `json:"roles,omitempty"`
	Extra    map[string]json.RawMessage `json:"extra,omitempty"`
}

// Validate checks the payload shape. It runs on every read, never only at
// write time: the blob crosses a trust boundary.
func (p *Payload) Validate() error {
	if p == nil {
		return ErrInvalidPayload
	}
	if p.Version == 0 {
		p.Version = 1
	}
	if p.Version != PayloadVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidPayload, p.Version)
	}
	if err := constants.Validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// ParsePayload decodes and validates a JSON-encoded session payload.
func ParsePayload(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Session is a tenant-scoped row in the tenant's own sessions table. The
// token alone means nothing: it must always be paired with the owning
// tenant id.
type Session struct {
	Token     string
	TenantID  string
	UserID    string
	Payload   *Payload
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// CreatedEvent is published after a session row is inserted. The audit
// module mirrors it into the security monitoring tables.
type CreatedEvent struct {
	Result    Session
	IP        string
	UserAgent string
}

// DestroyedEvent is published after a session row is deleted, either by
// logout or by lazy expiry.
type DestroyedEvent struct {
	Token    string
	TenantID string
	UserID   string
}

// LoginAttemptedEvent is published for every login call, successful or not.
// Failures carry a short machine-readable reason.
type LoginAttemptedEvent struct {
	TenantID  string
	UserID    string
	Email     string
	IP        string
	UserAgent string
	Success   bool
	Reason    string
}

type Repository interface {
	Create(ctx context.Context, sess *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
}
