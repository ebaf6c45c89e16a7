package tenant

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Repository implementations when no directory
// row exists for the given tenant id.
var ErrNotFound = errors.New("tenant not found")

// Tenant is a row in the central directory: a tenant id mapped to the
// connection string of that tenant's own database.
type Tenant struct {
	id               string
	name             string
	connectionString string
	isActive         bool
	createdAt        time.Time
	updatedAt        time.Time
}

type Option func(*Tenant)

func WithName(name string) Option {
	return func(t *Tenant) {
		t.name = name
	}
}

func WithConnectionString(cs string) Option {
	return func(t *Tenant) {
		t.connectionString = cs
	}
}

func WithIsActive(isActive bool) Option {
	return func(t *Tenant) {
		t.isActive = isActive
	}
}

func WithCreatedAt(createdAt time.Time) Option {
	return func(t *Tenant) {
		t.createdAt = createdAt
	}
}

func WithUpdatedAt(updatedAt time.Time) Option {
	return func(t *Tenant) {
		t.updatedAt = updatedAt
	}
}

func New(id string, opts ...Option) *Tenant {
	t := &Tenant{
		id:        id,
		isActive:  true,
		createdAt: time.Now(),
		updatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tenant) ID() string {
	return t.id
}

func (t *Tenant) Name() string {
	return t.name
}

func (t *Tenant) ConnectionString() string {
	return t.connectionString
}

func (t *Tenant) IsActive() bool {
	return t.isActive
}

func (t *Tenant) CreatedAt() time.Time {
	return t.createdAt
}

func (t *Tenant) UpdatedAt() time.Time {
	return t.updatedAt
}

type Repository interface {
	GetByID(ctx context.Context, id string) (*Tenant, error)
	Create(ctx context.Context, t *Tenant) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
}
