// Package tenantdb resolves tenant ids to long-lived database handles.
// Every tenant owns its own database; the central directory only stores the
// mapping. The registry is constructed once at process start and passed by
// reference into the request path.
package tenantdb

import (
	"context"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridian-labs/grc-sdk/modules/core/domain/entities/tenant"
	"github.com/veridian-labs/grc-sdk/pkg/composables"
	"github.com/veridian-labs/grc-sdk/pkg/repo"
)

var (
	ErrInvalidTenant  = errors.New("invalid tenant id")
	ErrTenantNotFound = errors.New("tenant not found in directory")
)

// Opener constructs a connection handle from a connection string.
// Injectable so tests can count constructions.
type Opener func(ctx context.Context, connString string) (repo.Pool, error)

// PgxOpener is the production opener. pgxpool connects lazily, so opening
// a handle does not block on the tenant database being reachable.
func PgxOpener(ctx context.Context, connString string) (repo.Pool, error) {
	return pgxpool.New(ctx, connString)
}

type entry struct {
	once sync.Once
	pool repo.Pool
	err  error
}

type Registry struct {
	central   repo.Pool
	directory tenant.Repository
	open      Opener

	mu      sync.Mutex
	entries map[string]*entry
}

type Option func(*Registry)

func WithOpener(open Opener) Option {
	return func(r *Registry) {
		r.open = open
	}
}

// New builds a registry over the central directory pool. The directory
// repository is queried once per tenant per process lifetime; resolved
// handles are memoized until Close.
func New(central repo.Pool, directory tenant.Repository, opts ...Option) *Registry {
	r := &Registry{
		central:   central,
		directory: directory,
		open:      PgxOpener,
		entries:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the connection handle for the given tenant, opening it on
// first use. Concurrent first resolutions of the same id converge on a
// single opener call; a failed construction is evicted so a later call can
// retry.
func (r *Registry) Resolve(ctx context.Context, tenantID string) (repo.Pool, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrInvalidTenant
	}

	r.mu.Lock()
	e, ok := r.entries[tenantID]
	if !ok {
		e = &entry{}
		r.entries[tenantID] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.pool, e.err = r.connect(ctx, tenantID)
	})
	if e.err != nil {
		r.mu.Lock()
		if r.entries[tenantID] == e {
			delete(r.entries, tenantID)
		}
		r.mu.Unlock()
		return nil, e.err
	}
	return e.pool, nil
}

func (r *Registry) connect(ctx context.Context, tenantID string) (repo.Pool, error) {
	t, err := r.directory.GetByID(composables.WithPool(ctx, r.central), tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, errors.Wrap(err, "failed to look up tenant directory")
	}
	// A disabled tenant resolves the same as a missing one; callers learn
	// nothing about its existence.
	if !t.IsActive() {
		return nil, ErrTenantNotFound
	}

	pool, err := r.open(ctx, t.ConnectionString())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open tenant pool")
	}
	return pool, nil
}

// Close closes every memoized handle. Called once on process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if e.pool != nil {
			e.pool.Close()
		}
		delete(r.entries, id)
	}
}
