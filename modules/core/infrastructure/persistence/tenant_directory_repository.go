package persistence

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"github.com/veridian-labs/grc-sdk/modules/core/domain/entities/tenant"
	"github.com/veridian-labs/grc-sdk/modules/core/infrastructure/persistence/models"
	"github.com/veridian-labs/grc-sdk/pkg/composables"
)

const (
	tenantFindQuery = `SELECT id, name, connection_string, is_active, created_at, updated_at FROM tenants`
)

// TenantDirectoryRepository reads the central tenant directory: the one
// table mapping tenant ids to the connection strings of their databases.
// It always runs against the central pool.
type TenantDirectoryRepository struct{}

func NewTenantDirectoryRepository() tenant.Repository {
	return &TenantDirectoryRepository{}
}

func (r *TenantDirectoryRepository) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	query := tenantFindQuery + " WHERE id = $1"
	tenants, err := r.queryTenants(ctx, query, id)
	if err != nil {
		return nil, err
	}

	if len(tenants) == 0 {
		return nil, tenant.ErrNotFound
	}

	return tenants[0], nil
}

func (r *TenantDirectoryRepository) Create(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	query := `
		INSERT INTO tenants (id, name, connection_string, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var id string
	if err := tx.QueryRow(
		ctx,
		query,
		strings.TrimSpace(t.ID()),
		t.Name(),
		t.ConnectionString(),
		t.IsActive(),
		t.CreatedAt(),
		t.UpdatedAt(),
	).Scan(&id); err != nil {
		return nil, errors.Wrap(err, "failed to insert tenant")
	}

	return r.GetByID(ctx, id)
}

func (r *TenantDirectoryRepository) List(ctx context.Context) ([]*tenant.Tenant, error) {
	return r.queryTenants(ctx, tenantFindQuery)
}

func (r *TenantDirectoryRepository) queryTenants(ctx context.Context, query string, args ...interface{}) ([]*tenant.Tenant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.ConnectionString,
			&t.IsActive,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan tenant row")
		}
		tenants = append(tenants, toDomainTenant(&t))
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	return tenants, nil
}

func toDomainTenant(t *models.Tenant) *tenant.Tenant {
	return tenant.New(
		t.ID,
		tenant.WithName(t.Name),
		tenant.WithConnectionString(t.ConnectionString),
		tenant.WithIsActive(t.IsActive),
		tenant.WithCreatedAt(t.CreatedAt),
		tenant.WithUpdatedAt(t.UpdatedAt),
	)
}
