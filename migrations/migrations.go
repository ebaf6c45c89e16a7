// Package migrations owns the central database schema: the tenant
// directory and the security monitoring tables. Tenant databases are not
// migrated from here; their tables are provisioned lazily by the
// repositories that own them.
package migrations

import (
	"context"
	"database/sql"
	"embed"

	"github.com/go-faster/errors"
	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var migrationFiles embed.FS

// Up applies all pending central migrations. Runs at startup before the
// HTTP server accepts traffic.
func Up(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "failed to set migration dialect")
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return errors.Wrap(err, "failed to apply central migrations")
	}
	return nil
}
