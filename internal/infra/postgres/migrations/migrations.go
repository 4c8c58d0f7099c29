package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations holds every schema change, applied in file-name order.
var Migrations = migrate.NewMigrations()

// execSQL runs an embedded script as one migration step.
func execSQL(script string) migrate.MigrationFunc {
	return func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, script)
		return err
	}
}
