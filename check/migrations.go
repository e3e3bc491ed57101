package check

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
)

// Migrations reports DOWN while the migration directory holds versions newer than
// the one recorded in the database.
func Migrations(db *sql.DB, dir, dialect string) Check {
	return Func(func(ctx context.Context) error {
		if err := goose.SetDialect(dialect); err != nil {
			return fmt.Errorf("unsupported migrations dialect: %w", err)
		}

		migrations, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
		if errors.Is(err, goose.ErrNoMigrationFiles) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("unable to collect migrations: %w", err)
		}

		current, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("unable to read database version: %w", err)
		}

		pending := 0
		var latest int64
		for _, m := range migrations {
			if m.Version > current {
				pending++
			}
			if m.Version > latest {
				latest = m.Version
			}
		}

		if pending > 0 {
			return fmt.Errorf("%d unapplied migration(s): database at version %d, latest is %d", pending, current, latest)
		}

		return nil
	})
}

// GooseDialect maps a database driver name to the goose dialect name.
func GooseDialect(driver string) string {
	switch driver {
	case "sqlite":
		return "sqlite3"
	default:
		return driver
	}
}
