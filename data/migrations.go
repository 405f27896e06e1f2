package data

import (
	"database/sql"
	"embed"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

// RunMigrations applies the embedded migrations; startup aborts on failure.
func RunMigrations(db *sql.DB, fs embed.FS) error {
	goose.SetBaseFS(fs)

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set migration dialect")
	}

	if err := goose.Up(db, "data/migrations"); err != nil {
		return errors.Wrap(err, "apply migrations")
	}

	return nil
}
