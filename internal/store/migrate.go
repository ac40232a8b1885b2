package store

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies all pending migrations. Schema evolution is forward-only:
// there are no down files, and destructive changes ship as later additive
// migrations. Safe to run from both binaries; the migrate lock serializes.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}
	// Route through the pgx/v5 migrate driver regardless of the URL scheme
	// the DSN arrived with.
	if rest, ok := strings.CutPrefix(dsn, "postgresql://"); ok {
		dsn = "pgx5://" + rest
	} else if rest, ok := strings.CutPrefix(dsn, "postgres://"); ok {
		dsn = "pgx5://" + rest
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("store: migrate init: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}
