package db

import (
	"embed"
	"fmt"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Source returns the embedded schema migrations.
func Source() (source.Driver, error) {
	return iofs.New(migrationsFS, "migrations")
}

// NewMigrator opens a migrator for the embedded schema against databaseURL.
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := Source()
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, MigrateURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("open migrator: %w", err)
	}
	return m, nil
}

// MigrateURL rewrites a postgres:// connection string to the pgx5:// scheme
// understood by the migrate driver.
func MigrateURL(databaseURL string) string {
	trimmed := strings.TrimSpace(databaseURL)
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(trimmed, prefix) {
			return "pgx5://" + strings.TrimPrefix(trimmed, prefix)
		}
	}
	return trimmed
}
