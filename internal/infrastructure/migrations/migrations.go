// Package migrations provides database migration support for the decision journal.
//
// Migrations are embedded SQL files applied with golang-migrate through its stock
// pure-Go SQLite driver, which shares the modernc.org/sqlite engine the journal opens.
//
// Usage:
//
//	db, _ := sql.Open("sqlite", "file:path/to/stagehook.db")
//	err := migrations.RunMigrations(db)
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// DriverName is the database name passed to golang-migrate.
const DriverName = "sqlite"

//go:embed *.sql
var embeddedMigrationsFS embed.FS

// MigrationsFS returns the embedded filesystem containing migration SQL files.
// This can be used for testing or custom migration scenarios.
func MigrationsFS() fs.FS {
	return embeddedMigrationsFS
}

// NewMigrator builds a migrate instance over db with the embedded migrations.
func NewMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(embeddedMigrationsFS, ".")
	if err != nil {
		return nil, fmt.Errorf("loading embedded migrations: %w", err)
	}

	driver, err := WithInstance(db)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithInstance("iofs", source, DriverName, driver)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// WithInstance wraps an open connection in golang-migrate's SQLite driver.
func WithInstance(db *sql.DB) (database.Driver, error) {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating migration driver: %w", err)
	}
	return driver, nil
}

// RunMigrations applies all pending database migrations to the provided database.
//
// The function handles migrate.ErrNoChange gracefully - if all migrations have
// already been applied, it returns nil rather than an error.
func RunMigrations(db *sql.DB) error {
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil {
		// ErrNoChange means all migrations already applied - not an error
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return err
	}

	return nil
}
