package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratelite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// newMigrate builds a migrator over the store's own connection pool. The
// returned release function must be called when done. It frees the
// connection the Postgres driver pins and leaves the pool open.
func (s *Store) newMigrate() (*migrate.Migrate, func(), error) {
	src, err := iofs.New(migrationsFS, "migrations/"+s.driverName)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: migrations source: %w", err)
	}

	var driver database.Driver
	release := func() { src.Close() }
	switch s.driverName {
	case DriverPostgres:
		var conn *sql.Conn
		conn, err = s.db.Conn(context.Background())
		if err != nil {
			src.Close()
			return nil, nil, fmt.Errorf("sqlstore: migrations conn: %w", err)
		}
		// A driver built from a single connection closes only that
		// connection.
		driver, err = migratepg.WithConnection(context.Background(), conn, &migratepg.Config{})
		if err != nil {
			conn.Close()
		}
	case DriverSQLite:
		// Closing this driver would close the pool, so only the source is
		// released.
		driver, err = migratelite.WithInstance(s.db, &migratelite.Config{})
	}
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("sqlstore: migrations driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.driverName, driver)
	if err != nil {
		src.Close()
		if s.driverName == DriverPostgres {
			driver.Close()
		}
		return nil, nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	if s.driverName == DriverPostgres {
		release = func() { m.Close() }
	}
	return m, release, nil
}

// Migrate applies every pending up migration.
func (s *Store) Migrate() error {
	m, release, err := s.newMigrate()
	if err != nil {
		return err
	}
	defer release()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlstore: migrate up: %w", err)
	}
	return nil
}

// MigrateDown reverts every applied migration.
func (s *Store) MigrateDown() error {
	m, release, err := s.newMigrate()
	if err != nil {
		return err
	}
	defer release()
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlstore: migrate down: %w", err)
	}
	return nil
}

// MigrationVersion reports the current schema version. A database with no
// migrations applied returns version 0.
func (s *Store) MigrationVersion() (version uint, dirty bool, err error) {
	m, release, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	defer release()
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlstore: migrate version: %w", err)
	}
	return version, dirty, nil
}
