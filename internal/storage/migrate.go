package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

var (
	//go:embed migrations/*.sql
	migrationsFS embed.FS

	//go:embed asset_migrations/*.sql
	assetMigrationsFS embed.FS
)

type migrationSource struct {
	fsys embed.FS
	dir  string
}

var (
	ledgerSchema = migrationSource{migrationsFS, "migrations"}
	assetSchema  = migrationSource{assetMigrationsFS, "asset_migrations"}
)

// RunMigrations brings the ledger schema at dbPath up to the latest version.
func RunMigrations(dbPath string) error {
	return migrateUp(dbPath, ledgerSchema)
}

// RunAssetMigrations brings the asset bank schema at dbPath up to date.
func RunAssetMigrations(dbPath string) error {
	return migrateUp(dbPath, assetSchema)
}

func migrateUp(dbPath string, src migrationSource) error {
	return withMigrator(dbPath, src, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("run migrations: %w", err)
		}
		return nil
	})
}

// MigrationVersion reports the applied schema version and whether the last
// migration left the database dirty.
func MigrationVersion(dbPath string) (version uint, dirty bool, err error) {
	err = withMigrator(dbPath, ledgerSchema, func(m *migrate.Migrate) error {
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

func withMigrator(dbPath string, src migrationSource, fn func(m *migrate.Migrate) error) error {
	// Separate connection so the migrator can close it without touching the
	// repository's pool.
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	d, err := iofs.New(src.fsys, src.dir)
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	return fn(m)
}
