package storage

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/portfolio-reconciler/internal/logging"
)

// Migrator applies the token registry schema from versioned SQL files.
// One instance wraps one source/database pair; callers Close it when done.
type Migrator struct {
	m      *migrate.Migrate
	logger *logging.Logger
}

// NewMigrator opens the migration source directory against the database.
func NewMigrator(databaseURL, sourcePath string) (*Migrator, error) {
	m, err := migrate.New(fmt.Sprintf("file://%s", sourcePath), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source %s: %w", sourcePath, err)
	}

	return &Migrator{
		m:      m,
		logger: logging.GetGlobalLogger().WithField("component", "migrator"),
	}, nil
}

// Up applies every pending migration. Already up to date is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			mg.logger.Info("Schema already up to date")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	mg.logger.WithFields(map[string]interface{}{
		"version": version,
		"dirty":   dirty,
	}).Info("Migrations applied")
	return nil
}

// Down rolls back the most recent migration.
func (mg *Migrator) Down() error {
	if err := mg.m.Steps(-1); err != nil {
		if err == migrate.ErrNoChange {
			mg.logger.Info("Nothing to roll back")
			return nil
		}
		return fmt.Errorf("failed to roll back migration: %w", err)
	}

	mg.logger.Info("Rolled back one migration")
	return nil
}

// Version reports the current schema version. A fresh database reports
// version zero, not an error.
func (mg *Migrator) Version() (uint, bool, error) {
	version, dirty, err := mg.m.Version()
	if err != nil {
		if err == migrate.ErrNilVersion {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, dirty, nil
}

// Close releases the source and database handles.
func (mg *Migrator) Close() error {
	sourceErr, dbErr := mg.m.Close()
	if sourceErr != nil {
		return sourceErr
	}
	return dbErr
}
