// Package migration runs schema migrations with golang-migrate.
package migration

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/emissor/backend/internal/infrastructure/config"
)

// Runner applies SQL migrations from a source directory
type Runner struct {
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// NewRunner opens the database and prepares the migration source
func NewRunner(cfg *config.DatabaseConfig, sourcePath string, logger *zap.Logger) (*Runner, error) {
	db, err := sql.Open("postgres", cfg.MigrateURL())
	if err != nil {
		return nil, fmt.Errorf("opening migration connection: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+sourcePath, cfg.DBName, driver)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return &Runner{migrate: m, logger: logger.Named("migration")}, nil
}

// Up applies all pending migrations
func (r *Runner) Up() error {
	if err := r.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info("schema is up to date")
			return nil
		}
		return err
	}
	r.logger.Info("migrations applied")
	return nil
}

// Down rolls back the most recent migration
func (r *Runner) Down() error {
	if err := r.migrate.Steps(-1); err != nil {
		return err
	}
	r.logger.Info("rolled back one migration")
	return nil
}

// Version reports the current schema version
func (r *Runner) Version() (uint, bool, error) {
	version, dirty, err := r.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close releases the migrator resources
func (r *Runner) Close() error {
	sourceErr, dbErr := r.migrate.Close()
	if sourceErr != nil {
		return sourceErr
	}
	return dbErr
}
