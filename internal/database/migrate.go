package database

import (
	"context"
	"fmt"
	"log/slog"

	"egaku/internal/database/migrations"
	"egaku/internal/middleware"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

// NewMigrationProvider builds a goose provider over db for driver.
// Only the registered Go migrations are used; no migration files are read from disk.
func NewMigrationProvider(db *gorm.DB, driver string) (*goose.Provider, error) {
	dialect, err := migrations.GooseDialect(driver)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql.DB: %w", err)
	}
	return goose.NewProvider(dialect, sqlDB, nil,
		goose.WithGoMigrations(migrations.GoMigrations(driver)...),
		goose.WithDisableGlobalRegistry(true),
	)
}

// MigrateUp applies every pending migration and returns the versions it applied.
func MigrateUp(ctx context.Context, db *gorm.DB, driver string) ([]int64, error) {
	p, err := NewMigrationProvider(db, driver)
	if err != nil {
		return nil, err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return nil, err
	}
	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
		middleware.Logger.InfoContext(ctx, "migration applied",
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration),
		)
	}
	return applied, nil
}

// MigrateDown rolls back the most recent migration and returns its version.
func MigrateDown(ctx context.Context, db *gorm.DB, driver string) (int64, error) {
	p, err := NewMigrationProvider(db, driver)
	if err != nil {
		return 0, err
	}
	r, err := p.Down(ctx)
	if err != nil {
		return 0, err
	}
	return r.Source.Version, nil
}

// MigrationState is one row of the migrate status report.
type MigrationState struct {
	Version int64
	Applied bool
}

// MigrationStatus reports every known migration and whether it is applied.
func MigrationStatus(ctx context.Context, db *gorm.DB, driver string) ([]MigrationState, error) {
	p, err := NewMigrationProvider(db, driver)
	if err != nil {
		return nil, err
	}
	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationState, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationState{
			Version: s.Source.Version,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}
