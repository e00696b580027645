package migration

import (
	"context"

	"goamcc/internal"
	"goamcc/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
	logger  *internal.Logger
}

// NewRunner creates a new migration runner
func NewRunner(logger *internal.Logger) *MigrationRunner {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &MigrationRunner{
		version: "1.0.0",
		logger:  logger.Named("migration"),
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createRunsTable(ctx, db); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to create amcc_runs table"))
	}

	if err := r.createOutcomesTable(ctx, db); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to create amcc_outcomes table"))
	}

	r.createIndexes(ctx, db)
	r.logger.Info("[Migration] schema %s applied", r.version)
	return nil
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS amcc_runs (
			id VARCHAR(64) PRIMARY KEY,
			fingerprint VARCHAR(64) NOT NULL,
			data_path TEXT NOT NULL,
			instances INTEGER NOT NULL DEFAULT 0,
			successes INTEGER NOT NULL DEFAULT 0,
			failures INTEGER NOT NULL DEFAULT 0,
			timeouts INTEGER NOT NULL DEFAULT 0,
			success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			mean_time DOUBLE PRECISION NOT NULL DEFAULT 0,
			median_time DOUBLE PRECISION NOT NULL DEFAULT 0,
			p95_time DOUBLE PRECISION NOT NULL DEFAULT 0,
			mean_changes DOUBLE PRECISION NOT NULL DEFAULT 0,
			started_at TIMESTAMP WITH TIME ZONE NOT NULL,
			completed_at TIMESTAMP WITH TIME ZONE NOT NULL,
			report JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createOutcomesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS amcc_outcomes (
			run_id VARCHAR(64) NOT NULL REFERENCES amcc_runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			test_index INTEGER NOT NULL,
			status VARCHAR(16) NOT NULL,
			explanation TEXT NOT NULL DEFAULT '',
			elapsed_seconds DOUBLE PRECISION,
			expansions INTEGER NOT NULL DEFAULT 0,
			changes JSONB NOT NULL DEFAULT '[]',
			PRIMARY KEY (run_id, position)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_amcc_runs_started_at ON amcc_runs(started_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_amcc_runs_fingerprint ON amcc_runs(fingerprint)",
		"CREATE INDEX IF NOT EXISTS idx_amcc_outcomes_status ON amcc_outcomes(run_id, status)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			// index failures leave the schema usable
			r.logger.Warn("[Migration] failed to create index: %v", err)
		}
	}
}
