package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"goamcc/domain/core"
	"goamcc/domain/run"
	"goamcc/ports"
)

// RunRepositoryImpl implements RunRepository for PostgreSQL. The full report
// is kept as JSONB on amcc_runs; amcc_outcomes holds one row per searched
// instance for querying.
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a new PostgreSQL run repository
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

type outcomeRow struct {
	RunID       core.RunID `db:"run_id"`
	Position    int        `db:"position"`
	TestIndex   int        `db:"test_index"`
	Status      string     `db:"status"`
	Explanation string     `db:"explanation"`
	Elapsed     *float64   `db:"elapsed_seconds"`
	Expansions  int        `db:"expansions"`
	Changes     []byte     `db:"changes"`
}

// SaveReport upserts the run and replaces its outcome rows in one transaction
func (r *RunRepositoryImpl) SaveReport(ctx context.Context, report *run.Report) error {
	if core.ID(report.RunID).IsEmpty() {
		return fmt.Errorf("report has no run id")
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	s := report.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT INTO amcc_runs (
			id, fingerprint, data_path, instances, successes, failures, timeouts,
			success_rate, mean_time, median_time, p95_time, mean_changes,
			started_at, completed_at, report
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			data_path = EXCLUDED.data_path,
			instances = EXCLUDED.instances,
			successes = EXCLUDED.successes,
			failures = EXCLUDED.failures,
			timeouts = EXCLUDED.timeouts,
			success_rate = EXCLUDED.success_rate,
			mean_time = EXCLUDED.mean_time,
			median_time = EXCLUDED.median_time,
			p95_time = EXCLUDED.p95_time,
			mean_changes = EXCLUDED.mean_changes,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			report = EXCLUDED.report`,
		report.RunID, report.Fingerprint.Value, report.Parameters.DataPath,
		s.Instances, s.Successes, s.Failures, s.Timeouts,
		s.SuccessRate, s.MeanTime, s.MedianTime, s.P95Time, s.MeanChanges,
		report.StartedAt, report.CompletedAt, reportJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", report.RunID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM amcc_outcomes WHERE run_id = $1`, report.RunID); err != nil {
		return fmt.Errorf("failed to clear outcomes for run %s: %w", report.RunID, err)
	}

	for i, o := range report.Outcomes {
		row, err := toOutcomeRow(report.RunID, i, o)
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO amcc_outcomes (run_id, position, test_index, status, explanation, elapsed_seconds, expansions, changes)
			VALUES (:run_id, :position, :test_index, :status, :explanation, :elapsed_seconds, :expansions, :changes)
		`, row)
		if err != nil {
			return fmt.Errorf("failed to insert outcome %d for run %s: %w", i, report.RunID, err)
		}
	}

	return tx.Commit()
}

func toOutcomeRow(id core.RunID, position int, o run.Outcome) (outcomeRow, error) {
	changes := o.Changes
	if changes == nil {
		changes = []run.Change{}
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return outcomeRow{}, fmt.Errorf("failed to serialize changes: %w", err)
	}
	row := outcomeRow{
		RunID:       id,
		Position:    position,
		TestIndex:   o.Index,
		Status:      string(o.Status),
		Explanation: o.Explanation,
		Expansions:  o.Expansions,
		Changes:     changesJSON,
	}
	if o.HasElapsed {
		secs := o.Elapsed.Seconds()
		row.Elapsed = &secs
	}
	return row, nil
}

// GetReport loads the stored report document
func (r *RunRepositoryImpl) GetReport(ctx context.Context, id core.RunID) (*run.Report, error) {
	var raw []byte
	err := r.db.GetContext(ctx, &raw, `SELECT report FROM amcc_runs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, id)
		}
		return nil, err
	}

	var report run.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("failed to parse stored report %s: %w", id, err)
	}
	return &report, nil
}

// ListRuns returns run summaries, newest first
func (r *RunRepositoryImpl) ListRuns(ctx context.Context, limit int) ([]run.Summary, error) {
	query := `
		SELECT id, fingerprint, data_path, instances, successes, failures, timeouts,
			success_rate, mean_time, median_time, p95_time, mean_changes, started_at, completed_at
		FROM amcc_runs
		ORDER BY started_at DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	summaries := []run.Summary{}
	if err := r.db.SelectContext(ctx, &summaries, query, args...); err != nil {
		return nil, err
	}
	return summaries, nil
}
