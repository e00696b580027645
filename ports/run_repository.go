package ports

import (
	"context"

	"goamcc/domain/core"
	"goamcc/domain/run"
)

// RunRepository persists batch run reports
type RunRepository interface {
	// SaveReport stores a finished report, replacing any report with the same run ID
	SaveReport(ctx context.Context, report *run.Report) error

	// GetReport loads a report by run ID; returns core.ErrRunNotFound when absent
	GetReport(ctx context.Context, id core.RunID) (*run.Report, error)

	// ListRuns returns run summaries, newest first
	ListRuns(ctx context.Context, limit int) ([]run.Summary, error)
}
