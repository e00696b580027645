package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goamcc/domain/core"
	"goamcc/domain/run"
	"goamcc/internal/migration"
)

// openTestDB connects to TEST_DATABASE_URL and applies the schema. Tests
// that need it are skipped when the variable is unset.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migration.NewRunner(nil).Run(context.Background(), db))
	return db
}

func TestToOutcomeRow(t *testing.T) {
	id := core.NewRunID()
	row, err := toOutcomeRow(id, 3, run.Outcome{
		Index:      7,
		Status:     run.StatusFound,
		Changes:    []run.Change{{Index: 1, Feature: "housing", From: "rent", To: "own"}},
		Elapsed:    1500 * time.Millisecond,
		HasElapsed: true,
		Expansions: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, id, row.RunID)
	assert.Equal(t, 3, row.Position)
	assert.Equal(t, 7, row.TestIndex)
	assert.Equal(t, "found", row.Status)
	require.NotNil(t, row.Elapsed)
	assert.InDelta(t, 1.5, *row.Elapsed, 1e-9)
	assert.JSONEq(t, `[{"index":1,"feature":"housing","from":"rent","to":"own"}]`, string(row.Changes))

	row, err = toOutcomeRow(id, 0, run.Outcome{Status: run.StatusTimeout})
	require.NoError(t, err)
	assert.Nil(t, row.Elapsed)
	assert.Equal(t, "[]", string(row.Changes))
}

func TestRunRepositoryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Second)
	report := &run.Report{
		RunID:      core.NewRunID(),
		Parameters: run.Parameters{DataPath: "credit.csv", ThreshProb: 0.95},
		Outcomes: []run.Outcome{
			{Index: 0, Status: run.StatusFound, Changes: []run.Change{{Index: 0, Feature: "a", From: "a0", To: "a2"}}, Elapsed: time.Second, HasElapsed: true},
			{Index: 1, Status: run.StatusTimeout},
		},
		StartedAt: started,
	}
	report.Finalize(started.Add(2 * time.Second))

	require.NoError(t, repo.SaveReport(ctx, report))
	// saving again replaces the outcome rows
	require.NoError(t, repo.SaveReport(ctx, report))

	got, err := repo.GetReport(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, report.Summary.Successes, got.Summary.Successes)
	assert.Equal(t, report.Outcomes[0].Changes, got.Outcomes[0].Changes)

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM amcc_outcomes WHERE run_id = $1`, report.RunID))
	assert.Equal(t, 2, count)

	list, err := repo.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = repo.GetReport(ctx, core.NewRunID())
	assert.ErrorIs(t, err, core.ErrRunNotFound)
}
