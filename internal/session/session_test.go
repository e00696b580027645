package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"goamcc/domain/core"
	"goamcc/domain/run"
	"goamcc/internal"
	"goamcc/internal/config"
	"goamcc/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	_ ports.RunRepository = (*MemoryRunStore)(nil)
	_ ports.RunRepository = (*LocalRunStore)(nil)
)

func report(started time.Time) *run.Report {
	r := &run.Report{
		RunID:      core.NewRunID(),
		Parameters: run.Parameters{DataPath: "credit.csv"},
		Outcomes: []run.Outcome{{
			Index:      2,
			Status:     run.StatusFound,
			Changes:    []run.Change{{Index: 1, Feature: "employment", From: "unemployed", To: "full-time"}},
			Elapsed:    time.Millisecond,
			HasElapsed: true,
		}},
		Messages:  []string{"Successful modification."},
		StartedAt: started,
	}
	r.Finalize(started.Add(time.Second))
	return r
}

func exerciseStore(t *testing.T, store ports.RunRepository) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older, newer := report(base), report(base.Add(time.Hour))

	require.NoError(t, store.SaveReport(ctx, older))
	require.NoError(t, store.SaveReport(ctx, newer))

	got, err := store.GetReport(ctx, older.RunID)
	require.NoError(t, err)
	assert.Equal(t, older.RunID, got.RunID)
	assert.Equal(t, older.Outcomes[0].Changes, got.Outcomes[0].Changes)
	assert.Equal(t, 1, got.Summary.Successes)

	list, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.RunID, list[0].RunID)

	list, err = store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = store.GetReport(ctx, core.NewRunID())
	assert.ErrorIs(t, err, core.ErrRunNotFound)
	assert.True(t, core.IsNotFoundError(err))

	assert.Error(t, store.SaveReport(ctx, &run.Report{}))
}

func TestMemoryRunStore(t *testing.T) {
	exerciseStore(t, NewMemoryRunStore())
}

func TestLocalRunStore(t *testing.T) {
	store, err := NewLocalRunStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestLocalRunStoreEmpty(t *testing.T) {
	store, err := NewLocalRunStore(t.TempDir())
	require.NoError(t, err)
	list, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRegistryRunSucceeds(t *testing.T) {
	runFn := func(ctx context.Context, id core.RunID, cfg config.RunConfig, sink *internal.Sink) (*run.Report, error) {
		sink.Append("Successful modification.")
		r := report(time.Now())
		r.RunID = id
		return r, nil
	}
	reg := NewRegistry(runFn, time.Second, nil, nil)

	id := reg.Start(config.DefaultRunConfig())
	reg.Wait()

	job, err := reg.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, job.Status)
	require.NotNil(t, job.Report)
	assert.Equal(t, id, job.Report.RunID)
	assert.NotNil(t, job.FinishedAt)

	logs, err := reg.Logs(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Running request", "Successful modification."}, logs)

	logs, err = reg.Logs(id)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestRegistryProcessingLimit(t *testing.T) {
	runFn := func(ctx context.Context, _ core.RunID, _ config.RunConfig, _ *internal.Sink) (*run.Report, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	reg := NewRegistry(runFn, 20*time.Millisecond, nil, nil)

	id := reg.Start(config.DefaultRunConfig())
	reg.Wait()

	job, err := reg.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.Status)
	assert.Equal(t, MsgProcessingTooLong, job.Error)
}

func TestRegistryRunFails(t *testing.T) {
	runFn := func(context.Context, core.RunID, config.RunConfig, *internal.Sink) (*run.Report, error) {
		return nil, errors.New("data_path is required")
	}
	reg := NewRegistry(runFn, time.Second, nil, nil)
	id := reg.Start(config.RunConfig{})
	reg.Wait()

	job, err := reg.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.Status)
	assert.Equal(t, "data_path is required", job.Error)
}

func TestRegistryFallsBackToRepository(t *testing.T) {
	store := NewMemoryRunStore()
	saved := report(time.Now())
	require.NoError(t, store.SaveReport(context.Background(), saved))

	reg := NewRegistry(nil, time.Second, store, nil)
	job, err := reg.Get(context.Background(), saved.RunID)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, job.Status)

	_, err = reg.Get(context.Background(), core.NewRunID())
	assert.True(t, core.IsNotFoundError(err))

	_, err = reg.Logs(saved.RunID)
	assert.True(t, core.IsNotFoundError(err))
}

func TestRegistryShutdownCancelsRuns(t *testing.T) {
	started := make(chan struct{})
	runFn := func(ctx context.Context, _ core.RunID, _ config.RunConfig, _ *internal.Sink) (*run.Report, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	reg := NewRegistry(runFn, time.Minute, nil, nil)
	id := reg.Start(config.DefaultRunConfig())
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))

	job, err := reg.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.Status)
	assert.Contains(t, job.Error, "context canceled")
}

func TestRegistryEvictsOldestFinishedJobs(t *testing.T) {
	runFn := func(ctx context.Context, id core.RunID, _ config.RunConfig, _ *internal.Sink) (*run.Report, error) {
		r := report(time.Now())
		r.RunID = id
		return r, nil
	}
	reg := NewRegistry(runFn, time.Second, nil, nil, WithRetainedJobs(1))

	first := reg.Start(config.DefaultRunConfig())
	reg.Wait()
	second := reg.Start(config.DefaultRunConfig())
	reg.Wait()

	_, err := reg.Get(context.Background(), first)
	assert.True(t, core.IsNotFoundError(err))

	job, err := reg.Get(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, job.Status)
}

func TestRegistryEvictedJobServedFromRepository(t *testing.T) {
	store := NewMemoryRunStore()
	runFn := func(ctx context.Context, id core.RunID, _ config.RunConfig, _ *internal.Sink) (*run.Report, error) {
		r := report(time.Now())
		r.RunID = id
		return r, store.SaveReport(ctx, r)
	}
	reg := NewRegistry(runFn, time.Second, store, nil, WithRetainedJobs(0))

	id := reg.Start(config.DefaultRunConfig())
	reg.Wait()

	_, err := reg.Logs(id)
	assert.True(t, core.IsNotFoundError(err))

	job, err := reg.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, job.Status)
	assert.Equal(t, id, job.Report.RunID)
}

func TestRegistryShutdownWaitsForTimedOutRun(t *testing.T) {
	release := make(chan struct{})
	var returned atomic.Bool
	runFn := func(ctx context.Context, _ core.RunID, _ config.RunConfig, _ *internal.Sink) (*run.Report, error) {
		<-ctx.Done()
		// still busy after the deadline, e.g. inside SaveReport
		<-release
		returned.Store(true)
		return nil, ctx.Err()
	}
	reg := NewRegistry(runFn, 20*time.Millisecond, nil, nil)
	id := reg.Start(config.DefaultRunConfig())

	require.Eventually(t, func() bool {
		job, err := reg.Get(context.Background(), id)
		return err == nil && job.Status == JobFailed
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, reg.Shutdown(ctx), context.DeadlineExceeded)
	assert.False(t, returned.Load())

	close(release)
	require.NoError(t, reg.Shutdown(context.Background()))
	assert.True(t, returned.Load())
}
