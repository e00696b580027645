package session

import (
	"context"
	"sync"
	"time"

	"goamcc/domain/core"
	"goamcc/domain/run"
	"goamcc/internal"
	"goamcc/internal/config"
	"goamcc/internal/timeout"
	"goamcc/ports"
)

// JobStatus is the lifecycle state of a background run
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// MsgProcessingTooLong is reported when a run exceeds the server limit
const MsgProcessingTooLong = "Processing is taking longer than expected. Please try again later."

// DefaultRetainedJobs is how many finished runs stay in memory. Older ones
// are only reachable through the repository.
const DefaultRetainedJobs = 100

// RunFunc executes one batch run
type RunFunc func(ctx context.Context, id core.RunID, cfg config.RunConfig, sink *internal.Sink) (*run.Report, error)

// Job is a snapshot of a background run
type Job struct {
	ID         core.RunID  `json:"run_id"`
	Status     JobStatus   `json:"status"`
	Error      string      `json:"error,omitempty"`
	Report     *run.Report `json:"report,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

type job struct {
	Job
	sink *internal.Sink
}

// Registry starts runs in the background, each under its own processing
// limit and with its own message sink
type Registry struct {
	run    RunFunc
	limit  time.Duration
	repo   ports.RunRepository
	logger *internal.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	jobs     map[core.RunID]*job
	finished []core.RunID
	retain   int
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRetainedJobs keeps at most n finished runs in memory
func WithRetainedJobs(n int) RegistryOption {
	return func(r *Registry) {
		if n >= 0 {
			r.retain = n
		}
	}
}

// NewRegistry creates a registry. repo may be nil; when set, finished runs
// that are no longer tracked are looked up there.
func NewRegistry(runFn RunFunc, limit time.Duration, repo ports.RunRepository, logger *internal.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		run:    runFn,
		limit:  limit,
		repo:   repo,
		logger: logger.Named("registry"),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[core.RunID]*job),
		retain: DefaultRetainedJobs,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches cfg in the background and returns its run ID
func (r *Registry) Start(cfg config.RunConfig) core.RunID {
	id := core.NewRunID()
	j := &job{
		Job:  Job{ID: id, Status: JobRunning, StartedAt: time.Now()},
		sink: internal.NewSink(),
	}
	j.sink.Append("Running request")

	r.mu.Lock()
	r.jobs[id] = j
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// At the deadline the guard returns while the run is still
		// unwinding; hold the job until the run itself has returned.
		returned := make(chan struct{})
		guard := timeout.NewWithDuration(r.limit)
		report, err := timeout.Do(r.ctx, guard, func(ctx context.Context) (*run.Report, error) {
			defer close(returned)
			return r.run(ctx, id, cfg, j.sink)
		})
		r.finish(j, report, err)
		<-returned
	}()
	return id
}

func (r *Registry) finish(j *job, report *run.Report, err error) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	j.FinishedAt = &now
	switch {
	case err == nil:
		j.Status = JobSucceeded
		j.Report = report
	case core.IsTimeoutError(err):
		j.Status = JobFailed
		j.Error = MsgProcessingTooLong
		r.logger.Warn("Run %s timed out after %s", j.ID, r.limit)
	default:
		j.Status = JobFailed
		j.Error = err.Error()
		r.logger.Error("Run %s failed: %v", j.ID, err)
	}

	r.finished = append(r.finished, j.ID)
	for len(r.finished) > r.retain {
		delete(r.jobs, r.finished[0])
		r.finished = r.finished[1:]
	}
}

// Get returns a snapshot of a run
func (r *Registry) Get(ctx context.Context, id core.RunID) (*Job, error) {
	r.mu.RLock()
	j, ok := r.jobs[id]
	var snapshot Job
	if ok {
		snapshot = j.Job
	}
	r.mu.RUnlock()
	if ok {
		return &snapshot, nil
	}

	if r.repo == nil {
		return nil, core.NewNotFoundError("run", id.String())
	}
	report, err := r.repo.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	finished := report.CompletedAt
	return &Job{
		ID:         id,
		Status:     JobSucceeded,
		Report:     report,
		StartedAt:  report.StartedAt,
		FinishedAt: &finished,
	}, nil
}

// Logs drains the messages a run produced since the last call
func (r *Registry) Logs(id core.RunID) ([]string, error) {
	r.mu.RLock()
	j, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, core.NewNotFoundError("run", id.String())
	}
	return j.sink.Collect(), nil
}

// Wait blocks until every started run has finished
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Shutdown cancels running jobs and waits for them until ctx is done
func (r *Registry) Shutdown(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
