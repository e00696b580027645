package session

import (
	"context"
	"fmt"
	"sync"

	"goamcc/domain/core"
	"goamcc/domain/run"
)

// MemoryRunStore keeps reports in process memory. Used when no database is
// configured.
type MemoryRunStore struct {
	mu      sync.RWMutex
	reports map[core.RunID]*run.Report
}

// NewMemoryRunStore creates an empty store
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{reports: make(map[core.RunID]*run.Report)}
}

// SaveReport stores a copy of the report header and outcomes
func (s *MemoryRunStore) SaveReport(_ context.Context, report *run.Report) error {
	if core.ID(report.RunID).IsEmpty() {
		return fmt.Errorf("report has no run id")
	}
	cp := *report
	cp.Outcomes = append([]run.Outcome(nil), report.Outcomes...)
	cp.Messages = append([]string(nil), report.Messages...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.RunID] = &cp
	return nil
}

// GetReport returns a stored report
func (s *MemoryRunStore) GetReport(_ context.Context, id core.RunID) (*run.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, id)
	}
	cp := *report
	return &cp, nil
}

// ListRuns returns the summaries of the most recent runs first
func (s *MemoryRunStore) ListRuns(_ context.Context, limit int) ([]run.Summary, error) {
	s.mu.RLock()
	summaries := make([]run.Summary, 0, len(s.reports))
	for _, r := range s.reports {
		summaries = append(summaries, r.Summary)
	}
	s.mu.RUnlock()
	return newestFirst(summaries, limit), nil
}
