package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"goamcc/domain/core"
	"goamcc/domain/run"
)

// LocalRunStore keeps one JSON document per run report on the local
// filesystem under basePath/runs
type LocalRunStore struct {
	basePath string
}

// NewLocalRunStore creates a new local run store
func NewLocalRunStore(basePath string) (*LocalRunStore, error) {
	if err := os.MkdirAll(filepath.Join(basePath, "runs"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalRunStore{basePath: basePath}, nil
}

func (s *LocalRunStore) keyToPath(id core.RunID) string {
	return filepath.Join(s.basePath, "runs", id.String()+".json")
}

// SaveReport writes the report, replacing any earlier version
func (s *LocalRunStore) SaveReport(ctx context.Context, report *run.Report) error {
	if core.ID(report.RunID).IsEmpty() {
		return fmt.Errorf("report has no run id")
	}
	content, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	// write then rename so readers never see a partial file
	path := s.keyToPath(report.RunID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", tmp, err)
	}
	return nil
}

// GetReport reads a report back
func (s *LocalRunStore) GetReport(ctx context.Context, id core.RunID) (*run.Report, error) {
	content, err := os.ReadFile(s.keyToPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to read report %s: %w", id, err)
	}
	var report run.Report
	if err := json.Unmarshal(content, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", id, err)
	}
	return &report, nil
}

// ListRuns returns the summaries of the most recent runs first
func (s *LocalRunStore) ListRuns(ctx context.Context, limit int) ([]run.Summary, error) {
	entries, err := os.ReadDir(filepath.Join(s.basePath, "runs"))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var summaries []run.Summary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		report, err := s.GetReport(ctx, core.RunID(strings.TrimSuffix(name, ".json")))
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, report.Summary)
	}
	return newestFirst(summaries, limit), nil
}

func newestFirst(summaries []run.Summary, limit int) []run.Summary {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	if summaries == nil {
		summaries = []run.Summary{}
	}
	return summaries
}
