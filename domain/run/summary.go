package run

import (
	"time"

	"github.com/montanaflynn/stats"

	"goamcc/domain/core"
)

// Summary aggregates the outcomes of one run
type Summary struct {
	RunID       core.RunID `json:"run_id" db:"id"`
	Fingerprint string     `json:"fingerprint" db:"fingerprint"`
	DataPath    string     `json:"data_path" db:"data_path"`
	Instances   int        `json:"instances" db:"instances"`
	Successes   int        `json:"successes" db:"successes"`
	Failures    int        `json:"failures" db:"failures"`
	Timeouts    int        `json:"timeouts" db:"timeouts"`
	SuccessRate float64    `json:"success_rate" db:"success_rate"`
	// Search times in seconds over outcomes that finished within budget
	MeanTime    float64   `json:"mean_time" db:"mean_time"`
	MedianTime  float64   `json:"median_time" db:"median_time"`
	P95Time     float64   `json:"p95_time" db:"p95_time"`
	MeanChanges float64   `json:"mean_changes" db:"mean_changes"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

// Summarize computes counts and timing statistics. Timeouts count as
// failures and contribute no time.
func Summarize(runID core.RunID, outcomes []Outcome) Summary {
	s := Summary{RunID: runID, Instances: len(outcomes)}

	var times, changes stats.Float64Data
	for _, o := range outcomes {
		switch o.Status {
		case StatusFound:
			s.Successes++
			changes = append(changes, float64(len(o.Changes)))
		case StatusTimeout:
			s.Timeouts++
			s.Failures++
		default:
			s.Failures++
		}
		if o.HasElapsed {
			times = append(times, o.Elapsed.Seconds())
		}
	}

	if s.Instances > 0 {
		s.SuccessRate = float64(s.Successes) / float64(s.Instances)
	}
	if len(times) > 0 {
		s.MeanTime, _ = stats.Mean(times)
		s.MedianTime, _ = stats.Median(times)
		s.P95Time, _ = stats.PercentileNearestRank(times, 95)
	}
	if len(changes) > 0 {
		s.MeanChanges, _ = stats.Mean(changes)
	}
	return s
}
