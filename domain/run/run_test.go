package run

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goamcc/domain/core"
	"goamcc/domain/dataset"
)

func sampleOutcomes() []Outcome {
	return []Outcome{
		{
			Index:      0,
			Status:     StatusFound,
			Original:   dataset.Instance{0, 1},
			Modified:   dataset.Instance{2, 1},
			Changes:    []Change{{Index: 0, Feature: "age", From: "young", To: "old"}},
			Elapsed:    time.Second,
			HasElapsed: true,
		},
		{Index: 3, Status: StatusAbsent, Original: dataset.Instance{1, 1}, Elapsed: 3 * time.Second, HasElapsed: true},
		{Index: 4, Status: StatusTimeout, Original: dataset.Instance{1, 0}},
	}
}

func TestSummarize(t *testing.T) {
	id := core.NewRunID()
	s := Summarize(id, sampleOutcomes())

	assert.Equal(t, id, s.RunID)
	assert.Equal(t, 3, s.Instances)
	assert.Equal(t, 1, s.Successes)
	assert.Equal(t, 2, s.Failures)
	assert.Equal(t, 1, s.Timeouts)
	assert.InDelta(t, 1.0/3.0, s.SuccessRate, 1e-9)
	assert.InDelta(t, 2.0, s.MeanTime, 1e-9, "timed out searches contribute no time")
	assert.InDelta(t, 2.0, s.MedianTime, 1e-9)
	assert.InDelta(t, 3.0, s.P95Time, 1e-9)
	assert.InDelta(t, 1.0, s.MeanChanges, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(core.NewRunID(), nil)
	assert.Zero(t, s.Instances)
	assert.Zero(t, s.SuccessRate)
	assert.Zero(t, s.MeanTime)
}

func TestSummarizeSingleTime(t *testing.T) {
	s := Summarize("", []Outcome{{Status: StatusFound, Elapsed: 250 * time.Millisecond, HasElapsed: true}})
	assert.InDelta(t, 0.25, s.P95Time, 1e-9)
}

func TestReportFinalize(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := &Report{
		RunID:      core.NewRunID(),
		Parameters: Parameters{DataPath: "adult.csv"},
		Outcomes:   sampleOutcomes(),
		StartedAt:  started,
	}
	r.Fingerprint = NewFingerprint(r.Parameters, "dev")
	r.Finalize(started.Add(time.Minute))

	assert.Equal(t, r.RunID, r.Summary.RunID)
	assert.Equal(t, "adult.csv", r.Summary.DataPath)
	assert.Equal(t, r.Fingerprint.Value, r.Summary.Fingerprint)
	assert.Equal(t, started.Add(time.Minute), r.Summary.CompletedAt)
}

func TestFingerprintDeterministic(t *testing.T) {
	p := Parameters{
		DataPath:        "adult.csv",
		ThreshProb:      0.95,
		IgnoreIndices:   []int{3, 1},
		TransitionRules: map[string]string{"age": "old <= new", "education": "old < new"},
		Seed:            42,
	}
	fp1 := NewFingerprint(p, "1.0.0")

	p.IgnoreIndices = []int{1, 3}
	fp2 := NewFingerprint(p, "1.0.0")
	assert.Equal(t, fp1.Value, fp2.Value, "ignore order must not matter")
	assert.Len(t, fp1.Value, 64)
	assert.Equal(t, int64(42), fp1.Seed)

	p.Seed = 43
	assert.NotEqual(t, fp1.Value, NewFingerprint(p, "1.0.0").Value)
	p.Seed = 42
	assert.NotEqual(t, fp1.Value, NewFingerprint(p, "1.0.1").Value)
	p.TransitionRules["age"] = "old >= new"
	assert.NotEqual(t, fp1.Value, NewFingerprint(p, "1.0.0").Value)
}

func TestTable(t *testing.T) {
	rows := Table(sampleOutcomes())
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Len(t, row, len(TableHeader))
	}

	assert.Equal(t, []string{"0", "found", "1", "0", "1.000000", "[2, 1]", "{age: young -> old}"}, rows[0])
	assert.Equal(t, []string{"3", "absent", "0", "1", "3.000000", "", ""}, rows[1])
	assert.Equal(t, []string{"4", "timeout", "0", "1", "", "", ""}, rows[2])
}
