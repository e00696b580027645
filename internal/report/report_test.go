package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"goamcc/domain/core"
	"goamcc/domain/run"
)

func sampleReport() *run.Report {
	started := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	r := &run.Report{
		RunID:      core.RunID("run-1"),
		Parameters: run.Parameters{DataPath: "credit.csv", ThreshProb: 0.95, TimeoutSeconds: 5, IgnoreIndices: []int{0, 3}},
		Accuracy:   0.875,
		Outcomes: []run.Outcome{
			{
				Index:       4,
				Status:      run.StatusFound,
				Explanation: "employment = unemployed AND housing = rent",
				Changes:     []run.Change{{Index: 1, Feature: "employment", From: "unemployed", To: "full-time"}},
				Elapsed:     250 * time.Millisecond,
				HasElapsed:  true,
			},
			{Index: 9, Status: run.StatusTimeout, Explanation: "savings = none"},
		},
		StartedAt: started,
	}
	r.Finalize(started.Add(time.Minute))
	return r
}

func TestMarkdown(t *testing.T) {
	md := string(Markdown(sampleReport()))

	assert.Contains(t, md, "# Counterfactual run run-1")
	assert.Contains(t, md, "| Successes | 1 |")
	assert.Contains(t, md, "| Timeouts | 1 |")
	assert.Contains(t, md, "| Success rate | 50.0% |")
	assert.Contains(t, md, "- Ignored indices: 0, 3")
	assert.Contains(t, md, "| 4 | found | employment = unemployed AND housing = rent | {employment: unemployed -> full-time} | 0.2500 |")
	assert.Contains(t, md, "| 9 | timeout | savings = none | - | - |")
}

func TestMarkdownWithoutOutcomes(t *testing.T) {
	r := &run.Report{RunID: core.RunID("empty")}
	r.Finalize(time.Now())
	md := string(Markdown(r))

	assert.Contains(t, md, "No test instances matched the undesired label.")
	assert.Contains(t, md, "- Ignored indices: none")
}

func TestHTML(t *testing.T) {
	out := string(HTML(sampleReport()))

	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<td>found</td>")
	assert.Contains(t, out, "unemployed -&gt; full-time")
}
