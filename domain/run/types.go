package run

import (
	"fmt"
	"strings"
	"time"

	"goamcc/domain/core"
	"goamcc/domain/dataset"
)

// Status is the result of one counterfactual search
type Status string

const (
	StatusFound   Status = "found"
	StatusAbsent  Status = "absent"
	StatusTimeout Status = "timeout"
)

// Change is one feature substitution in a counterfactual
type Change struct {
	Index   int    `json:"index" db:"feature_index"`
	Feature string `json:"feature" db:"feature"`
	From    string `json:"from" db:"from_category"`
	To      string `json:"to" db:"to_category"`
}

// Outcome records the search for one test instance
type Outcome struct {
	// Index is the row position in the test partition
	Index       int              `json:"index"`
	Status      Status           `json:"status"`
	Explanation string           `json:"explanation"`
	Features    []string         `json:"features"`
	Original    dataset.Instance `json:"original"`
	Modified    dataset.Instance `json:"modified,omitempty"`
	Changes     []Change         `json:"changes,omitempty"`
	// Elapsed is zero and HasElapsed false when the search timed out
	Elapsed    time.Duration `json:"elapsed"`
	HasElapsed bool          `json:"has_elapsed"`
	Expansions int           `json:"expansions"`
}

// Success reports whether a counterfactual was found
func (o Outcome) Success() bool { return o.Status == StatusFound }

// FormatChanges renders changes as {feature: from -> to, ...} in feature order
func FormatChanges(changes []Change) string {
	parts := make([]string, len(changes))
	for i, c := range changes {
		parts[i] = fmt.Sprintf("%s: %s -> %s", c.Feature, c.From, c.To)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Parameters are the run settings that shape its outcomes
type Parameters struct {
	DataPath        string            `json:"data_path"`
	TargetIdx       int               `json:"target_idx"`
	ThreshProb      float64           `json:"thresh_prob"`
	IgnoreIndices   []int             `json:"ignore_indices"`
	TransitionRules map[string]string `json:"transition_rules,omitempty"`
	TimeoutSeconds  int               `json:"timeout_seconds"`
	Seed            int64             `json:"seed"`
	UndesiredLabel  int               `json:"undesired_label"`
	MaxDepth        int               `json:"max_depth,omitempty"`
}

// Report is the full result of a batch run
type Report struct {
	RunID       core.RunID  `json:"run_id"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Parameters  Parameters  `json:"parameters"`
	// Accuracy is the classifier's accuracy on the test partition
	Accuracy    float64   `json:"accuracy"`
	Outcomes    []Outcome `json:"outcomes"`
	Summary     Summary   `json:"summary"`
	Messages    []string  `json:"messages"`
	OutputFile  string    `json:"output_file,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Finalize fills in the summary from the outcomes
func (r *Report) Finalize(completedAt time.Time) {
	r.CompletedAt = completedAt
	r.Summary = Summarize(r.RunID, r.Outcomes)
	r.Summary.Fingerprint = r.Fingerprint.Value
	r.Summary.DataPath = r.Parameters.DataPath
	r.Summary.StartedAt = r.StartedAt
	r.Summary.CompletedAt = completedAt
}
