package run

import (
	"strconv"
	"strings"
)

// TableHeader lists the columns of the per-instance results file
var TableHeader = []string{"index", "status", "success", "failure", "time", "modified_instances", "changes"}

// Table renders outcomes as string rows under TableHeader. Missing values
// are empty cells.
func Table(outcomes []Outcome) [][]string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		success, failure := "0", "1"
		if o.Success() {
			success, failure = "1", "0"
		}
		elapsed := ""
		if o.HasElapsed {
			elapsed = strconv.FormatFloat(o.Elapsed.Seconds(), 'f', 6, 64)
		}
		modified, changes := "", ""
		if o.Modified != nil {
			modified = formatInstance(o.Modified)
			changes = FormatChanges(o.Changes)
		}
		rows = append(rows, []string{
			strconv.Itoa(o.Index),
			string(o.Status),
			success,
			failure,
			elapsed,
			modified,
			changes,
		})
	}
	return rows
}

func formatInstance(x []int) string {
	parts := make([]string, len(x))
	for i, v := range x {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
