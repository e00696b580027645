package core

import "strings"

// FeatureName normalizes a column header into a feature name: surrounding
// space is trimmed and inner whitespace runs become a single underscore,
// so "credit  history" and "credit_history" name the same feature.
func FeatureName(raw string) string {
	return strings.Join(strings.Fields(raw), "_")
}
