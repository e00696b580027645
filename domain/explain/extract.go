// Package explain turns rule explanations into the feature names they
// reference.
package explain

import (
	"regexp"
	"strings"
)

// clausePattern matches an identifier followed by a comparator, both
// whitespace delimited. Numeric bounds such as "28.00 < age" never match
// because an identifier cannot start with a digit.
var clausePattern = regexp.MustCompile(`(?:^|\s)([A-Za-z_][A-Za-z0-9_\-]*)\s+(?:<=|>=|=|<|>)(?:\s|$)`)

var andSeparator = regexp.MustCompile(`\s*\bAND\b\s*`)

// Extract returns the feature names referenced by a rule such as
// "age = senior AND income <= low", in order. Clauses that do not have the
// "name <op> value" shape contribute nothing.
//
// A name is a single token. Headers with spaces only round-trip because
// the dataset builder joins their words with underscores (core.FeatureName).
func Extract(rule string) []string {
	names, _ := ExtractClauses(rule)
	return names
}

// ExtractClauses is Extract that also returns the clauses it skipped
func ExtractClauses(rule string) (names []string, skipped []string) {
	names = []string{}
	for _, clause := range SplitClauses(rule) {
		m := clausePattern.FindStringSubmatch(clause)
		if m == nil {
			skipped = append(skipped, clause)
			continue
		}
		names = append(names, m[1])
	}
	return names, skipped
}

// SplitClauses splits a conjunction on AND, dropping empty clauses
func SplitClauses(rule string) []string {
	var clauses []string
	for _, c := range andSeparator.Split(strings.TrimSpace(rule), -1) {
		if c = strings.TrimSpace(c); c != "" {
			clauses = append(clauses, c)
		}
	}
	return clauses
}

// Join renders predicates as a conjunction
func Join(clauses []string) string {
	return strings.Join(clauses, " AND ")
}
