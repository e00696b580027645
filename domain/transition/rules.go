// Package transition gates which value substitutions are legal for a
// feature during the counterfactual search.
package transition

import (
	"sort"
	"strings"

	"goamcc/domain/core"
)

// Predicate reports whether a feature may move from old to new
type Predicate func(old, new int) bool

// Comparator is one of the ordering relations a rule may require between
// the old and the new value.
type Comparator string

const (
	Equal          Comparator = "old == new"
	NotEqual       Comparator = "old != new"
	Greater        Comparator = "old > new"
	Less           Comparator = "old < new"
	GreaterOrEqual Comparator = "old >= new"
	LessOrEqual    Comparator = "old <= new"
)

var predicates = map[Comparator]Predicate{
	Equal:          func(old, new int) bool { return old == new },
	NotEqual:       func(old, new int) bool { return old != new },
	Greater:        func(old, new int) bool { return old > new },
	Less:           func(old, new int) bool { return old < new },
	GreaterOrEqual: func(old, new int) bool { return old >= new },
	LessOrEqual:    func(old, new int) bool { return old <= new },
}

var shorthand = map[string]Comparator{
	"==": Equal,
	"=":  Equal,
	"!=": NotEqual,
	">":  Greater,
	"<":  Less,
	">=": GreaterOrEqual,
	"<=": LessOrEqual,
}

// ParseComparator normalizes a symbolic rule. Both "old <= new" and "<=" are
// accepted; ok is false for anything else.
func ParseComparator(symbol string) (Comparator, bool) {
	s := strings.Join(strings.Fields(symbol), " ")
	if _, ok := predicates[Comparator(s)]; ok {
		return Comparator(s), true
	}
	if c, ok := shorthand[s]; ok {
		return c, true
	}
	return "", false
}

// Predicate returns the function implementing the comparator
func (c Comparator) Predicate() Predicate {
	return predicates[c]
}

// Rules maps a feature index to its transition predicate. A missing entry
// allows every transition.
type Rules map[int]Predicate

// Allows reports whether index may move from old to new
func (r Rules) Allows(index, old, new int) bool {
	if r == nil {
		return true
	}
	p, ok := r[index]
	if !ok {
		return true
	}
	return p(old, new)
}

// Indices returns the constrained feature indices, ascending
func (r Rules) Indices() []int {
	idx := make([]int, 0, len(r))
	for i := range r {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Dropped lists specs whose comparator was not recognized
type Dropped struct {
	Feature string
	Symbol  string
}

// Parse builds the index-keyed rule set from feature-name keyed symbolic
// specs. A spec with an unrecognized comparator is dropped. A recognized
// spec naming a feature absent from featureNames is an error.
func Parse(specs map[string]string, featureNames []string) (Rules, error) {
	rules, _, err := ParseWithDropped(specs, featureNames)
	return rules, err
}

// ParseWithDropped is Parse that also reports the specs it ignored
func ParseWithDropped(specs map[string]string, featureNames []string) (Rules, []Dropped, error) {
	index := make(map[string]int, len(featureNames))
	for i, name := range featureNames {
		name = core.FeatureName(name)
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}

	// Sorted so errors and drops are reported deterministically.
	features := make([]string, 0, len(specs))
	for f := range specs {
		features = append(features, f)
	}
	sort.Strings(features)

	rules := make(Rules, len(specs))
	var dropped []Dropped
	for _, feature := range features {
		symbol := specs[feature]
		cmp, ok := ParseComparator(symbol)
		if !ok {
			dropped = append(dropped, Dropped{Feature: feature, Symbol: symbol})
			continue
		}
		idx, ok := index[core.FeatureName(feature)]
		if !ok {
			return nil, dropped, core.NewUnknownFeatureError(feature)
		}
		rules[idx] = cmp.Predicate()
	}
	return rules, dropped, nil
}
