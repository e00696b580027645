// Package counterfactual searches for the smallest set of categorical
// substitutions that changes a classifier's prediction.
//
// The search is breadth-first over change-sets: level k of the frontier
// holds instances that differ from the original in exactly k features, so
// the first counterfactual found changes as few features as any
// counterfactual reachable under the given domains and transition rules.
package counterfactual

import (
	"context"
	"fmt"
	"sort"

	"goamcc/domain/core"
	"goamcc/domain/dataset"
	"goamcc/domain/transition"
	"goamcc/ports"
)

// Node is one frontier entry
type Node struct {
	// Changed holds the feature indices modified along this path, ascending
	Changed []int
	// Depth is the number of features changed so far; equal to len(Changed)
	Depth    int
	Instance dataset.Instance
}

func (n Node) changed(index int) bool {
	i := sort.SearchInts(n.Changed, index)
	return i < len(n.Changed) && n.Changed[i] == index
}

func (n Node) child(index, value int) Node {
	changed := make([]int, len(n.Changed), len(n.Changed)+1)
	copy(changed, n.Changed)
	pos := sort.SearchInts(changed, index)
	changed = append(changed, 0)
	copy(changed[pos+1:], changed[pos:])
	changed[pos] = index

	return Node{
		Changed:  changed,
		Depth:    n.Depth + 1,
		Instance: n.Instance.With(index, value),
	}
}

// Result is a counterfactual found by Search
type Result struct {
	Instance dataset.Instance
	Label    dataset.Label
	Changed  []int
	Depth    int
	// Expansions is the number of classifier queries the search made
	Expansions int
}

// Stats describes the work a search did, whether or not it found anything
type Stats struct {
	Expansions int
	Enqueued   int
	MaxDepth   int
}

type options struct {
	eligible    []int
	hasEligible bool
	excluded    map[int]struct{}
	maxDepth    int
	onDequeue   func(Node)
	stats       *Stats
}

// Option configures a single search
type Option func(*options)

// WithEligible restricts the search to the given feature indices. Without
// it every index in the domain map is eligible. An explicit empty list
// allows no changes at all.
func WithEligible(indices ...int) Option {
	return func(o *options) {
		o.hasEligible = true
		o.eligible = dedupe(indices)
	}
}

// WithExcluded marks feature indices that must never be modified
func WithExcluded(indices ...int) Option {
	return func(o *options) {
		for _, i := range indices {
			o.excluded[i] = struct{}{}
		}
	}
}

// WithMaxDepth stops expanding nodes that already changed d features.
// Zero, the default, means no limit.
func WithMaxDepth(d int) Option {
	return func(o *options) {
		if d > 0 {
			o.maxDepth = d
		}
	}
}

// WithOnDequeue registers a callback run for every node before it is
// classified
func WithOnDequeue(fn func(Node)) Option {
	return func(o *options) {
		o.onDequeue = fn
	}
}

// WithStats records search statistics into s
func WithStats(s *Stats) Option {
	return func(o *options) {
		o.stats = s
	}
}

// Engine runs counterfactual searches against one classifier. It holds no
// per-search state, so a single Engine may serve concurrent searches.
type Engine struct {
	classifier ports.Classifier
	rules      transition.Rules
}

// NewEngine creates an engine. rules may be nil.
func NewEngine(classifier ports.Classifier, rules transition.Rules) *Engine {
	return &Engine{classifier: classifier, rules: rules}
}

// Search explores single-feature substitutions level by level and returns
// the first instance whose predicted label differs from originalLabel.
//
// A nil Result with a nil error means no counterfactual is reachable. The
// caller's instance is never modified. Classifier errors are returned as
// is; a cancelled or expired ctx yields an error matching
// core.ErrTimeoutExceeded and no partial result.
func (e *Engine) Search(
	ctx context.Context,
	instance dataset.Instance,
	originalLabel dataset.Label,
	domains dataset.Domains,
	opts ...Option,
) (*Result, error) {
	o := options{excluded: map[int]struct{}{}}
	for _, opt := range opts {
		opt(&o)
	}
	stats := o.stats
	if stats == nil {
		stats = &Stats{}
	}
	*stats = Stats{}

	candidates := e.candidates(o, domains)
	for _, index := range candidates {
		if index < 0 || index >= len(instance) {
			return nil, fmt.Errorf("%w: feature index %d outside instance of length %d",
				core.ErrInvalidInstance, index, len(instance))
		}
	}

	frontier := []Node{{Depth: 0, Instance: instance.Clone()}}
	stats.Enqueued = 1
	head := 0

	for head < len(frontier) {
		if err := ctx.Err(); err != nil {
			return nil, core.NewTimeoutError(err)
		}

		node := frontier[head]
		frontier[head] = Node{}
		head++
		if head > 1024 && head*2 > len(frontier) {
			frontier = append([]Node(nil), frontier[head:]...)
			head = 0
		}

		if o.onDequeue != nil {
			o.onDequeue(node)
		}
		if node.Depth > stats.MaxDepth {
			stats.MaxDepth = node.Depth
		}

		label, err := e.classifier.Predict(ctx, node.Instance)
		stats.Expansions++
		if err != nil {
			return nil, fmt.Errorf("classify node at depth %d: %w", node.Depth, err)
		}
		if label != originalLabel {
			return &Result{
				Instance:   node.Instance,
				Label:      label,
				Changed:    node.Changed,
				Depth:      node.Depth,
				Expansions: stats.Expansions,
			}, nil
		}

		if o.maxDepth > 0 && node.Depth >= o.maxDepth {
			continue
		}

		for _, index := range candidates {
			if node.changed(index) {
				continue
			}
			current := node.Instance[index]
			for _, value := range domains[index] {
				if value == current {
					continue
				}
				if !e.rules.Allows(index, current, value) {
					continue
				}
				frontier = append(frontier, node.child(index, value))
				stats.Enqueued++
			}
		}
	}

	return nil, nil
}

// candidates returns the indices a search may modify: the eligible list (or
// every domain key, ascending) minus exclusions and indices with no domain.
func (e *Engine) candidates(o options, domains dataset.Domains) []int {
	base := o.eligible
	if !o.hasEligible {
		base = domains.Indices()
	}

	out := make([]int, 0, len(base))
	for _, index := range base {
		if _, skip := o.excluded[index]; skip {
			continue
		}
		if _, ok := domains[index]; !ok {
			continue
		}
		out = append(out, index)
	}
	return out
}

func dedupe(indices []int) []int {
	seen := make(map[int]struct{}, len(indices))
	out := make([]int, 0, len(indices))
	for _, i := range indices {
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}
