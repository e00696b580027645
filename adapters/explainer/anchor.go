// Package explainer produces anchor-style rule explanations: a short
// conjunction of feature predicates that, when held fixed, keeps the
// classifier's prediction with high precision.
package explainer

import (
	"context"
	"fmt"
	"math/rand"

	"goamcc/domain/dataset"
	"goamcc/domain/explain"
	"goamcc/ports"
)

const (
	DefaultThreshold = 0.95
	DefaultSamples   = 200
)

// Anchor implements ports.Explainer with a greedy anchor search over
// perturbations drawn from the training rows
type Anchor struct {
	classifier ports.Classifier
	ds         *dataset.Dataset
	threshold  float64
	samples    int
	seed       int64
}

// Option configures an Anchor
type Option func(*Anchor)

// WithThreshold sets the precision an anchor must reach
func WithThreshold(p float64) Option {
	return func(a *Anchor) {
		if p > 0 && p <= 1 {
			a.threshold = p
		}
	}
}

// WithSamples sets the number of perturbations per precision estimate
func WithSamples(n int) Option {
	return func(a *Anchor) {
		if n > 0 {
			a.samples = n
		}
	}
}

// WithSeed seeds the perturbation sampler
func WithSeed(seed int64) Option {
	return func(a *Anchor) { a.seed = seed }
}

// NewAnchor creates an explainer for ds. Perturbations are drawn from
// ds.Train.
func NewAnchor(classifier ports.Classifier, ds *dataset.Dataset, opts ...Option) *Anchor {
	a := &Anchor{
		classifier: classifier,
		ds:         ds,
		threshold:  DefaultThreshold,
		samples:    DefaultSamples,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Explain returns the anchor of x as "name = category AND ..." in the order
// the predicates were chosen. An empty string means the prediction holds
// with no predicate fixed.
func (a *Anchor) Explain(ctx context.Context, x dataset.Instance) (string, error) {
	anchored, err := a.Anchor(ctx, x)
	if err != nil {
		return "", err
	}
	clauses := make([]string, len(anchored))
	for i, f := range anchored {
		clauses[i] = a.predicate(f, x[f])
	}
	return explain.Join(clauses), nil
}

// Anchor returns the anchored feature indices of x in the order chosen
func (a *Anchor) Anchor(ctx context.Context, x dataset.Instance) ([]int, error) {
	if a.ds.Train.Len() == 0 {
		return nil, fmt.Errorf("explainer has no training rows to sample")
	}
	target, err := a.classifier.Predict(ctx, x)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(a.seed))
	anchored := []int{}
	fixed := make([]bool, len(x))

	precision, err := a.precision(ctx, x, target, fixed, a.draw(rng))
	if err != nil {
		return nil, err
	}

	for precision < a.threshold && len(anchored) < len(x) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows := a.draw(rng)
		best, bestPrecision := -1, -1.0
		for f := range x {
			if fixed[f] {
				continue
			}
			fixed[f] = true
			p, err := a.precision(ctx, x, target, fixed, rows)
			fixed[f] = false
			if err != nil {
				return nil, err
			}
			if p > bestPrecision {
				best, bestPrecision = f, p
			}
		}
		fixed[best] = true
		anchored = append(anchored, best)
		precision = bestPrecision
	}
	return anchored, nil
}

// draw picks the training rows used for one round of precision estimates
func (a *Anchor) draw(rng *rand.Rand) []int {
	rows := make([]int, a.samples)
	for i := range rows {
		rows[i] = rng.Intn(a.ds.Train.Len())
	}
	return rows
}

// precision is the fraction of perturbed rows, with fixed features copied
// from x, that the classifier still assigns to target
func (a *Anchor) precision(ctx context.Context, x dataset.Instance, target dataset.Label, fixed []bool, rows []int) (float64, error) {
	kept := 0
	z := make(dataset.Instance, len(x))
	for _, r := range rows {
		copy(z, a.ds.Train.Rows[r])
		for f, isFixed := range fixed {
			if isFixed {
				z[f] = x[f]
			}
		}
		label, err := a.classifier.Predict(ctx, z)
		if err != nil {
			return 0, err
		}
		if label == target {
			kept++
		}
	}
	return float64(kept) / float64(len(rows)), nil
}

func (a *Anchor) predicate(f, code int) string {
	feature := a.ds.Features[f]
	category := a.ds.CategoryName(f, code)
	if feature.Kind == dataset.KindDiscretized {
		return category
	}
	return fmt.Sprintf("%s = %s", feature.Name, category)
}
