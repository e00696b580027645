// Package classifier provides the prediction oracle used by the search: a
// categorical naive Bayes model over the encoded dataset.
package classifier

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"goamcc/domain/dataset"
	"goamcc/internal/errors"
)

// DefaultAlpha is the Laplace smoothing pseudo-count
const DefaultAlpha = 1.0

// NaiveBayes is a categorical naive Bayes classifier. It is immutable after
// Train, so Predict is safe for concurrent use.
type NaiveBayes struct {
	alpha    float64
	classes  int
	logPrior []float64
	// logLik[feature][class][code]
	logLik [][][]float64
}

// NewNaiveBayes creates an untrained model. alpha <= 0 selects DefaultAlpha.
func NewNaiveBayes(alpha float64) *NaiveBayes {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	return &NaiveBayes{alpha: alpha}
}

// Train fits class priors and per-feature conditional tables on the
// training partition
func (nb *NaiveBayes) Train(ds *dataset.Dataset) error {
	classes := len(ds.ClassNames)
	if classes == 0 {
		return errors.InvalidInput("dataset has no classes")
	}
	if ds.Train.Len() == 0 {
		return errors.InvalidInput("training partition is empty")
	}

	classCount := make([]float64, classes)
	counts := make([][][]float64, len(ds.Features))
	for f, feature := range ds.Features {
		counts[f] = make([][]float64, classes)
		for c := range counts[f] {
			counts[f][c] = make([]float64, len(feature.Categories))
		}
	}

	for i, x := range ds.Train.Rows {
		c := int(ds.Train.Labels[i])
		if c < 0 || c >= classes {
			return errors.InvalidInput(fmt.Sprintf("training row %d has label %d", i, c))
		}
		if len(x) != len(ds.Features) {
			return errors.InvalidInput(fmt.Sprintf("training row %d has %d features, want %d", i, len(x), len(ds.Features)))
		}
		classCount[c]++
		for f, v := range x {
			if v < 0 || v >= len(counts[f][c]) {
				return errors.InvalidInput(fmt.Sprintf("training row %d feature %d has code %d", i, f, v))
			}
			counts[f][c][v]++
		}
	}

	n := float64(ds.Train.Len())
	nb.classes = classes
	nb.logPrior = make([]float64, classes)
	for c := range nb.logPrior {
		nb.logPrior[c] = math.Log((classCount[c] + nb.alpha) / (n + nb.alpha*float64(classes)))
	}
	nb.logLik = make([][][]float64, len(counts))
	for f := range counts {
		nb.logLik[f] = make([][]float64, classes)
		for c := range counts[f] {
			k := float64(len(counts[f][c]))
			nb.logLik[f][c] = make([]float64, len(counts[f][c]))
			for v, cnt := range counts[f][c] {
				nb.logLik[f][c][v] = math.Log((cnt + nb.alpha) / (classCount[c] + nb.alpha*k))
			}
		}
	}
	return nil
}

func (nb *NaiveBayes) logJoint(x dataset.Instance) ([]float64, error) {
	if nb.logPrior == nil {
		return nil, errors.InternalError("classifier is not trained")
	}
	if len(x) != len(nb.logLik) {
		return nil, errors.InvalidInput(fmt.Sprintf("instance has %d features, want %d", len(x), len(nb.logLik)))
	}
	joint := make([]float64, nb.classes)
	copy(joint, nb.logPrior)
	for f, v := range x {
		if v < 0 || v >= len(nb.logLik[f][0]) {
			return nil, errors.InvalidInput(fmt.Sprintf("feature %d has code %d outside its domain", f, v))
		}
		for c := range joint {
			joint[c] += nb.logLik[f][c][v]
		}
	}
	return joint, nil
}

// Predict returns the most probable class. Ties go to the lower label.
func (nb *NaiveBayes) Predict(_ context.Context, x dataset.Instance) (dataset.Label, error) {
	joint, err := nb.logJoint(x)
	if err != nil {
		return -1, err
	}
	return dataset.Label(floats.MaxIdx(joint)), nil
}

// Posterior returns the normalized class probabilities of x
func (nb *NaiveBayes) Posterior(x dataset.Instance) ([]float64, error) {
	joint, err := nb.logJoint(x)
	if err != nil {
		return nil, err
	}
	norm := floats.LogSumExp(joint)
	for c := range joint {
		joint[c] = math.Exp(joint[c] - norm)
	}
	return joint, nil
}

// Accuracy returns the fraction of rows in p predicted correctly
func (nb *NaiveBayes) Accuracy(ctx context.Context, p dataset.Partition) (float64, error) {
	if p.Len() == 0 {
		return 0, nil
	}
	correct := 0
	for i, x := range p.Rows {
		label, err := nb.Predict(ctx, x)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		if label == p.Labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(p.Len()), nil
}
