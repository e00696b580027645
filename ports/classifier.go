package ports

import (
	"context"

	"goamcc/domain/dataset"
)

// Classifier predicts the class of an encoded instance. Implementations must
// be deterministic for a fixed instance and safe for concurrent use once
// trained.
type Classifier interface {
	Predict(ctx context.Context, x dataset.Instance) (dataset.Label, error)
}

// ClassifierFunc adapts a plain function to Classifier
type ClassifierFunc func(ctx context.Context, x dataset.Instance) (dataset.Label, error)

// Predict calls f
func (f ClassifierFunc) Predict(ctx context.Context, x dataset.Instance) (dataset.Label, error) {
	return f(ctx, x)
}
