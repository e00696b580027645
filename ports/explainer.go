package ports

import (
	"context"

	"goamcc/domain/dataset"
)

// Explainer produces a human-readable rule naming the features most
// responsible for an instance's prediction, e.g. "age = senior AND income <= low"
type Explainer interface {
	Explain(ctx context.Context, x dataset.Instance) (string, error)
}
