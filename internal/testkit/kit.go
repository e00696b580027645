// Package testkit provides fixtures shared by package tests: a seeded
// credit dataset and classifier doubles.
package testkit

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"goamcc/domain/dataset"
	"goamcc/ports"
)

// LabelFunc is a pure decision over an encoded instance
type LabelFunc func(x dataset.Instance) dataset.Label

// CountingClassifier wraps a decision with a query counter and an optional
// per-query delay
type CountingClassifier struct {
	decide LabelFunc
	delay  time.Duration
	calls  atomic.Int64
}

var _ ports.Classifier = (*CountingClassifier)(nil)

// NewCountingClassifier creates a classifier that calls decide
func NewCountingClassifier(decide LabelFunc) *CountingClassifier {
	return &CountingClassifier{decide: decide}
}

// WithDelay makes every query sleep for d or until ctx is done
func (c *CountingClassifier) WithDelay(d time.Duration) *CountingClassifier {
	c.delay = d
	return c
}

// Predict implements ports.Classifier
func (c *CountingClassifier) Predict(ctx context.Context, x dataset.Instance) (dataset.Label, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return -1, ctx.Err()
		}
	}
	return c.decide(x), nil
}

// Calls returns the number of queries so far
func (c *CountingClassifier) Calls() int {
	return int(c.calls.Load())
}

// StaticExplainer returns a fixed rule per instance, keyed by the instance
// values, and a default rule otherwise
type StaticExplainer struct {
	mu      sync.Mutex
	Default string
	Rules   map[string]string
	Err     error
	Seen    []dataset.Instance
}

var _ ports.Explainer = (*StaticExplainer)(nil)

// Explain implements ports.Explainer
func (s *StaticExplainer) Explain(_ context.Context, x dataset.Instance) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Seen = append(s.Seen, x.Clone())
	if s.Err != nil {
		return "", s.Err
	}
	if rule, ok := s.Rules[Key(x)]; ok {
		return rule, nil
	}
	return s.Default, nil
}

// Key renders an instance as a map key
func Key(x dataset.Instance) string {
	parts := make([]string, len(x))
	for i, v := range x {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
