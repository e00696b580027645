package dataset

import (
	"fmt"
	"sort"

	"goamcc/domain/core"
)

// Instance is an ordered, fixed-length vector of encoded feature values.
// Categorical features hold the index of their category in the feature's
// domain.
type Instance []int

// Clone returns an independent copy of the instance
func (x Instance) Clone() Instance {
	if x == nil {
		return nil
	}
	out := make(Instance, len(x))
	copy(out, x)
	return out
}

// With returns a copy of x with feature index set to value; x is untouched
func (x Instance) With(index, value int) Instance {
	out := x.Clone()
	out[index] = value
	return out
}

// Diff returns the indices where x and other differ, ascending
func (x Instance) Diff(other Instance) []int {
	var idx []int
	for i := range x {
		if i >= len(other) || x[i] != other[i] {
			idx = append(idx, i)
		}
	}
	return idx
}

// Label is a predicted or true class, encoded as the index into ClassNames
type Label int

// Domains maps a feature index to the ordered codes it may take.
// It is read-only once built.
type Domains map[int][]int

// Indices returns the feature indices present in the map, ascending
func (d Domains) Indices() []int {
	idx := make([]int, 0, len(d))
	for i := range d {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Contains reports whether code is a valid value for feature index
func (d Domains) Contains(index, code int) bool {
	for _, c := range d[index] {
		if c == code {
			return true
		}
	}
	return false
}

// FeatureKind tells how a column was encoded
type FeatureKind string

const (
	KindCategorical FeatureKind = "categorical"
	KindDiscretized FeatureKind = "discretized"
)

// Feature describes one encoded column
type Feature struct {
	Name       string      `json:"name" yaml:"name"`
	Kind       FeatureKind `json:"kind" yaml:"kind"`
	Categories []string    `json:"categories" yaml:"categories"`
	// Cuts holds the quartile boundaries of a discretized column
	Cuts []float64 `json:"cuts,omitempty" yaml:"cuts,omitempty"`
}

// Partition is a set of encoded rows with their true labels
type Partition struct {
	Rows   []Instance `json:"rows"`
	Labels []Label    `json:"labels"`
}

// Len returns the number of rows
func (p Partition) Len() int { return len(p.Rows) }

// Dataset is the encoded dataset description the search consumes
type Dataset struct {
	Features   []Feature `json:"features"`
	ClassNames []string  `json:"class_names"`
	Domains    Domains   `json:"domains"`

	Train      Partition `json:"train"`
	Validation Partition `json:"validation"`
	Test       Partition `json:"test"`
}

// FeatureNames returns the ordered feature names used for index resolution
func (d *Dataset) FeatureNames() []string {
	names := make([]string, len(d.Features))
	for i, f := range d.Features {
		names[i] = f.Name
	}
	return names
}

// FeatureIndex resolves a feature name to its column index
func (d *Dataset) FeatureIndex(name string) (int, error) {
	name = core.FeatureName(name)
	for i, f := range d.Features {
		if f.Name == name {
			return i, nil
		}
	}
	return -1, core.NewUnknownFeatureError(name)
}

// CategoryName renders the category of feature index for code
func (d *Dataset) CategoryName(index, code int) string {
	if index < 0 || index >= len(d.Features) {
		return fmt.Sprintf("%d", code)
	}
	cats := d.Features[index].Categories
	if code < 0 || code >= len(cats) {
		return fmt.Sprintf("%d", code)
	}
	return cats[code]
}

// ClassIndex resolves a class name to its label
func (d *Dataset) ClassIndex(name string) (Label, error) {
	for i, c := range d.ClassNames {
		if c == name {
			return Label(i), nil
		}
	}
	return -1, fmt.Errorf("%w: %q", core.ErrUnknownClass, name)
}

// Validate checks that an instance fits the dataset's shape and domains
func (d *Dataset) Validate(x Instance) error {
	if len(x) != len(d.Features) {
		return fmt.Errorf("%w: got %d features, want %d", core.ErrInvalidInstance, len(x), len(d.Features))
	}
	for i, v := range x {
		if _, ok := d.Domains[i]; ok && !d.Domains.Contains(i, v) {
			return fmt.Errorf("%w: feature %s has code %d outside its domain", core.ErrInvalidInstance, d.Features[i].Name, v)
		}
	}
	return nil
}
