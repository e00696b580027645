// Package dataset turns a raw table into the encoded dataset the
// counterfactual search works on: label-encoded target, categorical codes
// per feature, quartile bins for wide numeric columns, and a seeded
// train/validation/test split.
package dataset

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"goamcc/adapters/excel"
	"goamcc/domain/core"
	"goamcc/domain/dataset"
)

// Spec describes how to encode a table
type Spec struct {
	TargetIdx int
	// FeatureNames names every column, target included. Empty means the
	// table header, or f0..fN when there is none.
	FeatureNames []string
	TestSize     float64
	// ValidationSize is taken from what remains after the test split
	ValidationSize float64
	Seed           int64
	// Numeric columns with more distinct values than this are discretized
	CategoricalThreshold int
}

// DefaultSpec returns a spec with the usual split and threshold
func DefaultSpec(targetIdx int) Spec {
	return Spec{TargetIdx: targetIdx, TestSize: 0.2, CategoricalThreshold: 10}
}

// Build encodes table according to spec
func Build(table *excel.Table, spec Spec) (*dataset.Dataset, error) {
	width := table.Width()
	if spec.TargetIdx < 0 || spec.TargetIdx >= width {
		return nil, fmt.Errorf("target index %d outside table of %d columns", spec.TargetIdx, width)
	}
	if len(table.Rows) < 2 {
		return nil, fmt.Errorf("%w: %d rows", core.ErrInsufficientData, len(table.Rows))
	}
	if spec.CategoricalThreshold < 1 {
		spec.CategoricalThreshold = 10
	}

	names, err := columnNames(table, spec.FeatureNames, width)
	if err != nil {
		return nil, err
	}

	target := table.Column(spec.TargetIdx)
	classNames := sortedDistinct(target)
	if len(classNames) < 2 {
		return nil, fmt.Errorf("%w: target column %q has %d class", core.ErrInsufficientData, names[spec.TargetIdx], len(classNames))
	}
	classIndex := indexOf(classNames)

	ds := &dataset.Dataset{ClassNames: classNames, Domains: dataset.Domains{}}
	columns := make([][]int, 0, width-1)
	for col := 0; col < width; col++ {
		if col == spec.TargetIdx {
			continue
		}
		feature, codes := encodeColumn(names[col], table.Column(col), spec.CategoricalThreshold)
		idx := len(ds.Features)
		ds.Features = append(ds.Features, feature)
		ds.Domains[idx] = sequence(len(feature.Categories))
		columns = append(columns, codes)
	}

	rows := make([]dataset.Instance, len(table.Rows))
	labels := make([]dataset.Label, len(table.Rows))
	for r := range table.Rows {
		x := make(dataset.Instance, len(columns))
		for c, codes := range columns {
			x[c] = codes[r]
		}
		rows[r] = x
		labels[r] = dataset.Label(classIndex[target[r]])
	}

	ds.Train, ds.Validation, ds.Test = split(rows, labels, spec)
	return ds, nil
}

func columnNames(table *excel.Table, given []string, width int) ([]string, error) {
	switch {
	case len(given) > 0:
		if len(given) != width {
			return nil, fmt.Errorf("%d feature names for %d columns", len(given), width)
		}
		return normalizeNames(given), nil
	case len(table.Headers) == width:
		return normalizeNames(table.Headers), nil
	default:
		names := make([]string, width)
		for i := range names {
			names[i] = fmt.Sprintf("f%d", i)
		}
		return names, nil
	}
}

// normalizeNames makes every name a single token so rule text built from
// it can be parsed back into the same names
func normalizeNames(raw []string) []string {
	names := make([]string, len(raw))
	for i, name := range raw {
		names[i] = core.FeatureName(name)
	}
	return names
}

// encodeColumn returns the feature description and the code of every cell
func encodeColumn(name string, cells []string, threshold int) (dataset.Feature, []int) {
	values, numeric := parseFloats(cells)
	distinct := sortedDistinct(cells)

	if numeric && len(distinct) > threshold {
		cuts := quartiles(values)
		codes := make([]int, len(values))
		for i, v := range values {
			codes[i] = bin(cuts, v)
		}
		return dataset.Feature{
			Name:       name,
			Kind:       dataset.KindDiscretized,
			Categories: binNames(name, cuts),
			Cuts:       cuts,
		}, codes
	}

	if numeric {
		sort.SliceStable(distinct, func(i, j int) bool {
			a, _ := strconv.ParseFloat(distinct[i], 64)
			b, _ := strconv.ParseFloat(distinct[j], 64)
			return a < b
		})
	}
	index := indexOf(distinct)
	codes := make([]int, len(cells))
	for i, cell := range cells {
		codes[i] = index[cell]
	}
	return dataset.Feature{Name: name, Kind: dataset.KindCategorical, Categories: distinct}, codes
}

func parseFloats(cells []string) ([]float64, bool) {
	out := make([]float64, len(cells))
	for i, c := range cells {
		v, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// quartiles returns the distinct 25th, 50th and 75th percentiles
func quartiles(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var cuts []float64
	for _, p := range []float64{0.25, 0.5, 0.75} {
		q := stat.Quantile(p, stat.LinInterp, sorted, nil)
		if len(cuts) == 0 || q > cuts[len(cuts)-1] {
			cuts = append(cuts, q)
		}
	}
	return cuts
}

func bin(cuts []float64, v float64) int {
	for i, c := range cuts {
		if v <= c {
			return i
		}
	}
	return len(cuts)
}

func binNames(name string, cuts []float64) []string {
	out := make([]string, 0, len(cuts)+1)
	out = append(out, fmt.Sprintf("%s <= %.2f", name, cuts[0]))
	for i := 1; i < len(cuts); i++ {
		out = append(out, fmt.Sprintf("%.2f < %s <= %.2f", cuts[i-1], name, cuts[i]))
	}
	return append(out, fmt.Sprintf("%s > %.2f", name, cuts[len(cuts)-1]))
}

func split(rows []dataset.Instance, labels []dataset.Label, spec Spec) (train, validation, test dataset.Partition) {
	n := len(rows)
	perm := rand.New(rand.NewSource(spec.Seed)).Perm(n)

	nTest := clamp(int(float64(n)*spec.TestSize+0.5), 1, n-1)
	rest := n - nTest
	nVal := 0
	if spec.ValidationSize > 0 {
		nVal = clamp(int(float64(rest)*spec.ValidationSize+0.5), 0, rest-1)
	}

	take := func(idx []int) dataset.Partition {
		p := dataset.Partition{Rows: make([]dataset.Instance, len(idx)), Labels: make([]dataset.Label, len(idx))}
		for i, j := range idx {
			p.Rows[i] = rows[j]
			p.Labels[i] = labels[j]
		}
		return p
	}
	test = take(perm[:nTest])
	validation = take(perm[nTest : nTest+nVal])
	train = take(perm[nTest+nVal:])
	return train, validation, test
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sortedDistinct(cells []string) []string {
	seen := make(map[string]struct{}, len(cells))
	out := make([]string, 0)
	for _, c := range cells {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func indexOf(values []string) map[string]int {
	out := make(map[string]int, len(values))
	for i, v := range values {
		out[v] = i
	}
	return out
}

func sequence(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
