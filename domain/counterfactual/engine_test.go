package counterfactual

import (
	"context"
	"errors"
	"testing"
	"time"

	"goamcc/domain/core"
	"goamcc/domain/dataset"
	"goamcc/domain/transition"
	"goamcc/ports"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// countingClassifier wraps a prediction rule and counts calls
type countingClassifier struct {
	calls   int
	predict func(dataset.Instance) dataset.Label
}

func (c *countingClassifier) Predict(_ context.Context, x dataset.Instance) (dataset.Label, error) {
	c.calls++
	return c.predict(x), nil
}

type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Predict(ctx context.Context, x dataset.Instance) (dataset.Label, error) {
	args := m.Called(ctx, x)
	return args.Get(0).(dataset.Label), args.Error(1)
}

func scenarioDomains() dataset.Domains {
	return dataset.Domains{0: {0, 1, 2}, 1: {0, 1}}
}

// label 1 whenever feature 0 equals 2
func feature0IsTwo(x dataset.Instance) dataset.Label {
	if x[0] == 2 {
		return 1
	}
	return 0
}

func TestSearchScenarioSingleChange(t *testing.T) {
	clf := &countingClassifier{predict: feature0IsTwo}
	engine := NewEngine(clf, nil)

	res, err := engine.Search(context.Background(), dataset.Instance{0, 0}, 0, scenarioDomains())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, dataset.Instance{2, 0}, res.Instance)
	assert.Equal(t, dataset.Label(1), res.Label)
	assert.Equal(t, []int{0}, res.Changed)
	assert.Equal(t, 1, res.Depth)
	// seed, [1 0], [2 0]
	assert.Equal(t, 3, res.Expansions)
	assert.Equal(t, clf.calls, res.Expansions)
}

func TestSearchTransitionRuleBoundary(t *testing.T) {
	names := []string{"f0", "f1"}

	t.Run("rejecting decreases still reaches 2", func(t *testing.T) {
		rules, err := transition.Parse(map[string]string{"f0": "old <= new"}, names)
		require.NoError(t, err)

		res, err := NewEngine(&countingClassifier{predict: feature0IsTwo}, rules).
			Search(context.Background(), dataset.Instance{0, 0}, 0, scenarioDomains())
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, dataset.Instance{2, 0}, res.Instance)
	})

	t.Run("rejecting increases makes it unreachable", func(t *testing.T) {
		rules, err := transition.Parse(map[string]string{"f0": "old >= new"}, names)
		require.NoError(t, err)

		res, err := NewEngine(&countingClassifier{predict: feature0IsTwo}, rules).
			Search(context.Background(), dataset.Instance{0, 0}, 0, scenarioDomains())
		require.NoError(t, err)
		assert.Nil(t, res)
	})
}

func TestSearchSeedAlreadyDifferent(t *testing.T) {
	clf := &countingClassifier{predict: func(dataset.Instance) dataset.Label { return 1 }}
	orig := dataset.Instance{1, 0}

	res, err := NewEngine(clf, nil).Search(context.Background(), orig, 0, scenarioDomains())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, orig, res.Instance)
	assert.Empty(t, res.Changed)
	assert.Equal(t, 0, res.Depth)
	assert.Equal(t, 1, clf.calls)
}

func TestSearchEmptySearchSpace(t *testing.T) {
	never := func(dataset.Instance) dataset.Label { return 0 }

	cases := map[string]struct {
		domains dataset.Domains
		opts    []Option
	}{
		"empty domains":           {domains: dataset.Domains{}},
		"nil domains":             {domains: nil},
		"empty eligible list":     {domains: scenarioDomains(), opts: []Option{WithEligible()}},
		"all excluded":            {domains: scenarioDomains(), opts: []Option{WithExcluded(0, 1)}},
		"eligible not in domains": {domains: scenarioDomains(), opts: []Option{WithEligible(5, 6)}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			clf := &countingClassifier{predict: never}
			var stats Stats
			opts := append(tc.opts, WithStats(&stats))

			res, err := NewEngine(clf, nil).Search(context.Background(), dataset.Instance{0, 0}, 0, tc.domains, opts...)
			require.NoError(t, err)
			assert.Nil(t, res)
			assert.Equal(t, 1, clf.calls)
			assert.Equal(t, Stats{Expansions: 1, Enqueued: 1, MaxDepth: 0}, stats)
		})
	}
}

func TestSearchDoesNotMutateInput(t *testing.T) {
	orig := dataset.Instance{0, 0}
	snapshot := orig.Clone()

	res, err := NewEngine(&countingClassifier{predict: feature0IsTwo}, nil).
		Search(context.Background(), orig, 0, scenarioDomains())
	require.NoError(t, err)
	require.NotNil(t, res)

	if diff := cmp.Diff(snapshot, orig); diff != "" {
		t.Fatalf("input mutated (-want +got):\n%s", diff)
	}
	res.Instance[1] = 9
	assert.Equal(t, snapshot, orig)
}

// needs two changes: label flips only when f0 == 1 and f2 == 1
func TestSearchMinimality(t *testing.T) {
	domains := dataset.Domains{0: {0, 1}, 1: {0, 1, 2}, 2: {0, 1}, 3: {0, 1}}
	both := func(x dataset.Instance) dataset.Label {
		if x[0] == 1 && x[2] == 1 {
			return 1
		}
		// a three-change counterfactual also exists
		if x[1] == 2 && x[3] == 1 && x[0] == 1 {
			return 1
		}
		return 0
	}

	var maxSeen int
	res, err := NewEngine(&countingClassifier{predict: both}, nil).Search(
		context.Background(), dataset.Instance{0, 0, 0, 0}, 0, domains,
		WithOnDequeue(func(n Node) {
			// Level order: depth never decreases.
			require.GreaterOrEqual(t, n.Depth, maxSeen)
			require.Equal(t, len(n.Changed), n.Depth)
			maxSeen = n.Depth
		}),
	)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, dataset.Instance{1, 0, 1, 0}, res.Instance)
	assert.Equal(t, []int{0, 2}, res.Changed)
	assert.Equal(t, 2, res.Depth)
	assert.Len(t, dataset.Instance{0, 0, 0, 0}.Diff(res.Instance), res.Depth)
}

func TestSearchRespectsExcluded(t *testing.T) {
	// f0 would flip the label, but it is excluded; f1 == 1 also flips it.
	clf := &countingClassifier{predict: func(x dataset.Instance) dataset.Label {
		if x[0] == 2 || x[1] == 1 {
			return 1
		}
		return 0
	}}

	res, err := NewEngine(clf, nil).Search(context.Background(), dataset.Instance{0, 0}, 0,
		scenarioDomains(), WithExcluded(0))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 0, res.Instance[0])
	assert.Equal(t, dataset.Instance{0, 1}, res.Instance)
}

func TestSearchRespectsEligible(t *testing.T) {
	domains := dataset.Domains{0: {0, 1}, 1: {0, 1}, 2: {0, 1}}
	anyOne := func(x dataset.Instance) dataset.Label {
		if x[0]+x[1]+x[2] > 0 {
			return 1
		}
		return 0
	}

	orig := dataset.Instance{0, 0, 0}
	res, err := NewEngine(&countingClassifier{predict: anyOne}, nil).Search(
		context.Background(), orig, 0, domains, WithEligible(2, 2, 7))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, []int{2}, res.Changed)
	for _, idx := range orig.Diff(res.Instance) {
		assert.Contains(t, []int{2}, idx)
	}
}

func TestSearchRejectAllRuleFreezesFeature(t *testing.T) {
	rules := transition.Rules{0: func(int, int) bool { return false }}
	clf := &countingClassifier{predict: feature0IsTwo}

	res, err := NewEngine(clf, rules).Search(context.Background(), dataset.Instance{0, 0}, 0, scenarioDomains())
	require.NoError(t, err)
	assert.Nil(t, res)
	// seed plus the single f1 substitution
	assert.Equal(t, 2, clf.calls)
}

func TestSearchExhaustsWithoutRevisitingFeatures(t *testing.T) {
	domains := dataset.Domains{0: {0, 1, 2}, 1: {0, 1}}
	var nodes []Node
	clf := &countingClassifier{predict: func(dataset.Instance) dataset.Label { return 0 }}

	res, err := NewEngine(clf, nil).Search(context.Background(), dataset.Instance{0, 0}, 0, domains,
		WithOnDequeue(func(n Node) { nodes = append(nodes, n) }))
	require.NoError(t, err)
	assert.Nil(t, res)

	// 1 seed + 3 singles + 2*1 (f0 then f1) + 1*2 (f1 then f0)
	assert.Len(t, nodes, 1+3+2+2)
	for _, n := range nodes {
		seen := map[int]bool{}
		for _, idx := range n.Changed {
			assert.False(t, seen[idx], "feature %d changed twice in %v", idx, n.Changed)
			seen[idx] = true
		}
	}
}

func TestSearchMaxDepth(t *testing.T) {
	domains := dataset.Domains{0: {0, 1}, 1: {0, 1}}
	both := func(x dataset.Instance) dataset.Label {
		if x[0] == 1 && x[1] == 1 {
			return 1
		}
		return 0
	}
	var stats Stats

	res, err := NewEngine(&countingClassifier{predict: both}, nil).Search(
		context.Background(), dataset.Instance{0, 0}, 0, domains, WithMaxDepth(1), WithStats(&stats))
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 1, stats.MaxDepth)
	assert.Equal(t, 3, stats.Expansions)
}

func TestSearchIdempotent(t *testing.T) {
	domains := dataset.Domains{0: {0, 1, 2, 3}, 1: {0, 1, 2}, 2: {0, 1}}
	rule := func(x dataset.Instance) dataset.Label {
		if x[1] == 2 && x[2] == 1 {
			return 1
		}
		return 0
	}
	engine := NewEngine(ports.ClassifierFunc(func(_ context.Context, x dataset.Instance) (dataset.Label, error) {
		return rule(x), nil
	}), nil)

	first, err := engine.Search(context.Background(), dataset.Instance{3, 0, 0}, 0, domains)
	require.NoError(t, err)
	second, err := engine.Search(context.Background(), dataset.Instance{3, 0, 0}, 0, domains)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("searches differ (-first +second):\n%s", diff)
	}
}

func TestSearchPropagatesClassifierError(t *testing.T) {
	boom := errors.New("model server down")
	clf := new(MockClassifier)
	clf.On("Predict", mock.Anything, dataset.Instance{0, 0}).Return(dataset.Label(0), nil).Once()
	clf.On("Predict", mock.Anything, mock.Anything).Return(dataset.Label(0), boom)

	res, err := NewEngine(clf, nil).Search(context.Background(), dataset.Instance{0, 0}, 0, scenarioDomains())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
	assert.False(t, core.IsTimeoutError(err))
	clf.AssertNumberOfCalls(t, "Predict", 2)
}

func TestSearchStopsOnExpiredContext(t *testing.T) {
	// Large space with no counterfactual; the deadline must end it.
	domains := dataset.Domains{}
	for i := 0; i < 6; i++ {
		domains[i] = []int{0, 1, 2}
	}
	clf := ports.ClassifierFunc(func(context.Context, dataset.Instance) (dataset.Label, error) {
		time.Sleep(time.Millisecond)
		return 0, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := NewEngine(clf, nil).Search(ctx, make(dataset.Instance, 6), 0, domains)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrTimeoutExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSearchRejectsIndexOutsideInstance(t *testing.T) {
	res, err := NewEngine(&countingClassifier{predict: feature0IsTwo}, nil).
		Search(context.Background(), dataset.Instance{0}, 0, scenarioDomains())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrInvalidInstance)
}
