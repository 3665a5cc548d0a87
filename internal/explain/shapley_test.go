package explain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearModel is additive, so exact Shapley contributions are
// w_i * (x_i - mean(background_i)) and easy to assert against.
type linearModel struct {
	weights   []float64
	intercept float64
}

func (m *linearModel) PredictProba(vec []float64) (float64, error) {
	z := m.intercept
	for i, v := range vec {
		z += m.weights[i] * v
	}
	return z, nil
}

// logisticModel exercises the nonlinear path.
type logisticModel struct {
	weights []float64
}

func (m *logisticModel) PredictProba(vec []float64) (float64, error) {
	var z float64
	for i, v := range vec {
		z += m.weights[i] * v
	}
	return 1.0 / (1.0 + math.Exp(-z)), nil
}

func newEngine(t *testing.T, names []string, background [][]float64) *Engine {
	t.Helper()
	e, err := NewEngine(Config{FeatureNames: names, Background: background})
	require.NoError(t, err)
	return e
}

func TestExplain_LinearModelExact(t *testing.T) {
	names := []string{"a", "b", "c"}
	background := [][]float64{
		{1, 0, 2},
		{3, 0, 4},
	}
	model := &linearModel{weights: []float64{0.5, 2.0, -1.0}, intercept: 0.1}
	e := newEngine(t, names, background)

	vec := []float64{4, 1, 3}
	exp, err := e.Explain(vec, model)
	require.NoError(t, err)

	// Background means: a=2, b=0, c=3.
	want := map[string]float64{
		"a": 0.5 * (4 - 2),  // 1.0
		"b": 2.0 * (1 - 0),  // 2.0
		"c": -1.0 * (3 - 3), // 0.0
	}
	for _, c := range exp.Contributions {
		assert.InDelta(t, want[c.Feature], c.Contribution, 1e-9, "feature %s", c.Feature)
	}

	// Largest magnitude first.
	assert.Equal(t, "b", exp.Contributions[0].Feature)
	assert.Equal(t, 1, exp.Contributions[0].Rank)
	assert.Equal(t, "c", exp.Contributions[2].Feature)
}

func TestExplain_Additivity(t *testing.T) {
	names := []string{"a", "b", "c", "d"}
	background := [][]float64{
		{0.1, -0.2, 0.5, 1.0},
		{-0.3, 0.4, 0.0, -1.0},
		{0.7, 0.7, -0.5, 0.2},
	}
	model := &logisticModel{weights: []float64{1.5, -2.0, 0.8, 0.3}}
	e := newEngine(t, names, background)

	vectors := [][]float64{
		{1, 1, 1, 1},
		{-2, 0.5, 3, -0.1},
		{0, 0, 0, 0},
	}
	for _, vec := range vectors {
		exp, err := e.Explain(vec, model)
		require.NoError(t, err)

		sum := exp.BaseValue
		for _, c := range exp.Contributions {
			sum += c.Contribution
		}
		assert.InDelta(t, exp.Probability, sum, 1e-9, "vector %v", vec)
	}
}

func TestExplain_FullWidthVectorAdditivity(t *testing.T) {
	// Nine features exercise every coalition size up to the full set on
	// the exact path, matching the default loan vector width.
	names := []string{"f1", "f2", "f3", "f4", "f5", "f6", "f7", "f8", "f9"}
	background := [][]float64{
		{40000, 15000, 650, 5, 0.35, 3, 1, 0, 1},
		{25000, 8000, 580, 2, 0.50, 2, 0, 1, 0},
	}
	model := &logisticModel{weights: []float64{
		0.00001, -0.00002, 0.015, 0.05, -3.0, 0.1, 0.4, -0.3, 0.2,
	}}
	e := newEngine(t, names, background)

	vec := []float64{52000, 18000, 710, 6, 0.31, 4, 1, 0, 2}
	exp, err := e.Explain(vec, model)
	require.NoError(t, err)
	require.Len(t, exp.Contributions, len(names))

	sum := exp.BaseValue
	for _, c := range exp.Contributions {
		sum += c.Contribution
	}
	assert.InDelta(t, exp.Probability, sum, 1e-9)
}

func TestExplain_Consistency(t *testing.T) {
	// Increasing a feature with positive weight strictly increases the
	// model's marginal output; its contribution must not decrease.
	names := []string{"a", "b"}
	background := [][]float64{{0, 0}, {1, 1}}
	model := &logisticModel{weights: []float64{2.0, 1.0}}
	e := newEngine(t, names, background)

	base, err := e.Explain([]float64{0.5, 0.5}, model)
	require.NoError(t, err)
	bumped, err := e.Explain([]float64{1.5, 0.5}, model)
	require.NoError(t, err)

	assert.GreaterOrEqual(t,
		contributionOf(bumped, "a"), contributionOf(base, "a"))
}

func TestExplain_Deterministic(t *testing.T) {
	names := []string{"a", "b", "c"}
	background := [][]float64{{0, 0, 0}, {1, 2, 3}}
	model := &logisticModel{weights: []float64{0.5, -1.0, 0.25}}
	e := newEngine(t, names, background)

	vec := []float64{0.3, -0.7, 2.1}
	first, err := e.Explain(vec, model)
	require.NoError(t, err)
	second, err := e.Explain(vec, model)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExplain_TiesKeepVectorOrder(t *testing.T) {
	// Symmetric model and symmetric instance: equal contributions for a
	// and b must rank in original feature order.
	names := []string{"a", "b"}
	background := [][]float64{{0, 0}}
	model := &linearModel{weights: []float64{1.0, 1.0}}
	e := newEngine(t, names, background)

	exp, err := e.Explain([]float64{2, 2}, model)
	require.NoError(t, err)

	assert.Equal(t, "a", exp.Contributions[0].Feature)
	assert.Equal(t, "b", exp.Contributions[1].Feature)
	assert.Equal(t, 1, exp.Contributions[0].Rank)
	assert.Equal(t, 2, exp.Contributions[1].Rank)
}

func TestExplain_SampledPathAdditivity(t *testing.T) {
	// Force the sampling path with a low exact cutoff; additivity must
	// still hold exactly because permutation contributions telescope.
	names := []string{"a", "b", "c", "d", "e"}
	background := [][]float64{
		{0, 0, 0, 0, 0},
		{1, -1, 2, 0.5, -0.5},
	}
	e, err := NewEngine(Config{
		FeatureNames:       names,
		Background:         background,
		MaxExactFeatures:   2,
		PermutationSamples: 16,
		Seed:               7,
	})
	require.NoError(t, err)

	model := &logisticModel{weights: []float64{1, 0.5, -0.5, 2, -1}}
	vec := []float64{0.4, -0.2, 1.1, 0.9, -1.3}

	exp, err := e.Explain(vec, model)
	require.NoError(t, err)

	sum := exp.BaseValue
	for _, c := range exp.Contributions {
		sum += c.Contribution
	}
	assert.InDelta(t, exp.Probability, sum, 1e-9)

	// Seeded sampling is reproducible.
	again, err := e.Explain(vec, model)
	require.NoError(t, err)
	assert.Equal(t, exp, again)
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(Config{FeatureNames: nil, Background: [][]float64{{1}}})
	require.Error(t, err)

	_, err = NewEngine(Config{FeatureNames: []string{"a"}, Background: nil})
	require.Error(t, err)

	_, err = NewEngine(Config{FeatureNames: []string{"a", "b"}, Background: [][]float64{{1}}})
	require.Error(t, err)
}

func TestExplain_VectorLengthMismatch(t *testing.T) {
	e := newEngine(t, []string{"a", "b"}, [][]float64{{0, 0}})
	model := &linearModel{weights: []float64{1, 1}}

	_, err := e.Explain([]float64{1}, model)
	require.Error(t, err)
}

func contributionOf(exp *Explanation, feature string) float64 {
	for _, c := range exp.Contributions {
		if c.Feature == feature {
			return c.Contribution
		}
	}
	return math.NaN()
}
