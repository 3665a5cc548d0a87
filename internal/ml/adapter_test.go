package ml

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubModel returns a fixed probability regardless of input.
type stubModel struct {
	prob     float64
	err      error
	features []string
}

func (s *stubModel) PredictProba(vec []float64) (float64, error) {
	return s.prob, s.err
}

func (s *stubModel) FeatureImportances() []Importance {
	out := make([]Importance, len(s.features))
	for i, f := range s.features {
		out[i] = Importance{Feature: f, Weight: 0.1}
	}
	return out
}

func testFeatures() []string {
	return []string{"income", "loan_amount", "credit_score"}
}

func TestNewAdapter_NilModel(t *testing.T) {
	_, err := NewAdapter(nil, testFeatures(), nil, nil)

	var notLoaded *ModelNotLoadedError
	require.True(t, errors.As(err, &notLoaded), "expected ModelNotLoadedError, got %v", err)
}

func TestNewAdapter_FeatureCountMismatch(t *testing.T) {
	model := &stubModel{prob: 0.5, features: []string{"income"}}
	_, err := NewAdapter(model, testFeatures(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 features")
}

func TestAdapter_PredictProba(t *testing.T) {
	metrics := &MockMetrics{}
	model := &stubModel{prob: 0.82, features: testFeatures()}
	adapter, err := NewAdapter(model, testFeatures(), nil, metrics)
	require.NoError(t, err)

	prob, err := adapter.PredictProba([]float64{52000, 18000, 710})
	require.NoError(t, err)
	assert.Equal(t, 0.82, prob)
	assert.Equal(t, 1, metrics.predictions)
	assert.Equal(t, 1, metrics.latencies)
	assert.Equal(t, []float64{0.82}, metrics.scores)
}

func TestAdapter_VectorLengthContract(t *testing.T) {
	metrics := &MockMetrics{}
	model := &stubModel{prob: 0.5, features: testFeatures()}
	adapter, _ := NewAdapter(model, testFeatures(), nil, metrics)

	_, err := adapter.PredictProba([]float64{1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 3 features, got 2")
	assert.Equal(t, 1, metrics.failures)
	assert.Zero(t, metrics.predictions)
}

func TestAdapter_RejectsNonFiniteFeatures(t *testing.T) {
	model := &stubModel{prob: 0.5, features: testFeatures()}
	adapter, _ := NewAdapter(model, testFeatures(), nil, &MockMetrics{})

	for _, bad := range []float64{math.NaN(), math.Inf(1)} {
		_, err := adapter.PredictProba([]float64{1, bad, 3})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "loan_amount")
	}
}

func TestAdapter_RejectsInvalidProbability(t *testing.T) {
	for _, bad := range []float64{-0.1, 1.5, math.NaN()} {
		model := &stubModel{prob: bad, features: testFeatures()}
		adapter, _ := NewAdapter(model, testFeatures(), nil, &MockMetrics{})

		_, err := adapter.PredictProba([]float64{1, 2, 3})
		require.Error(t, err, "probability %v should be rejected", bad)
	}
}

func TestAdapter_PropagatesModelError(t *testing.T) {
	model := &stubModel{err: fmt.Errorf("boom"), features: testFeatures()}
	adapter, _ := NewAdapter(model, testFeatures(), nil, &MockMetrics{})

	_, err := adapter.PredictProba([]float64{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestAdapter_Predict_ClassCut(t *testing.T) {
	testCases := []struct {
		prob  float64
		class int
	}{
		{0.49, 0},
		{0.5, 1},
		{0.91, 1},
		{0.0, 0},
	}

	for _, tc := range testCases {
		model := &stubModel{prob: tc.prob, features: testFeatures()}
		adapter, _ := NewAdapter(model, testFeatures(), nil, nil)

		pred, err := adapter.Predict([]float64{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t, tc.class, pred.Class, "probability %v", tc.prob)
		assert.Equal(t, tc.prob, pred.Probability)
	}
}

func TestAdapter_NilSafety(t *testing.T) {
	var adapter *Adapter

	_, err := adapter.PredictProba([]float64{1, 2, 3})
	var notLoaded *ModelNotLoadedError
	require.True(t, errors.As(err, &notLoaded))

	_, err = adapter.FeatureImportances()
	require.True(t, errors.As(err, &notLoaded))
}

func TestAdapter_ModelAgeMetric(t *testing.T) {
	metrics := &MockMetrics{}
	md := &ModelMetadata{Version: "v1", TrainedAt: time.Now().Add(-time.Hour)}
	model := &stubModel{prob: 0.5, features: testFeatures()}

	_, err := NewAdapter(model, testFeatures(), md, metrics)
	require.NoError(t, err)
	assert.InDelta(t, time.Hour.Seconds(), metrics.modelAge, 5.0)
}
