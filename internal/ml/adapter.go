package ml

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines the metrics methods needed by the adapter.
type MetricsInterface interface {
	PredictionsInc()
	PredictionFailuresInc()
	PredictionLatencyObserve(float64)
	PredictionScoreObserve(float64)
	ModelAgeSet(float64)
}

// ModelNotLoadedError reports that the adapter was invoked before a
// valid classifier was attached. Fatal until initialization completes.
type ModelNotLoadedError struct{}

func (e *ModelNotLoadedError) Error() string {
	return "classifier adapter invoked before a model was loaded"
}

// Adapter wraps a loaded Model and enforces the feature-vector contract
// on both sides of inference. It holds no mutable state after
// construction and is safe for concurrent callers.
type Adapter struct {
	model        Model
	featureNames []string
	metadata     *ModelMetadata
	metrics      MetricsInterface
}

// NewAdapter attaches a loaded model. The feature names fix the vector
// length and order the adapter will accept; a model whose importance
// vector disagrees with them is a fatal contract violation.
func NewAdapter(model Model, featureNames []string, metadata *ModelMetadata, metrics MetricsInterface) (*Adapter, error) {
	if model == nil {
		return nil, &ModelNotLoadedError{}
	}
	if len(featureNames) == 0 {
		return nil, fmt.Errorf("adapter requires a non-empty feature order")
	}
	if imp := model.FeatureImportances(); len(imp) != len(featureNames) {
		return nil, fmt.Errorf("model reports %d features, adapter configured for %d", len(imp), len(featureNames))
	}

	if metadata != nil && metrics != nil && !metadata.TrainedAt.IsZero() {
		metrics.ModelAgeSet(time.Since(metadata.TrainedAt).Seconds())
	}

	return &Adapter{
		model:        model,
		featureNames: featureNames,
		metadata:     metadata,
		metrics:      metrics,
	}, nil
}

// FeatureNames returns the trained feature order.
func (a *Adapter) FeatureNames() []string {
	out := make([]string, len(a.featureNames))
	copy(out, a.featureNames)
	return out
}

// Metadata returns the model metadata, or nil when none was loaded.
func (a *Adapter) Metadata() *ModelMetadata {
	return a.metadata
}

// PredictProba runs one inference and validates the result is a real
// probability. Vector length mismatches are contract violations, not
// tolerated defaults.
func (a *Adapter) PredictProba(vec []float64) (float64, error) {
	if a == nil || a.model == nil {
		return 0, &ModelNotLoadedError{}
	}

	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
		}
	}()

	if len(vec) != len(a.featureNames) {
		a.fail()
		return 0, fmt.Errorf("expected %d features, got %d", len(a.featureNames), len(vec))
	}
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			a.fail()
			return 0, fmt.Errorf("feature %d (%s) is not finite", i, a.featureNames[i])
		}
	}

	prob, err := a.model.PredictProba(vec)
	if err != nil {
		a.fail()
		log.Error().Err(err).Msg("model inference failed")
		return 0, fmt.Errorf("model inference: %w", err)
	}

	if math.IsNaN(prob) || prob < 0 || prob > 1 {
		a.fail()
		log.Error().Float64("probability", prob).Msg("model returned an invalid probability")
		return 0, fmt.Errorf("model returned invalid probability %f", prob)
	}

	if a.metrics != nil {
		a.metrics.PredictionsInc()
		a.metrics.PredictionScoreObserve(prob)
	}
	return prob, nil
}

// Predict wraps PredictProba with the 0.5 class cut.
func (a *Adapter) Predict(vec []float64) (Prediction, error) {
	prob, err := a.PredictProba(vec)
	if err != nil {
		return Prediction{}, err
	}

	class := 0
	if prob >= 0.5 {
		class = 1
	}
	return Prediction{Probability: prob, Class: class}, nil
}

// FeatureImportances returns the model's global weights in trained
// order, clamped non-negative.
func (a *Adapter) FeatureImportances() ([]Importance, error) {
	if a == nil || a.model == nil {
		return nil, &ModelNotLoadedError{}
	}

	imps := a.model.FeatureImportances()
	out := make([]Importance, len(imps))
	for i, imp := range imps {
		w := imp.Weight
		if w < 0 || math.IsNaN(w) {
			w = 0
		}
		out[i] = Importance{Feature: imp.Feature, Weight: w}
	}
	return out, nil
}

func (a *Adapter) fail() {
	if a.metrics != nil {
		a.metrics.PredictionFailuresInc()
	}
}
