// Package scoring composes the feature builder, classifier adapter,
// decision engine, and explanation engine into the single-application
// and batch scoring flows. All operations are synchronous, pure
// functions of their inputs and the read-only model/config state, so a
// Service is safe to share across request handlers.
package scoring

import (
	"fmt"

	"lendguard/internal/decision"
	"lendguard/internal/explain"
	"lendguard/internal/features"
	"lendguard/internal/ml"

	"github.com/rs/zerolog/log"
)

// Result pairs the raw prediction with the policy decision for one
// application.
type Result struct {
	Prediction ml.Prediction     `json:"prediction"`
	Decision   decision.Decision `json:"decision"`
}

// BatchValidationError identifies the record that sank a batch call.
// The whole batch is rejected rather than partially scored.
type BatchValidationError struct {
	Index int
	Err   error
}

func (e *BatchValidationError) Error() string {
	return fmt.Sprintf("batch record %d: %v", e.Index, e.Err)
}

func (e *BatchValidationError) Unwrap() error { return e.Err }

// Service owns the scoring pipeline. Construct once at startup and
// reuse; it holds no mutable state.
type Service struct {
	builder   *features.Builder
	adapter   *ml.Adapter
	engine    *decision.Engine
	explainer *explain.Engine
}

// New wires the pipeline. Explainer may be nil when explanations are
// not served.
func New(builder *features.Builder, adapter *ml.Adapter, engine *decision.Engine, explainer *explain.Engine) (*Service, error) {
	if builder == nil || adapter == nil || engine == nil {
		return nil, fmt.Errorf("scoring service requires builder, adapter, and decision engine")
	}
	return &Service{
		builder:   builder,
		adapter:   adapter,
		engine:    engine,
		explainer: explainer,
	}, nil
}

// Score runs one application through build, predict, and decide.
func (s *Service) Score(app features.Application) (Result, error) {
	vec, err := s.builder.Build(app)
	if err != nil {
		return Result{}, err
	}

	pred, err := s.adapter.Predict(vec)
	if err != nil {
		return Result{}, err
	}

	dec, err := s.engine.Decide(pred.Probability)
	if err != nil {
		return Result{}, err
	}

	log.Debug().
		Str("label", string(dec.Label)).
		Float64("probability", pred.Probability).
		Float64("confidence", dec.Confidence).
		Msg("application scored")

	return Result{Prediction: pred, Decision: dec}, nil
}

// ScoreBatch scores a finite, caller-supplied sequence. The first
// malformed record fails the whole call with its index; no partial
// results are returned.
func (s *Service) ScoreBatch(apps []features.Application) ([]Result, error) {
	// Validate every record before scoring any, so a late failure
	// cannot leave the caller holding partial results.
	vectors := make([]features.Vector, len(apps))
	for i, app := range apps {
		vec, err := s.builder.Build(app)
		if err != nil {
			return nil, &BatchValidationError{Index: i, Err: err}
		}
		vectors[i] = vec
	}

	results := make([]Result, len(apps))
	for i, vec := range vectors {
		pred, err := s.adapter.Predict(vec)
		if err != nil {
			return nil, &BatchValidationError{Index: i, Err: err}
		}
		dec, err := s.engine.Decide(pred.Probability)
		if err != nil {
			return nil, &BatchValidationError{Index: i, Err: err}
		}
		results[i] = Result{Prediction: pred, Decision: dec}
	}
	return results, nil
}

// Explain attributes one application's prediction to its features.
func (s *Service) Explain(app features.Application) (*explain.Explanation, error) {
	if s.explainer == nil {
		return nil, fmt.Errorf("explanation engine not configured")
	}

	vec, err := s.builder.Build(app)
	if err != nil {
		return nil, err
	}
	return s.explainer.Explain(vec, s.adapter)
}

// FeatureImportances exposes the model's global weights.
func (s *Service) FeatureImportances() ([]ml.Importance, error) {
	return s.adapter.FeatureImportances()
}

// FeatureOrder returns the configured feature order.
func (s *Service) FeatureOrder() []string {
	return s.builder.Order()
}
