// Package decision maps classifier probabilities to categorical loan
// decisions via a configurable threshold policy. The engine is a pure
// function of (probability, config): identical inputs always yield the
// identical Decision, including the reason text.
package decision

import (
	"fmt"
	"math"
)

// Label is the categorical outcome of a scored application.
type Label string

const (
	Approve      Label = "APPROVE"
	Decline      Label = "DECLINE"
	ManualReview Label = "MANUAL_REVIEW"
)

// Decision is the derived, immutable outcome for one probability.
type Decision struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// InvalidThresholdConfig reports operator misconfiguration of the
// threshold policy. It must be caught at startup, not per request.
type InvalidThresholdConfig struct {
	High   float64
	Low    float64
	Reason string
}

func (e *InvalidThresholdConfig) Error() string {
	return fmt.Sprintf("invalid threshold config (high=%.4f low=%.4f): %s", e.High, e.Low, e.Reason)
}

// Config selects the policy variant and its thresholds. In the binary
// variant only HighThreshold is consulted.
type Config struct {
	HighThreshold float64
	LowThreshold  float64
	ThreeTier     bool
}

// Engine applies the threshold policy. Immutable after construction.
type Engine struct {
	cfg Config
}

// NewEngine validates the policy up front. A three-tier band with
// high <= low can match both inclusive comparisons at once, so it is
// rejected here rather than resolved per request.
func NewEngine(cfg Config) (*Engine, error) {
	if !inUnitInterval(cfg.HighThreshold) {
		return nil, &InvalidThresholdConfig{High: cfg.HighThreshold, Low: cfg.LowThreshold,
			Reason: "high threshold must be in [0,1]"}
	}
	if cfg.ThreeTier {
		if !inUnitInterval(cfg.LowThreshold) {
			return nil, &InvalidThresholdConfig{High: cfg.HighThreshold, Low: cfg.LowThreshold,
				Reason: "low threshold must be in [0,1]"}
		}
		if cfg.HighThreshold <= cfg.LowThreshold {
			return nil, &InvalidThresholdConfig{High: cfg.HighThreshold, Low: cfg.LowThreshold,
				Reason: "high threshold must be strictly greater than low threshold"}
		}
	}
	return &Engine{cfg: cfg}, nil
}

// Decide maps a probability to a Decision. Boundary values belong to
// the side whose comparison is inclusive: >= approves, <= declines.
func (e *Engine) Decide(probability float64) (Decision, error) {
	if math.IsNaN(probability) || probability < 0 || probability > 1 {
		return Decision{}, fmt.Errorf("probability %f outside [0,1]", probability)
	}

	if !e.cfg.ThreeTier {
		if probability >= e.cfg.HighThreshold {
			return approveDecision(probability), nil
		}
		return declineDecision(probability), nil
	}

	switch {
	case probability >= e.cfg.HighThreshold:
		return approveDecision(probability), nil
	case probability <= e.cfg.LowThreshold:
		return declineDecision(probability), nil
	default:
		return e.reviewDecision(probability), nil
	}
}

func approveDecision(p float64) Decision {
	return Decision{
		Label:      Approve,
		Confidence: p,
		Reason:     fmt.Sprintf("Strong approval signal (confidence: %.2f%%)", p*100),
	}
}

func declineDecision(p float64) Decision {
	return Decision{
		Label:      Decline,
		Confidence: 1 - p,
		Reason:     fmt.Sprintf("Strong decline signal (confidence: %.2f%%)", (1-p)*100),
	}
}

// reviewDecision confidence is the distance from the nearest threshold
// normalized by half the review band width, so it peaks at 1 in the
// middle of the band and falls to 0 at either edge.
func (e *Engine) reviewDecision(p float64) Decision {
	halfBand := (e.cfg.HighThreshold - e.cfg.LowThreshold) / 2
	dist := math.Min(p-e.cfg.LowThreshold, e.cfg.HighThreshold-p)
	conf := dist / halfBand

	return Decision{
		Label:      ManualReview,
		Confidence: conf,
		Reason:     fmt.Sprintf("Borderline case requiring manual review (confidence: %.2f%%)", conf*100),
	}
}

func inUnitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
