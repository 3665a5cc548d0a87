// Package ml wraps the trained loan classifier behind a small adapter
// contract: given a fixed-order feature vector, return an approval
// probability and, on request, ordered global feature importances.
//
// Training happens offline; this package only consumes what the trainer
// exports (a JSON weights file plus a metadata sidecar). The adapter
// treats the model as immutable after load, so it is safe for
// concurrent read-only inference.
package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Model is the opaque classifier capability the core depends on.
// Implementations must be immutable after load or internally
// thread-safe for read-only inference.
type Model interface {
	// PredictProba returns the approval probability in [0,1] for a
	// feature vector in the trained order.
	PredictProba(vec []float64) (float64, error)

	// FeatureImportances returns non-negative global weights in the
	// trained feature order.
	FeatureImportances() []Importance
}

// Importance is one feature's global weight.
type Importance struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// Prediction is the derived, immutable output of one inference call.
type Prediction struct {
	Probability float64 `json:"probability"`
	Class       int     `json:"class"`
}

// ModelMetadata describes the trained model artifact.
type ModelMetadata struct {
	Version       string    `json:"version"`
	TrainedAt     time.Time `json:"trained_at"`
	Features      []string  `json:"features"`
	Accuracy      float64   `json:"accuracy"`
	TrainingRows  int       `json:"training_rows"`
	ValidationAcc float64   `json:"validation_accuracy"`
}

// LogisticModel is a logistic-regression classifier loaded from the
// trainer's JSON export.
type LogisticModel struct {
	Features  []string  `json:"features"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// LoadLogisticModel reads and validates a JSON weights file.
func LoadLogisticModel(path string) (*LogisticModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file %s: %w", path, err)
	}

	var m LogisticModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model file %s: %w", path, err)
	}

	if len(m.Features) == 0 {
		return nil, fmt.Errorf("model file %s declares no features", path)
	}
	if len(m.Weights) != len(m.Features) {
		return nil, fmt.Errorf("model file %s: %d weights for %d features", path, len(m.Weights), len(m.Features))
	}
	for i, w := range m.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("model file %s: weight %d is not finite", path, i)
		}
	}

	log.Info().Str("model_path", path).Int("features", len(m.Features)).Msg("classifier weights loaded")
	return &m, nil
}

// PredictProba computes sigmoid(w·x + b).
func (m *LogisticModel) PredictProba(vec []float64) (float64, error) {
	if len(vec) != len(m.Weights) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.Weights), len(vec))
	}

	z := m.Intercept
	for i, v := range vec {
		z += m.Weights[i] * v
	}
	return sigmoid(z), nil
}

// FeatureImportances reports |weight| per feature in trained order.
func (m *LogisticModel) FeatureImportances() []Importance {
	out := make([]Importance, len(m.Features))
	for i, name := range m.Features {
		out[i] = Importance{Feature: name, Weight: math.Abs(m.Weights[i])}
	}
	return out
}

// LoadModelMetadata reads the metadata sidecar next to the model file.
// Falls back to the newest timestamped metadata file when the primary
// is missing.
func LoadModelMetadata(modelPath string) (*ModelMetadata, error) {
	dir := filepath.Dir(modelPath)
	primary := filepath.Join(dir, "model_metadata.json")

	if md, err := decodeMetadata(primary); err == nil {
		return md, nil
	}

	pattern := filepath.Join(dir, "model_metadata_*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("no metadata files found next to %s", modelPath)
	}
	sort.Strings(matches)                          // chronological order
	return decodeMetadata(matches[len(matches)-1]) // newest
}

func decodeMetadata(path string) (*ModelMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var md ModelMetadata
	if err := json.NewDecoder(file).Decode(&md); err != nil {
		return nil, err
	}
	return &md, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
