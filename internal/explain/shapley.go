// Package explain computes per-feature contribution scores for a single
// prediction. Attributions are Shapley values of a background-marginalized
// value function: a coalition's value is the mean model output with the
// coalition's features taken from the instance and the rest from the
// background rows. By the efficiency property, base value plus the sum of
// contributions reconstructs the model's output exactly, on the
// probability scale.
//
// Up to MaxExactFeatures the engine enumerates every coalition; beyond
// that it averages marginal contributions over seeded random permutations,
// which keeps additivity exact (each permutation's contributions
// telescope) and the output deterministic.
package explain

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Predictor is the model capability the engine needs. *ml.Adapter
// satisfies it.
type Predictor interface {
	PredictProba(vec []float64) (float64, error)
}

// Contribution is one feature's signed attribution.
type Contribution struct {
	Feature      string  `json:"feature"`
	Contribution float64 `json:"contribution"`
	Rank         int     `json:"rank"`
}

// Explanation is the additive attribution for one prediction:
// BaseValue + sum of contributions == Probability within tolerance.
type Explanation struct {
	BaseValue     float64        `json:"base_value"`
	Probability   float64        `json:"probability"`
	Contributions []Contribution `json:"contributions"`
}

// Config tunes the engine. Background rows must be in the model's
// feature order.
type Config struct {
	FeatureNames       []string
	Background         [][]float64
	MaxExactFeatures   int   // exact enumeration cutoff, default 12
	PermutationSamples int   // sampling path, default 128
	Seed               int64 // sampling path PRNG seed
}

const (
	defaultMaxExactFeatures   = 12
	defaultPermutationSamples = 128
)

// Engine computes explanations. Immutable after construction, safe for
// concurrent callers.
type Engine struct {
	names      []string
	background [][]float64
	maxExact   int
	samples    int
	seed       int64
}

// NewEngine validates the background set against the feature order.
func NewEngine(cfg Config) (*Engine, error) {
	n := len(cfg.FeatureNames)
	if n == 0 {
		return nil, fmt.Errorf("explanation engine requires a non-empty feature order")
	}
	if len(cfg.Background) == 0 {
		return nil, fmt.Errorf("explanation engine requires at least one background row")
	}
	for i, row := range cfg.Background {
		if len(row) != n {
			return nil, fmt.Errorf("background row %d has %d values, expected %d", i, len(row), n)
		}
	}

	maxExact := cfg.MaxExactFeatures
	if maxExact <= 0 {
		maxExact = defaultMaxExactFeatures
	}
	samples := cfg.PermutationSamples
	if samples <= 0 {
		samples = defaultPermutationSamples
	}

	return &Engine{
		names:      append([]string(nil), cfg.FeatureNames...),
		background: cfg.Background,
		maxExact:   maxExact,
		samples:    samples,
		seed:       cfg.Seed,
	}, nil
}

// Explain attributes one prediction to its features. Contributions are
// ranked descending by absolute magnitude; ties keep the original
// feature-vector order.
func (e *Engine) Explain(vec []float64, model Predictor) (*Explanation, error) {
	n := len(e.names)
	if len(vec) != n {
		return nil, fmt.Errorf("expected %d features, got %d", n, len(vec))
	}

	prob, err := model.PredictProba(vec)
	if err != nil {
		return nil, fmt.Errorf("explain prediction: %w", err)
	}

	base, err := e.coalitionValue(vec, model, 0)
	if err != nil {
		return nil, err
	}

	var phi []float64
	if n <= e.maxExact {
		phi, err = e.exactShapley(vec, model)
	} else {
		phi, err = e.sampledShapley(vec, model)
	}
	if err != nil {
		return nil, err
	}

	contribs := make([]Contribution, n)
	for i := range contribs {
		contribs[i] = Contribution{Feature: e.names[i], Contribution: phi[i]}
	}
	sort.SliceStable(contribs, func(a, b int) bool {
		return math.Abs(contribs[a].Contribution) > math.Abs(contribs[b].Contribution)
	})
	for i := range contribs {
		contribs[i].Rank = i + 1
	}

	return &Explanation{
		BaseValue:     base,
		Probability:   prob,
		Contributions: contribs,
	}, nil
}

// coalitionValue is the mean model output with coalition features taken
// from the instance and the rest from background rows.
func (e *Engine) coalitionValue(vec []float64, model Predictor, mask uint64) (float64, error) {
	composite := make([]float64, len(vec))
	var total float64

	for _, row := range e.background {
		for i := range vec {
			if mask&(1<<uint(i)) != 0 {
				composite[i] = vec[i]
			} else {
				composite[i] = row[i]
			}
		}
		p, err := model.PredictProba(composite)
		if err != nil {
			return 0, fmt.Errorf("coalition evaluation: %w", err)
		}
		total += p
	}
	return total / float64(len(e.background)), nil
}

// exactShapley enumerates all coalitions once, then accumulates each
// feature's weighted marginal contributions.
func (e *Engine) exactShapley(vec []float64, model Predictor) ([]float64, error) {
	n := len(vec)
	values := make([]float64, 1<<uint(n))
	for mask := uint64(0); mask < 1<<uint(n); mask++ {
		v, err := e.coalitionValue(vec, model, mask)
		if err != nil {
			return nil, err
		}
		values[mask] = v
	}

	weights := shapleyWeights(n)
	phi := make([]float64, n)
	for mask := uint64(0); mask < 1<<uint(n); mask++ {
		size := popcount(mask)
		if size == n {
			// The full coalition has no feature left to add.
			continue
		}
		w := weights[size]
		for i := 0; i < n; i++ {
			bit := uint64(1) << uint(i)
			if mask&bit != 0 {
				continue
			}
			phi[i] += w * (values[mask|bit] - values[mask])
		}
	}
	return phi, nil
}

// sampledShapley averages marginal contributions over seeded random
// permutations. Per-permutation contributions telescope to
// v(all) - v(none), so additivity survives the sampling exactly.
func (e *Engine) sampledShapley(vec []float64, model Predictor) ([]float64, error) {
	n := len(vec)
	rng := rand.New(rand.NewSource(e.seed))
	phi := make([]float64, n)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}

	for s := 0; s < e.samples; s++ {
		rng.Shuffle(n, func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })

		var mask uint64
		prev, err := e.coalitionValue(vec, model, mask)
		if err != nil {
			return nil, err
		}
		for _, i := range perm {
			mask |= 1 << uint(i)
			cur, err := e.coalitionValue(vec, model, mask)
			if err != nil {
				return nil, err
			}
			phi[i] += cur - prev
			prev = cur
		}
	}

	for i := range phi {
		phi[i] /= float64(e.samples)
	}
	return phi, nil
}

// shapleyWeights[s] = s! (n-1-s)! / n! for coalition size s.
func shapleyWeights(n int) []float64 {
	fact := make([]float64, n+1)
	fact[0] = 1
	for i := 1; i <= n; i++ {
		fact[i] = fact[i-1] * float64(i)
	}
	w := make([]float64, n)
	for s := 0; s < n; s++ {
		w[s] = fact[s] * fact[n-1-s] / fact[n]
	}
	return w
}

func popcount(x uint64) int {
	count := 0
	for ; x != 0; x &= x - 1 {
		count++
	}
	return count
}
