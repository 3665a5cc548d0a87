// Package fairness audits batches of loan decisions for group-level
// disparity. It computes per-group approval rates, the disparate impact
// ratio against the highest-approving reference group, demographic
// parity and equal opportunity gaps, and decile calibration error, with
// explicit errors for empty groups and malformed records instead of
// silent NaNs.
package fairness

import (
	"fmt"
	"math"
	"sort"
)

// Record is one audited decision. Outcome is the ground-truth label
// (1 = repaid / qualified) when known.
type Record struct {
	Approved    bool    `json:"approved"`
	Probability float64 `json:"probability"`
	Group       string  `json:"group"`
	Outcome     *int    `json:"outcome,omitempty"`
}

// GroupStats summarizes one protected group within a batch.
type GroupStats struct {
	Group            string   `json:"group"`
	Count            int      `json:"count"`
	Approvals        int      `json:"approvals"`
	ApprovalRate     float64  `json:"approval_rate"`
	TruePositiveRate *float64 `json:"true_positive_rate,omitempty"`
}

// Report is the stateless result of one audit call.
type Report struct {
	TotalRecords         int          `json:"total_records"`
	OverallApprovalRate  float64      `json:"overall_approval_rate"`
	Groups               []GroupStats `json:"groups"`
	ReferenceGroup       string       `json:"reference_group"`
	DisparateImpactRatio float64      `json:"disparate_impact_ratio"`
	DemographicParityGap float64      `json:"demographic_parity_gap"`
	EqualOpportunityGap  *float64     `json:"equal_opportunity_gap,omitempty"`
	CalibrationError     *float64     `json:"calibration_error,omitempty"`
	Passes80PctRule      bool         `json:"passes_80pct_rule"`
	Degenerate           bool         `json:"degenerate"`
	Narrative            string       `json:"narrative"`
}

// InsufficientDataError reports a configured protected group with zero
// records in the audited batch.
type InsufficientDataError struct {
	Group string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("audit group %q has no records", e.Group)
}

// BatchValidationError identifies the first malformed record in a
// batch. The whole batch is rejected; nothing is skipped silently.
type BatchValidationError struct {
	Index  int
	Reason string
}

func (e *BatchValidationError) Error() string {
	return fmt.Sprintf("record %d invalid: %s", e.Index, e.Reason)
}

// FairnessThreshold is the conventional 80% rule cutoff for the
// disparate impact ratio.
const FairnessThreshold = 0.80

// Config fixes the audited protected-group set and the calibration
// bucketing. An empty ExpectedGroups derives the group set from the
// batch itself.
type Config struct {
	ExpectedGroups     []string
	CalibrationBuckets int // default 10 (deciles)
}

// Engine runs audits. Stateless beyond its configuration.
type Engine struct {
	expected []string
	buckets  int
}

// NewEngine returns an audit engine for the configured group set.
func NewEngine(cfg Config) *Engine {
	buckets := cfg.CalibrationBuckets
	if buckets <= 0 {
		buckets = 10
	}
	return &Engine{
		expected: append([]string(nil), cfg.ExpectedGroups...),
		buckets:  buckets,
	}
}

// Audit computes the disparity statistics for a batch. The same batch
// always produces the identical report.
func (e *Engine) Audit(records []Record) (*Report, error) {
	for i, r := range records {
		if r.Group == "" {
			return nil, &BatchValidationError{Index: i, Reason: "missing group label"}
		}
		if math.IsNaN(r.Probability) || r.Probability < 0 || r.Probability > 1 {
			return nil, &BatchValidationError{Index: i, Reason: fmt.Sprintf("probability %f outside [0,1]", r.Probability)}
		}
		if r.Outcome != nil && *r.Outcome != 0 && *r.Outcome != 1 {
			return nil, &BatchValidationError{Index: i, Reason: fmt.Sprintf("outcome %d is not binary", *r.Outcome)}
		}
	}

	byGroup := make(map[string][]Record)
	for _, r := range records {
		byGroup[r.Group] = append(byGroup[r.Group], r)
	}

	// Every configured group must be represented; report the first
	// missing one by name.
	for _, g := range e.expected {
		if len(byGroup[g]) == 0 {
			return nil, &InsufficientDataError{Group: g}
		}
	}
	if len(byGroup) == 0 {
		return nil, &InsufficientDataError{Group: "(any)"}
	}

	names := make([]string, 0, len(byGroup))
	for g := range byGroup {
		names = append(names, g)
	}
	sort.Strings(names)

	groups := make([]GroupStats, 0, len(names))
	totalApprovals := 0
	for _, g := range names {
		recs := byGroup[g]
		approvals := 0
		for _, r := range recs {
			if r.Approved {
				approvals++
			}
		}
		totalApprovals += approvals
		gs := GroupStats{
			Group:        g,
			Count:        len(recs),
			Approvals:    approvals,
			ApprovalRate: float64(approvals) / float64(len(recs)),
		}
		if tpr, ok := truePositiveRate(recs); ok {
			gs.TruePositiveRate = &tpr
		}
		groups = append(groups, gs)
	}

	minRate, maxRate := groups[0].ApprovalRate, groups[0].ApprovalRate
	reference := groups[0].Group
	for _, g := range groups[1:] {
		if g.ApprovalRate > maxRate {
			maxRate = g.ApprovalRate
			reference = g.Group
		}
		if g.ApprovalRate < minRate {
			minRate = g.ApprovalRate
		}
	}

	report := &Report{
		TotalRecords:         len(records),
		OverallApprovalRate:  float64(totalApprovals) / float64(len(records)),
		Groups:               groups,
		ReferenceGroup:       reference,
		DemographicParityGap: maxRate - minRate,
	}

	if maxRate == 0 {
		// Every group declines everything: no reference group to
		// compare against, so the ratio is defined as perfectly fair
		// and the narrative flags the degenerate case.
		report.DisparateImpactRatio = 1.0
		report.Degenerate = true
	} else {
		report.DisparateImpactRatio = minRate / maxRate
	}
	report.Passes80PctRule = report.DisparateImpactRatio >= FairnessThreshold

	if gap, ok := equalOpportunityGap(groups); ok {
		report.EqualOpportunityGap = &gap
	}
	if ce, ok := e.calibrationError(records); ok {
		report.CalibrationError = &ce
	}

	report.Narrative = narrative(report)
	return report, nil
}

// truePositiveRate is the approval rate among truly qualified records.
// Not computable when the group has no ground truth or no qualified
// records.
func truePositiveRate(recs []Record) (float64, bool) {
	qualified, approved := 0, 0
	for _, r := range recs {
		if r.Outcome == nil || *r.Outcome != 1 {
			continue
		}
		qualified++
		if r.Approved {
			approved++
		}
	}
	if qualified == 0 {
		return 0, false
	}
	return float64(approved) / float64(qualified), true
}

// equalOpportunityGap is the spread of true-positive rates across
// groups that have one. Skipped entirely when no group does.
func equalOpportunityGap(groups []GroupStats) (float64, bool) {
	var rates []float64
	for _, g := range groups {
		if g.TruePositiveRate != nil {
			rates = append(rates, *g.TruePositiveRate)
		}
	}
	if len(rates) == 0 {
		return 0, false
	}
	if len(rates) < 2 {
		return 0, true
	}
	minR, maxR := rates[0], rates[0]
	for _, r := range rates[1:] {
		minR = math.Min(minR, r)
		maxR = math.Max(maxR, r)
	}
	return maxR - minR, true
}

// calibrationError is the mean absolute gap between predicted
// probability and empirical positive rate within probability buckets,
// over records with known outcomes.
func (e *Engine) calibrationError(records []Record) (float64, bool) {
	type bucket struct {
		probSum   float64
		positives int
		count     int
	}
	buckets := make([]bucket, e.buckets)

	labeled := 0
	for _, r := range records {
		if r.Outcome == nil {
			continue
		}
		labeled++
		idx := int(r.Probability * float64(e.buckets))
		if idx == e.buckets { // probability exactly 1.0
			idx--
		}
		buckets[idx].probSum += r.Probability
		buckets[idx].positives += *r.Outcome
		buckets[idx].count++
	}
	if labeled == 0 {
		return 0, false
	}

	var total float64
	nonEmpty := 0
	for _, b := range buckets {
		if b.count == 0 {
			continue
		}
		meanProb := b.probSum / float64(b.count)
		posRate := float64(b.positives) / float64(b.count)
		total += math.Abs(meanProb - posRate)
		nonEmpty++
	}
	return total / float64(nonEmpty), true
}
