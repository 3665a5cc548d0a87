package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAdapterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	w := NewAdapterMetrics(m)

	w.PredictionsInc()
	w.PredictionsInc()
	w.PredictionFailuresInc()
	w.PredictionScoreObserve(0.7)
	w.ModelAgeSet(3600)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Predictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PredictionFailures))
	assert.Equal(t, 3600.0, testutil.ToFloat64(m.ModelAge))
}

func TestDecisionInc(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.DecisionInc("APPROVE")
	m.DecisionInc("APPROVE")
	m.DecisionInc("DECLINE")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Decisions.WithLabelValues("APPROVE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("DECLINE")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Decisions.WithLabelValues("MANUAL_REVIEW")))
}

func TestAuditObserved(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.AuditObserved(0.91, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Audits))
	assert.Equal(t, 0.91, testutil.ToFloat64(m.DisparateImpactRatio))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EightyPctRuleFailed))

	m.AuditObserved(0.55, false)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Audits))
	assert.Equal(t, 0.55, testutil.ToFloat64(m.DisparateImpactRatio))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EightyPctRuleFailed))
}
