package metrics

// AdapterMetrics satisfies ml.MetricsInterface so the classifier
// adapter depends on this small surface instead of prometheus types.
type AdapterMetrics struct {
	m *Metrics
}

func NewAdapterMetrics(m *Metrics) *AdapterMetrics {
	return &AdapterMetrics{m: m}
}

func (w *AdapterMetrics) PredictionsInc()                    { w.m.Predictions.Inc() }
func (w *AdapterMetrics) PredictionFailuresInc()             { w.m.PredictionFailures.Inc() }
func (w *AdapterMetrics) PredictionLatencyObserve(v float64) { w.m.PredictionLatency.Observe(v) }
func (w *AdapterMetrics) PredictionScoreObserve(v float64)   { w.m.PredictionScores.Observe(v) }
func (w *AdapterMetrics) ModelAgeSet(v float64)              { w.m.ModelAge.Set(v) }

// DecisionInc counts one decision by label.
func (m *Metrics) DecisionInc(label string) {
	m.Decisions.WithLabelValues(label).Inc()
}

// AuditObserved records the outcome of one fairness audit.
func (m *Metrics) AuditObserved(disparateImpactRatio float64, passes bool) {
	m.Audits.Inc()
	m.DisparateImpactRatio.Set(disparateImpactRatio)
	if !passes {
		m.EightyPctRuleFailed.Inc()
	}
}
