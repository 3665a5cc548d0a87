package ml

// MockMetrics implements MetricsInterface for tests.
type MockMetrics struct {
	predictions int
	failures    int
	latencies   int
	scores      []float64
	modelAge    float64
}

func (m *MockMetrics) PredictionsInc()                  { m.predictions++ }
func (m *MockMetrics) PredictionFailuresInc()           { m.failures++ }
func (m *MockMetrics) PredictionLatencyObserve(float64) { m.latencies++ }
func (m *MockMetrics) PredictionScoreObserve(s float64) { m.scores = append(m.scores, s) }
func (m *MockMetrics) ModelAgeSet(age float64)          { m.modelAge = age }
