package scoring

import (
	"errors"
	"testing"

	"lendguard/internal/decision"
	"lendguard/internal/explain"
	"lendguard/internal/features"
	"lendguard/internal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testModel gives credit_score full control of the outcome so tests
// can steer the probability.
func testModel() *ml.LogisticModel {
	weights := make([]float64, len(features.DefaultOrder))
	for i, name := range features.DefaultOrder {
		if name == "credit_score" {
			weights[i] = 0.02
		}
	}
	return &ml.LogisticModel{
		Features:  features.DefaultOrder,
		Weights:   weights,
		Intercept: -13.0, // sigmoid(0.02*cs - 13): cs 710 -> ~0.80, cs 500 -> ~0.05
	}
}

func testService(t *testing.T) *Service {
	t.Helper()

	builder, err := features.NewBuilder(nil, nil)
	require.NoError(t, err)

	adapter, err := ml.NewAdapter(testModel(), features.DefaultOrder, nil, nil)
	require.NoError(t, err)

	engine, err := decision.NewEngine(decision.Config{HighThreshold: 0.70, LowThreshold: 0.30, ThreeTier: true})
	require.NoError(t, err)

	background := [][]float64{
		{40000, 15000, 650, 5, 0.35, 3, 1, 0, 1},
		{25000, 8000, 580, 2, 0.50, 2, 0, 1, 0},
	}
	explainer, err := explain.NewEngine(explain.Config{
		FeatureNames: features.DefaultOrder,
		Background:   background,
	})
	require.NoError(t, err)

	svc, err := New(builder, adapter, engine, explainer)
	require.NoError(t, err)
	return svc
}

func goodApp() features.Application {
	return features.Application{
		Income: 52000, LoanAmount: 18000, CreditScore: 710,
		EmploymentLength: 6, DebtToIncome: 0.31, NumCreditLines: 4,
		Education: "graduate", SelfEmployed: "no", PropertyArea: "urban",
	}
}

func badCreditApp() features.Application {
	app := goodApp()
	app.CreditScore = 500
	return app
}

func TestService_Score(t *testing.T) {
	svc := testService(t)

	res, err := svc.Score(goodApp())
	require.NoError(t, err)
	assert.Equal(t, decision.Approve, res.Decision.Label)
	assert.Equal(t, 1, res.Prediction.Class)
	assert.InDelta(t, res.Prediction.Probability, res.Decision.Confidence, 1e-9)

	res, err = svc.Score(badCreditApp())
	require.NoError(t, err)
	assert.Equal(t, decision.Decline, res.Decision.Label)
	assert.Equal(t, 0, res.Prediction.Class)
}

func TestService_Score_ValidationPropagates(t *testing.T) {
	svc := testService(t)

	app := goodApp()
	app.PropertyArea = "moonbase"

	_, err := svc.Score(app)
	var verr *features.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "property_area", verr.Field)
}

func TestService_ScoreBatch(t *testing.T) {
	svc := testService(t)

	results, err := svc.ScoreBatch([]features.Application{goodApp(), badCreditApp()})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, decision.Approve, results[0].Decision.Label)
	assert.Equal(t, decision.Decline, results[1].Decision.Label)
}

func TestService_ScoreBatch_RejectsWholeBatch(t *testing.T) {
	svc := testService(t)

	bad := goodApp()
	bad.Education = "unknown"
	apps := []features.Application{goodApp(), goodApp(), bad}

	results, err := svc.ScoreBatch(apps)
	assert.Nil(t, results, "no partial results on batch failure")

	var batchErr *BatchValidationError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 2, batchErr.Index)

	var verr *features.ValidationError
	assert.True(t, errors.As(batchErr, &verr), "wrapped cause should surface")
}

func TestService_Explain(t *testing.T) {
	svc := testService(t)

	exp, err := svc.Explain(goodApp())
	require.NoError(t, err)
	require.Len(t, exp.Contributions, len(features.DefaultOrder))

	sum := exp.BaseValue
	for _, c := range exp.Contributions {
		sum += c.Contribution
	}
	assert.InDelta(t, exp.Probability, sum, 1e-3)

	// credit_score dominates this model.
	assert.Equal(t, "credit_score", exp.Contributions[0].Feature)
}

func TestService_FeatureImportances(t *testing.T) {
	svc := testService(t)

	imps, err := svc.FeatureImportances()
	require.NoError(t, err)
	require.Len(t, imps, len(features.DefaultOrder))
	for _, imp := range imps {
		assert.GreaterOrEqual(t, imp.Weight, 0.0)
	}
}
