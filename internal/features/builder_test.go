package features

import (
	"errors"
	"math"
	"testing"
)

func validApp() Application {
	return Application{
		Income:           52000,
		LoanAmount:       18000,
		CreditScore:      710,
		EmploymentLength: 6,
		DebtToIncome:     0.31,
		NumCreditLines:   4,
		Education:        "graduate",
		SelfEmployed:     "no",
		PropertyArea:     "urban",
	}
}

func TestBuilder_DefaultOrder(t *testing.T) {
	b, err := NewBuilder(nil, nil)
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	vec, err := b.Build(validApp())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expected := Vector{52000, 18000, 710, 6, 0.31, 4, 1, 0, 2}
	if len(vec) != len(expected) {
		t.Fatalf("Expected %d features, got %d", len(expected), len(vec))
	}
	for i := range expected {
		if vec[i] != expected[i] {
			t.Errorf("Feature %d (%s): expected %v, got %v", i, DefaultOrder[i], expected[i], vec[i])
		}
	}
}

func TestBuilder_CategoricalDomain(t *testing.T) {
	b, _ := NewBuilder(nil, nil)

	testCases := []struct {
		name   string
		mutate func(*Application)
		field  string
	}{
		{"unknown education", func(a *Application) { a.Education = "phd" }, "education"},
		{"unknown self_employed", func(a *Application) { a.SelfEmployed = "maybe" }, "self_employed"},
		{"unknown property_area", func(a *Application) { a.PropertyArea = "suburbia" }, "property_area"},
		{"missing education", func(a *Application) { a.Education = "" }, "education"},
		{"whitespace only", func(a *Application) { a.PropertyArea = "   " }, "property_area"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			app := validApp()
			tc.mutate(&app)

			_, err := b.Build(app)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Errorf("Expected error on field %q, got %q", tc.field, verr.Field)
			}
		})
	}
}

func TestBuilder_CaseInsensitiveCategoricals(t *testing.T) {
	b, _ := NewBuilder(nil, nil)

	app := validApp()
	app.Education = "Graduate"
	app.PropertyArea = " URBAN "

	vec, err := b.Build(app)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if vec[6] != 1 || vec[8] != 2 {
		t.Errorf("Expected education=1 property_area=2, got %v %v", vec[6], vec[8])
	}
}

func TestBuilder_NonFiniteNumerics(t *testing.T) {
	b, _ := NewBuilder(nil, nil)

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		app := validApp()
		app.DebtToIncome = bad

		_, err := b.Build(app)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("Expected ValidationError for %v, got %v", bad, err)
		}
		if verr.Field != "debt_to_income" {
			t.Errorf("Expected error on debt_to_income, got %q", verr.Field)
		}
	}
}

func TestNewBuilder_RejectsBadOrder(t *testing.T) {
	if _, err := NewBuilder([]string{"income", "shoe_size"}, nil); err == nil {
		t.Error("Expected error for unknown field in feature order")
	}

	// Categorical field without an encoding table.
	if _, err := NewBuilder([]string{"education"}, map[string]map[string]float64{}); err == nil {
		t.Error("Expected error for categorical field without encoding")
	}
}

func TestNewBuilder_CustomOrder(t *testing.T) {
	b, err := NewBuilder([]string{"credit_score", "income"}, nil)
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	vec, err := b.Build(validApp())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 710 || vec[1] != 52000 {
		t.Errorf("Expected [710 52000], got %v", vec)
	}
}

func TestParseApplication(t *testing.T) {
	fields := map[string]any{
		"income":            52000.0,
		"loan_amount":       18000.0,
		"credit_score":      710.0,
		"employment_length": 6.0,
		"debt_to_income":    0.31,
		"num_credit_lines":  4.0,
		"education":         "graduate",
		"self_employed":     "no",
		"property_area":     "urban",
		"gender":            1.0,
	}

	app, err := ParseApplication(fields)
	if err != nil {
		t.Fatalf("ParseApplication failed: %v", err)
	}
	if app.Income != 52000 || app.Education != "graduate" {
		t.Errorf("Unexpected application: %+v", app)
	}
	if app.Gender == nil || *app.Gender != 1 {
		t.Error("Expected gender to be parsed as protected attribute")
	}
	if app.Race != nil {
		t.Error("Expected absent race to stay nil")
	}
}

func TestParseApplication_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{"missing income", func(m map[string]any) { delete(m, "income") }, "income"},
		{"non-numeric credit_score", func(m map[string]any) { m["credit_score"] = "high" }, "credit_score"},
		{"non-string education", func(m map[string]any) { m["education"] = 1.0 }, "education"},
		{"non-numeric gender", func(m map[string]any) { m["gender"] = "male" }, "gender"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fields := map[string]any{
				"income": 52000.0, "loan_amount": 18000.0, "credit_score": 710.0,
				"employment_length": 6.0, "debt_to_income": 0.31, "num_credit_lines": 4.0,
				"education": "graduate", "self_employed": "no", "property_area": "urban",
			}
			tc.mutate(fields)

			_, err := ParseApplication(fields)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Errorf("Expected error on field %q, got %q", tc.field, verr.Field)
			}
		})
	}
}
