// Package features converts raw loan applications into the fixed-order
// numeric vectors the classifier was fit on. The feature order and the
// categorical encoding table are configuration; a vector that does not
// match the trained model's contract is a construction-time error, never
// a silently tolerated default.
package features

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Application is the immutable record of raw applicant fields. Protected
// attributes (Gender, Race, Age) ride along for audit purposes only and
// are never part of the model vector.
type Application struct {
	Income           float64 `json:"income"`
	LoanAmount       float64 `json:"loan_amount"`
	CreditScore      float64 `json:"credit_score"`
	EmploymentLength float64 `json:"employment_length"`
	DebtToIncome     float64 `json:"debt_to_income"`
	NumCreditLines   float64 `json:"num_credit_lines"`
	Education        string  `json:"education"`
	SelfEmployed     string  `json:"self_employed"`
	PropertyArea     string  `json:"property_area"`

	Gender *int     `json:"gender,omitempty"`
	Race   *int     `json:"race,omitempty"`
	Age    *float64 `json:"age,omitempty"`
}

// Vector is an ordered sequence of numeric feature values. Length and
// order must exactly match what the classifier was fit on.
type Vector []float64

// ValidationError reports a malformed or out-of-domain input field.
// It is the caller's fault and recoverable by resubmission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// Default feature order and encodings, matching the model training
// pipeline. Operators override both via configuration.
var (
	DefaultOrder = []string{
		"income", "loan_amount", "credit_score", "employment_length",
		"debt_to_income", "num_credit_lines", "education",
		"self_employed", "property_area",
	}

	DefaultEncodings = map[string]map[string]float64{
		"education":     {"not graduate": 0, "graduate": 1},
		"self_employed": {"no": 0, "yes": 1},
		"property_area": {"rural": 0, "semiurban": 1, "urban": 2},
	}
)

// numericFields lists the fields read directly from the application
// without an encoding table.
var numericFields = map[string]func(Application) float64{
	"income":            func(a Application) float64 { return a.Income },
	"loan_amount":       func(a Application) float64 { return a.LoanAmount },
	"credit_score":      func(a Application) float64 { return a.CreditScore },
	"employment_length": func(a Application) float64 { return a.EmploymentLength },
	"debt_to_income":    func(a Application) float64 { return a.DebtToIncome },
	"num_credit_lines":  func(a Application) float64 { return a.NumCreditLines },
}

var categoricalFields = map[string]func(Application) string{
	"education":     func(a Application) string { return a.Education },
	"self_employed": func(a Application) string { return a.SelfEmployed },
	"property_area": func(a Application) string { return a.PropertyArea },
}

// Builder turns applications into model-ready vectors using a fixed,
// versioned feature order and encoding table.
type Builder struct {
	order     []string
	encodings map[string]map[string]float64
}

// NewBuilder validates the configured feature order against the known
// field set and returns a ready builder. An order naming an unknown
// field is an operator misconfiguration and fails here, not at scoring
// time.
func NewBuilder(order []string, encodings map[string]map[string]float64) (*Builder, error) {
	if len(order) == 0 {
		order = DefaultOrder
	}
	if encodings == nil {
		encodings = DefaultEncodings
	}

	for _, name := range order {
		if _, ok := numericFields[name]; ok {
			continue
		}
		if _, ok := categoricalFields[name]; ok {
			if _, haveEnc := encodings[name]; !haveEnc {
				return nil, fmt.Errorf("feature order names categorical field %q with no encoding table", name)
			}
			continue
		}
		return nil, fmt.Errorf("feature order names unknown field %q", name)
	}

	return &Builder{order: order, encodings: encodings}, nil
}

// Order returns the configured feature order.
func (b *Builder) Order() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Build converts an application into the fixed-order numeric vector.
// Categorical values outside the known domain and non-finite numeric
// values are rejected with a ValidationError; nothing is defaulted.
func (b *Builder) Build(app Application) (Vector, error) {
	vec := make(Vector, 0, len(b.order))

	for _, name := range b.order {
		if get, ok := numericFields[name]; ok {
			v := get(app)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &ValidationError{Field: name, Reason: "value is not a finite number"}
			}
			vec = append(vec, v)
			continue
		}

		get := categoricalFields[name]
		raw := strings.ToLower(strings.TrimSpace(get(app)))
		if raw == "" {
			return nil, &ValidationError{Field: name, Reason: "required field is missing"}
		}
		code, ok := b.encodings[name][raw]
		if !ok {
			return nil, &ValidationError{
				Field:  name,
				Reason: fmt.Sprintf("value %q outside known domain %v", raw, domainOf(b.encodings[name])),
			}
		}
		vec = append(vec, code)
	}

	return vec, nil
}

// ParseApplication decodes a raw field mapping (as received from the
// request layer) into an Application, rejecting missing and non-numeric
// fields explicitly.
func ParseApplication(fields map[string]any) (Application, error) {
	var app Application

	num := func(name string) (float64, error) {
		raw, ok := fields[name]
		if !ok {
			return 0, &ValidationError{Field: name, Reason: "required field is missing"}
		}
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		default:
			return 0, &ValidationError{Field: name, Reason: fmt.Sprintf("expected a number, got %T", raw)}
		}
	}

	str := func(name string) (string, error) {
		raw, ok := fields[name]
		if !ok {
			return "", &ValidationError{Field: name, Reason: "required field is missing"}
		}
		s, ok := raw.(string)
		if !ok {
			return "", &ValidationError{Field: name, Reason: fmt.Sprintf("expected a string, got %T", raw)}
		}
		return s, nil
	}

	var err error
	if app.Income, err = num("income"); err != nil {
		return Application{}, err
	}
	if app.LoanAmount, err = num("loan_amount"); err != nil {
		return Application{}, err
	}
	if app.CreditScore, err = num("credit_score"); err != nil {
		return Application{}, err
	}
	if app.EmploymentLength, err = num("employment_length"); err != nil {
		return Application{}, err
	}
	if app.DebtToIncome, err = num("debt_to_income"); err != nil {
		return Application{}, err
	}
	if app.NumCreditLines, err = num("num_credit_lines"); err != nil {
		return Application{}, err
	}
	if app.Education, err = str("education"); err != nil {
		return Application{}, err
	}
	if app.SelfEmployed, err = str("self_employed"); err != nil {
		return Application{}, err
	}
	if app.PropertyArea, err = str("property_area"); err != nil {
		return Application{}, err
	}

	// Protected attributes are optional.
	if raw, ok := fields["gender"]; ok {
		v, ok := raw.(float64)
		if !ok {
			return Application{}, &ValidationError{Field: "gender", Reason: fmt.Sprintf("expected a number, got %T", raw)}
		}
		g := int(v)
		app.Gender = &g
	}
	if raw, ok := fields["race"]; ok {
		v, ok := raw.(float64)
		if !ok {
			return Application{}, &ValidationError{Field: "race", Reason: fmt.Sprintf("expected a number, got %T", raw)}
		}
		r := int(v)
		app.Race = &r
	}
	if raw, ok := fields["age"]; ok {
		v, ok := raw.(float64)
		if !ok {
			return Application{}, &ValidationError{Field: "age", Reason: fmt.Sprintf("expected a number, got %T", raw)}
		}
		app.Age = &v
	}

	return app, nil
}

func domainOf(enc map[string]float64) []string {
	keys := make([]string, 0, len(enc))
	for k := range enc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
