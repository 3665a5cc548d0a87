// Generates a sample model file, background dataset, and a populated
// decision ledger so the service and the fairaudit tool can be tried
// without real data.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"lendguard/internal/features"
	"lendguard/internal/storage"
)

func main() {
	var (
		dataPath   = flag.String("data", "data", "Data directory path")
		modelsDir  = flag.String("models", "models", "Directory for model and background files")
		applicants = flag.Int("applicants", 500, "Number of sample decisions to generate")
		seed       = flag.Int64("seed", 42, "PRNG seed")
	)
	flag.Parse()

	fmt.Printf("Generating sample data...\n")
	fmt.Printf("  Applicants: %d\n", *applicants)
	fmt.Printf("  Data Path: %s\n", *dataPath)
	fmt.Printf("  Models Dir: %s\n", *modelsDir)

	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*modelsDir, 0o750); err != nil {
		log.Fatalf("Failed to create models directory: %v", err)
	}
	if err := writeModel(*modelsDir); err != nil {
		log.Fatalf("Failed to write model: %v", err)
	}
	if err := writeBackground(*modelsDir, rng); err != nil {
		log.Fatalf("Failed to write background dataset: %v", err)
	}
	if err := writeLedger(*dataPath, *applicants, rng); err != nil {
		log.Fatalf("Failed to populate ledger: %v", err)
	}

	fmt.Println("Done.")
}

// writeModel emits a logistic model whose decisions lean mostly on
// credit score and debt-to-income, scaled to produce a realistic
// probability spread.
func writeModel(dir string) error {
	model := map[string]any{
		"features":  features.DefaultOrder,
		"weights":   []float64{0.00001, -0.00002, 0.015, 0.05, -3.0, 0.1, 0.4, -0.3, 0.2},
		"intercept": -9.0,
	}
	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "model.json")
	fmt.Printf("  Writing %s\n", path)
	return os.WriteFile(path, data, 0o600)
}

func writeBackground(dir string, rng *rand.Rand) error {
	rows := make([][]float64, 100)
	for i := range rows {
		rows[i] = sampleVector(rng)
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "background.json")
	fmt.Printf("  Writing %s\n", path)
	return os.WriteFile(path, data, 0o600)
}

func writeLedger(dataPath string, count int, rng *rand.Rand) error {
	store, err := storage.New(dataPath)
	if err != nil {
		return err
	}
	defer store.Close()

	base := time.Now().AddDate(0, 0, -30)
	for i := 0; i < count; i++ {
		vec := sampleVector(rng)
		prob := sigmoid(0.015*vec[2] - 3.0*vec[4] - 9.0)

		label := "MANUAL_REVIEW"
		if prob >= 0.70 {
			label = "APPROVE"
		} else if prob <= 0.30 {
			label = "DECLINE"
		}

		gender := rng.Intn(2)
		class := 0
		if prob >= 0.5 {
			class = 1
		}
		outcome := 0
		if rng.Float64() < prob {
			outcome = 1
		}

		rec := storage.DecisionRecord{
			ApplicantID: fmt.Sprintf("sample-%04d", i),
			Timestamp:   base.Add(time.Duration(i) * 5 * time.Minute),
			Probability: prob,
			Class:       class,
			Label:       label,
			Confidence:  prob,
			Reason:      "sample data",
			Groups:      map[string]string{"gender": fmt.Sprintf("%d", gender)},
			Outcome:     &outcome,
		}
		if err := store.StoreDecision(rec); err != nil {
			return err
		}
	}
	fmt.Printf("  Stored %d decisions in %s\n", count, dataPath)
	return nil
}

// sampleVector draws a plausible application in the default feature
// order.
func sampleVector(rng *rand.Rand) []float64 {
	return []float64{
		20000 + rng.Float64()*80000, // income
		5000 + rng.Float64()*40000,  // loan_amount
		450 + rng.Float64()*400,     // credit_score
		rng.Float64() * 20,          // employment_length
		0.05 + rng.Float64()*0.6,    // debt_to_income
		float64(rng.Intn(10)),       // num_credit_lines
		float64(rng.Intn(2)),        // education
		float64(rng.Intn(2)),        // self_employed
		float64(rng.Intn(3)),        // property_area
	}
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
