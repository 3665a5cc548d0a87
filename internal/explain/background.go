package explain

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// LoadBackground reads a background dataset from a JSON file holding an
// array of feature vectors. The dataset must be non-empty and
// rectangular with finite values.
func LoadBackground(path string, featureCount int) ([][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read background dataset: %w", err)
	}

	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse background dataset: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("background dataset %s is empty", path)
	}

	for i, row := range rows {
		if len(row) != featureCount {
			return nil, fmt.Errorf("background row %d has %d features, want %d", i, len(row), featureCount)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("background row %d feature %d is not finite", i, j)
			}
		}
	}
	return rows, nil
}
