package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/smokesignal-ai/pm25-dashboard/internal/domain"
)

// Schema is the training-time contract shipped next to the model artifact.
// It pins the exact feature ordering the booster was fitted with, the
// imputation policy for undefined values, and the baseline row used for
// attribution. Serving with any other ordering or policy is a deployment
// error, not something to paper over.
type Schema struct {
	FeatureOrder []string  `json:"feature_order"`
	Imputation   string    `json:"imputation"` // "zero" or "median"
	Baseline     []float64 `json:"baseline"`   // per-feature reference values (training medians)
}

// LoadSchema reads and validates a schema manifest.
func LoadSchema(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, &domain.ModelUnavailableError{Path: path, Err: err}
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return Schema{}, &domain.ModelUnavailableError{Path: path, Err: fmt.Errorf("parse schema manifest: %w", err)}
	}
	if err := s.validate(); err != nil {
		return Schema{}, &domain.ModelUnavailableError{Path: path, Err: err}
	}
	return s, nil
}

func (s Schema) validate() error {
	if len(s.FeatureOrder) == 0 {
		return fmt.Errorf("schema manifest has no feature_order")
	}
	if len(s.Baseline) != len(s.FeatureOrder) {
		return fmt.Errorf("schema manifest baseline has %d values for %d features",
			len(s.Baseline), len(s.FeatureOrder))
	}
	switch s.Imputation {
	case "zero", "median":
		return nil
	default:
		return fmt.Errorf("schema manifest has unknown imputation policy %q", s.Imputation)
	}
}

// Check verifies that a row's feature names exactly match the training-time
// ordering. A shuffled or renamed matrix would attach every value to the
// wrong tree split, so this fails loudly instead of scoring.
func (s Schema) Check(row domain.FeatureRow) error {
	if len(row.Names) != len(s.FeatureOrder) {
		return &domain.FeatureMismatchError{
			Want:   s.FeatureOrder,
			Got:    row.Names,
			Reason: fmt.Sprintf("row has %d features, model expects %d", len(row.Names), len(s.FeatureOrder)),
		}
	}
	for i, name := range s.FeatureOrder {
		if row.Names[i] != name {
			return &domain.FeatureMismatchError{
				Want:   s.FeatureOrder,
				Got:    row.Names,
				Reason: fmt.Sprintf("feature %d is %q, model expects %q", i, row.Names[i], name),
			}
		}
	}
	if len(row.Values) != len(row.Names) || (row.Missing != nil && len(row.Missing) != len(row.Names)) {
		return &domain.FeatureMismatchError{
			Want:   s.FeatureOrder,
			Got:    row.Names,
			Reason: "row values/missing lengths disagree with names",
		}
	}
	return nil
}

// Impute returns a dense value slice with undefined entries filled per the
// manifest policy. Zero-fill substitutes 0; median-fill substitutes the
// baseline value for that feature (the training median).
func (s Schema) Impute(row domain.FeatureRow) []float64 {
	vals := make([]float64, len(row.Values))
	copy(vals, row.Values)
	if row.Missing == nil {
		return vals
	}
	for i, missing := range row.Missing {
		if !missing {
			continue
		}
		switch s.Imputation {
		case "median":
			vals[i] = s.Baseline[i]
		default: // zero
			vals[i] = 0
		}
	}
	return vals
}

// BaselineRow is the all-baseline input used as the attribution reference.
func (s Schema) BaselineRow() domain.FeatureRow {
	vals := make([]float64, len(s.Baseline))
	copy(vals, s.Baseline)
	return domain.FeatureRow{
		Names:   s.FeatureOrder,
		Values:  vals,
		Missing: make([]bool, len(s.FeatureOrder)),
	}
}
