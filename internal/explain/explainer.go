// Package explain computes per-feature attributions for individual
// predictions. Contributions are exact in the completeness sense: for every
// explained row they sum to the model's output minus its baseline output.
//
// The method is path attribution by sequential substitution: starting from
// the schema baseline, features are switched to the row's values one at a
// time and each feature is credited with the change in model output. One
// forward and one reverse pass are averaged to soften ordering effects; the
// telescoping sum keeps completeness exact either way.
package explain

import (
	"fmt"

	"github.com/smokesignal-ai/pm25-dashboard/internal/domain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/model"
)

// Explainer produces attributions for one prediction at a time.
type Explainer struct {
	predictor model.Predictor
}

// New creates an Explainer over a predictor.
func New(predictor model.Predictor) *Explainer {
	return &Explainer{predictor: predictor}
}

// Explain attributes a single feature vector's prediction. The row passes
// the same schema check as prediction: a shuffled ordering is rejected, not
// silently mislabeled.
func (e *Explainer) Explain(vec domain.FeatureVector) (domain.Attribution, error) {
	schema := e.predictor.Schema()
	row := vec.Row()
	if err := schema.Check(row); err != nil {
		return domain.Attribution{}, err
	}

	baselineRow := schema.BaselineRow()
	baseline, err := e.predictor.Predict(baselineRow)
	if err != nil {
		return domain.Attribution{}, fmt.Errorf("score baseline: %w", err)
	}

	target := schema.Impute(row)

	forward, predicted, err := e.walk(schema, baselineRow.Values, target, false)
	if err != nil {
		return domain.Attribution{}, err
	}
	reverse, _, err := e.walk(schema, baselineRow.Values, target, true)
	if err != nil {
		return domain.Attribution{}, err
	}

	contributions := make([]domain.FeatureContribution, len(schema.FeatureOrder))
	for i, name := range schema.FeatureOrder {
		contributions[i] = domain.FeatureContribution{
			Feature: name,
			Score:   (forward[i] + reverse[i]) / 2,
		}
	}

	return domain.Attribution{
		LocationID:    vec.LocationID,
		Timestamp:     vec.Timestamp,
		Baseline:      baseline,
		Predicted:     predicted,
		Contributions: contributions,
	}, nil
}

// walk substitutes target values into the baseline one feature at a time and
// records each step's score delta. Returns the per-feature deltas and the
// final (fully substituted) score.
func (e *Explainer) walk(schema model.Schema, baseline, target []float64, reverse bool) ([]float64, float64, error) {
	n := len(target)
	current := make([]float64, n)
	copy(current, baseline)

	prev, err := e.score(schema, current)
	if err != nil {
		return nil, 0, err
	}

	deltas := make([]float64, n)
	for step := 0; step < n; step++ {
		i := step
		if reverse {
			i = n - 1 - step
		}
		current[i] = target[i]
		next, err := e.score(schema, current)
		if err != nil {
			return nil, 0, err
		}
		deltas[i] = next - prev
		prev = next
	}
	return deltas, prev, nil
}

func (e *Explainer) score(schema model.Schema, values []float64) (float64, error) {
	vals := make([]float64, len(values))
	copy(vals, values)
	return e.predictor.Predict(domain.FeatureRow{
		Names:   schema.FeatureOrder,
		Values:  vals,
		Missing: make([]bool, len(values)),
	})
}

// DeriveDrivers turns an attribution into the dashboard's key-driver
// verdict. Mirrors the hazard-control panel: detected smoke plumes dominate,
// then rapidly rising pollution, otherwise stable conditions.
func DeriveDrivers(attr domain.Attribution, vec domain.FeatureVector, velocityAlert float64) domain.DriverAssessment {
	assessment := domain.DriverAssessment{
		Verdict:       domain.DriverStable,
		SmokeIndex:    vec.SmokeIndex,
		PlumeVelocity: vec.PlumeVelocity,
	}
	if ranked := attr.Ranked(); len(ranked) > 0 {
		assessment.TopFeature = ranked[0].Feature
		assessment.TopScore = ranked[0].Score
	}

	switch {
	case vec.SmokeIndex > 0:
		assessment.Verdict = domain.DriverSmokePlume
	case vec.PlumeVelocity != nil && *vec.PlumeVelocity > velocityAlert:
		assessment.Verdict = domain.DriverRisingVelocity
	}
	return assessment
}
