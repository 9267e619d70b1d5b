package domain

import (
	"sort"
	"time"
)

// FeatureContribution is one feature's share of a prediction's distance from
// the model baseline. Positive scores push the forecast up.
type FeatureContribution struct {
	Feature string  `json:"feature"`
	Score   float64 `json:"score"`
}

// Attribution explains a single prediction: per-feature contribution scores
// that sum to Predicted − Baseline. One per explained prediction, computed
// on demand.
type Attribution struct {
	LocationID    string                `json:"location_id"`
	Timestamp     time.Time             `json:"timestamp"`
	Baseline      float64               `json:"baseline"`
	Predicted     float64               `json:"predicted"`
	Contributions []FeatureContribution `json:"contributions"` // canonical feature order
}

// Ranked returns the contributions sorted by absolute score, largest first.
// The receiver's canonical ordering is left untouched.
func (a Attribution) Ranked() []FeatureContribution {
	ranked := make([]FeatureContribution, len(a.Contributions))
	copy(ranked, a.Contributions)
	sort.SliceStable(ranked, func(i, j int) bool {
		return abs(ranked[i].Score) > abs(ranked[j].Score)
	})
	return ranked
}

// Score returns the contribution for a named feature, or 0 if absent.
func (a Attribution) Score(feature string) float64 {
	for _, c := range a.Contributions {
		if c.Feature == feature {
			return c.Score
		}
	}
	return 0
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// DriverVerdict classifies what is driving a forecast, mirroring the
// key-driver panel on the dashboard.
type DriverVerdict string

const (
	// DriverSmokePlume: significant smoke plumes detected upwind.
	DriverSmokePlume DriverVerdict = "smoke_plume"
	// DriverRisingVelocity: pollution rising fast enough to suggest a new ignition.
	DriverRisingVelocity DriverVerdict = "rising_velocity"
	// DriverStable: factors suggest stable atmospheric conditions.
	DriverStable DriverVerdict = "stable"
)

// DriverAssessment is the typed key-driver summary rendered next to an
// attribution plot.
type DriverAssessment struct {
	Verdict       DriverVerdict `json:"verdict"`
	SmokeIndex    float64       `json:"smoke_index"`
	PlumeVelocity *float64      `json:"plume_velocity,omitempty"`
	TopFeature    string        `json:"top_feature"`
	TopScore      float64       `json:"top_score"`
}
