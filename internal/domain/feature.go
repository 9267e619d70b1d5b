package domain

import (
	"fmt"
	"time"
)

// FeatureNames is the canonical feature ordering the model was trained with.
// The schema manifest shipped next to the model artifact must list exactly
// these names in this order; the model adapter refuses anything else.
var FeatureNames = []string{
	"ground_pm25",
	"satellite_aod",
	"smoke_index",
	"temperature_c",
	"humidity_pct",
	"wind_speed_ms",
	"plume_velocity",
}

// FeatureVector is one assembled row of model inputs for a (location,
// timestamp) pair, produced by joining a satellite observation with its
// nearest ground observation. All covariates are required; only
// PlumeVelocity may be nil (first observation at a monitor).
type FeatureVector struct {
	LocationID string    `json:"location_id"`
	Timestamp  time.Time `json:"timestamp"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`

	GroundPM25    float64  `json:"ground_pm25"`
	SatelliteAOD  float64  `json:"satellite_aod"`
	SmokeIndex    float64  `json:"smoke_index"`
	TemperatureC  float64  `json:"temperature_c"`
	HumidityPct   float64  `json:"humidity_pct"`
	WindSpeedMS   float64  `json:"wind_speed_ms"`
	PlumeVelocity *float64 `json:"plume_velocity"` // nil = undefined, never zero-filled here

	// ActualPM25 carries the historical label through to error reporting.
	ActualPM25 *float64 `json:"actual_pm25,omitempty"`
}

// FeatureRow is the ordered, named form of a FeatureVector handed to the
// model and explainer adapters. Missing marks entries whose value is
// undefined; the model adapter imputes those per its schema manifest.
type FeatureRow struct {
	Names   []string
	Values  []float64
	Missing []bool
}

// Row flattens the vector into canonical feature order. The plume velocity
// slot is the only one that can be marked missing.
func (v FeatureVector) Row() FeatureRow {
	velocity := 0.0
	missing := false
	if v.PlumeVelocity != nil {
		velocity = *v.PlumeVelocity
	} else {
		missing = true
	}
	return FeatureRow{
		Names: FeatureNames,
		Values: []float64{
			v.GroundPM25,
			v.SatelliteAOD,
			v.SmokeIndex,
			v.TemperatureC,
			v.HumidityPct,
			v.WindSpeedMS,
			velocity,
		},
		Missing: []bool{false, false, false, false, false, false, missing},
	}
}

// PlumeVelocity computes the rate of change between two consecutive readings
// at the same monitor, in µg/m³ per hour. The caller is responsible for
// chronological ordering; a non-positive Δt is a data defect, not a velocity.
func PlumeVelocity(prevPM25 float64, prevTime time.Time, currPM25 float64, currTime time.Time) (float64, error) {
	dt := currTime.Sub(prevTime).Hours()
	if dt <= 0 {
		return 0, fmt.Errorf("plume velocity: non-positive interval %v between readings", currTime.Sub(prevTime))
	}
	return (currPM25 - prevPM25) / dt, nil
}
