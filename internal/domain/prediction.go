package domain

import "time"

// Prediction is one 24-hour-ahead PM2.5 estimate for a (location, timestamp)
// pair. Derived from a FeatureVector; never persisted back into the dataset.
type Prediction struct {
	ID            string    `json:"id"`
	LocationID    string    `json:"location_id"`
	Timestamp     time.Time `json:"timestamp"`
	PredictedPM25 float64   `json:"predicted_pm25"`
	HazardFlag    bool      `json:"hazard_flag"`

	// ActualPM25 and Error are present only where the archive carries the
	// historical label for this row.
	ActualPM25 *float64 `json:"actual_pm25,omitempty"`
	Error      *float64 `json:"error,omitempty"` // predicted − actual

	GeneratedAt time.Time `json:"generated_at"`
}

// NewPrediction assembles a prediction record from a scored feature vector,
// deriving the hazard flag and, where the label exists, the signed error.
func NewPrediction(v FeatureVector, predicted, hazardThreshold float64) Prediction {
	p := Prediction{
		ID:            ObservationID(v.LocationID, "forecast", v.Timestamp),
		LocationID:    v.LocationID,
		Timestamp:     v.Timestamp,
		PredictedPM25: predicted,
		HazardFlag:    Hazardous(predicted, hazardThreshold),
		ActualPM25:    v.ActualPM25,
		GeneratedAt:   clock.Now().UTC(),
	}
	if v.ActualPM25 != nil {
		e := predicted - *v.ActualPM25
		p.Error = &e
	}
	return p
}

// Hazardous reports whether a predicted concentration exceeds the configured
// threshold. Strictly greater-than: a prediction exactly at the threshold is
// not flagged.
func Hazardous(predictedPM25, threshold float64) bool {
	return predictedPM25 > threshold
}
