package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Source identifies the collection path an observation arrived through.
type Source string

const (
	SourceSatellite Source = "satellite"
	SourceGround    Source = "ground"
)

// Observation is one historical reading from the bundled archive. Satellite
// rows carry AOD and the smoke index; ground rows carry PM2.5, the
// meteorological covariates, and optionally the 24-hour-ahead actual used for
// error reporting. Observations are read-only snapshots; nothing mutates them
// after loading.
type Observation struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	LocationID string    `json:"location_id"`
	Source     Source    `json:"source"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`

	// Pollutant readings. Nil means the column was empty for this source.
	PM25       *float64 `json:"pm25,omitempty"`        // µg/m³ (ground)
	AOD        *float64 `json:"aod,omitempty"`         // aerosol optical depth (satellite)
	SmokeIndex *float64 `json:"smoke_index,omitempty"` // 0–3 plume intensity (satellite)

	// Weather covariates (ground).
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	HumidityPct  *float64 `json:"humidity_pct,omitempty"`
	WindSpeedMS  *float64 `json:"wind_speed_ms,omitempty"`

	// ActualPM25 is the label column: PM2.5 observed 24h after Timestamp.
	ActualPM25 *float64 `json:"actual_pm25,omitempty"`
}

// ObservationID produces a deterministic ID from an observation's key fields.
// Reloading the same archive yields the same IDs, which keeps log lines and
// cache keys stable across restarts.
func ObservationID(locationID string, source Source, ts time.Time) string {
	input := fmt.Sprintf("%s|%s|%s", locationID, source, ts.UTC().Format(time.RFC3339))
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if source == "" {
		return short
	}
	return string(source) + "-" + short
}

// LocationLabel renders the "lat, lon" label the dashboard uses for monitor
// pickers, e.g. "39.7392, -104.9903".
func LocationLabel(lat, lon float64) string {
	return fmt.Sprintf("%.4f, %.4f", lat, lon)
}

// LocationInfo summarizes one monitor location for the dashboard's pickers.
type LocationInfo struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	FirstTime time.Time `json:"first_time"`
	LastTime  time.Time `json:"last_time"`
	Rows      int       `json:"rows"`
}
