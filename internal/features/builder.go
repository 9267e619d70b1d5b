// Package features assembles the model's feature matrix: it joins satellite
// and ground observations by nearest timestamp per location and derives the
// plume-velocity feature from consecutive ground readings.
package features

import (
	"log/slog"
	"sort"
	"time"

	"github.com/smokesignal-ai/pm25-dashboard/internal/dataset"
	"github.com/smokesignal-ai/pm25-dashboard/internal/domain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/observability"
)

// FeatureSet is the assembled matrix plus join accounting. Dropped rows are
// counted and reported, never silently discarded — an unmatched satellite
// pass is a documented gap in coverage, not a free bias.
type FeatureSet struct {
	Vectors []domain.FeatureVector
	Report  Report
}

// Report counts the outcome of one build pass.
type Report struct {
	SatelliteRows      int `json:"satellite_rows"`
	GroundRows         int `json:"ground_rows"`
	Joined             int `json:"joined"`
	DroppedNoMatch     int `json:"dropped_no_ground_match"`
	FirstObservation   int `json:"first_observation_rows"` // rows with undefined velocity
	InvalidVelocity    int `json:"invalid_velocity_rows"`  // non-chronological duplicates
	LocationsCovered   int `json:"locations_covered"`
	UnusedGroundRows   int `json:"unused_ground_rows"`
	ToleranceWindowMin int `json:"tolerance_window_minutes"`
}

// Builder joins the two observation tables into feature vectors.
type Builder struct {
	tolerance time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewBuilder creates a Builder with the given join tolerance window.
func NewBuilder(tolerance time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Builder {
	return &Builder{tolerance: tolerance, logger: logger, metrics: metrics}
}

// groundReading is a ground observation with its derived plume velocity.
type groundReading struct {
	obs      domain.Observation
	velocity *float64 // nil for the first reading at a location
	used     bool
}

// Build produces one feature vector per satellite observation that has a
// ground match within the tolerance window. Satellite rows without a match
// are dropped and counted.
func (b *Builder) Build(tables *dataset.Tables) *FeatureSet {
	byLocation := groupGround(tables.Ground)
	deriveVelocities(byLocation)

	set := &FeatureSet{
		Report: Report{
			SatelliteRows:      len(tables.Satellite),
			GroundRows:         len(tables.Ground),
			ToleranceWindowMin: int(b.tolerance.Minutes()),
		},
	}

	satellite := make([]domain.Observation, len(tables.Satellite))
	copy(satellite, tables.Satellite)
	sort.SliceStable(satellite, func(i, j int) bool {
		if satellite[i].LocationID != satellite[j].LocationID {
			return satellite[i].LocationID < satellite[j].LocationID
		}
		return satellite[i].Timestamp.Before(satellite[j].Timestamp)
	})

	for _, sat := range satellite {
		readings := byLocation[sat.LocationID]
		match := nearest(readings, sat.Timestamp)
		if match < 0 || absDuration(readings[match].obs.Timestamp.Sub(sat.Timestamp)) > b.tolerance {
			set.Report.DroppedNoMatch++
			b.metrics.RowsDropped.WithLabelValues("no_ground_match").Inc()
			continue
		}

		g := readings[match]
		readings[match].used = true
		if g.velocity == nil {
			set.Report.FirstObservation++
		}

		set.Vectors = append(set.Vectors, domain.FeatureVector{
			LocationID:    sat.LocationID,
			Timestamp:     g.obs.Timestamp,
			Lat:           g.obs.Lat,
			Lon:           g.obs.Lon,
			GroundPM25:    *g.obs.PM25,
			SatelliteAOD:  *sat.AOD,
			SmokeIndex:    *sat.SmokeIndex,
			TemperatureC:  *g.obs.TemperatureC,
			HumidityPct:   *g.obs.HumidityPct,
			WindSpeedMS:   *g.obs.WindSpeedMS,
			PlumeVelocity: g.velocity,
			ActualPM25:    g.obs.ActualPM25,
		})
		set.Report.Joined++
	}

	locations := map[string]bool{}
	for _, v := range set.Vectors {
		locations[v.LocationID] = true
	}
	set.Report.LocationsCovered = len(locations)

	for _, readings := range byLocation {
		for _, g := range readings {
			if !g.used {
				set.Report.UnusedGroundRows++
				b.metrics.RowsDropped.WithLabelValues("unused_ground").Inc()
			}
		}
	}
	set.Report.InvalidVelocity = countInvalidVelocity(byLocation)
	b.metrics.FeatureRows.Add(float64(set.Report.Joined))

	b.logger.Info("feature matrix built",
		"joined", set.Report.Joined,
		"dropped_no_ground_match", set.Report.DroppedNoMatch,
		"first_observation_rows", set.Report.FirstObservation,
		"unused_ground_rows", set.Report.UnusedGroundRows,
		"locations", set.Report.LocationsCovered,
		"tolerance", b.tolerance,
	)
	return set
}

// groupGround buckets ground observations by location in chronological order.
func groupGround(ground []domain.Observation) map[string][]*groundReading {
	byLocation := make(map[string][]*groundReading)
	for _, obs := range ground {
		byLocation[obs.LocationID] = append(byLocation[obs.LocationID], &groundReading{obs: obs})
	}
	for _, readings := range byLocation {
		sort.SliceStable(readings, func(i, j int) bool {
			return readings[i].obs.Timestamp.Before(readings[j].obs.Timestamp)
		})
	}
	return byLocation
}

// deriveVelocities fills in plume velocity per reading. The first reading at
// each location keeps velocity nil: undefined, not zero. Readings that share
// a timestamp with their predecessor also stay nil (velocity undefined over
// a zero interval).
func deriveVelocities(byLocation map[string][]*groundReading) {
	for _, readings := range byLocation {
		for i := 1; i < len(readings); i++ {
			prev, curr := readings[i-1], readings[i]
			v, err := domain.PlumeVelocity(
				*prev.obs.PM25, prev.obs.Timestamp,
				*curr.obs.PM25, curr.obs.Timestamp,
			)
			if err != nil {
				continue
			}
			curr.velocity = &v
		}
	}
}

func countInvalidVelocity(byLocation map[string][]*groundReading) int {
	n := 0
	for _, readings := range byLocation {
		for i := 1; i < len(readings); i++ {
			if readings[i].velocity == nil {
				n++
			}
		}
	}
	return n
}

// nearest returns the index of the chronologically closest reading, or -1
// when the slice is empty.
func nearest(readings []*groundReading, ts time.Time) int {
	if len(readings) == 0 {
		return -1
	}
	// First reading at or after ts.
	i := sort.Search(len(readings), func(i int) bool {
		return !readings[i].obs.Timestamp.Before(ts)
	})
	switch i {
	case 0:
		return 0
	case len(readings):
		return len(readings) - 1
	}
	before := absDuration(ts.Sub(readings[i-1].obs.Timestamp))
	after := absDuration(readings[i].obs.Timestamp.Sub(ts))
	if before <= after {
		return i - 1
	}
	return i
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
