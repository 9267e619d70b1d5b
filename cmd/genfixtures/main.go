// Command genfixtures generates a synthetic observation archive plus the
// expected prediction fixture derived from it. It runs the actual loader,
// feature builder, and model so the fixture always matches real pipeline
// behavior.
//
// Usage:
//
//	go run ./cmd/genfixtures \
//	  -out data/observations.csv.gz \
//	  -model data/pm25_model.txt \
//	  -schema data/pm25_model_schema.json \
//	  -expected-out data/expected_predictions.json
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/gzip"

	"github.com/smokesignal-ai/pm25-dashboard/internal/dataset"
	"github.com/smokesignal-ai/pm25-dashboard/internal/domain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/features"
	"github.com/smokesignal-ai/pm25-dashboard/internal/model"
	"github.com/smokesignal-ai/pm25-dashboard/internal/observability"
)

var episodeStart = time.Date(2020, time.September, 7, 0, 0, 0, 0, time.UTC)

// site describes one synthetic monitoring location. The smoke peak shifts
// across sites so the fixture covers clean, moderate, and hazardous series.
type site struct {
	id        string
	lat, lon  float64
	basePM25  float64
	smokePeak float64 // peak added during the plume passage
	peakDay   int     // day index when the plume is strongest
}

var sites = []site{
	{id: "bend-or", lat: 44.0582, lon: -121.3153, basePM25: 8, smokePeak: 180, peakDay: 5},
	{id: "sisters-or", lat: 44.2909, lon: -121.5492, basePM25: 10, smokePeak: 140, peakDay: 6},
	{id: "redmond-or", lat: 44.2726, lon: -121.1739, basePM25: 7, smokePeak: 60, peakDay: 7},
	{id: "madras-or", lat: 44.6337, lon: -121.1294, basePM25: 6, smokePeak: 15, peakDay: 8},
}

const fixtureDays = 12

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	archiveOut := flag.String("out", "data/observations.csv.gz", "output path for the observation archive")
	modelPath := flag.String("model", "data/pm25_model.txt", "pretrained model artifact")
	schemaPath := flag.String("schema", "data/pm25_model_schema.json", "model schema manifest")
	expectedOut := flag.String("expected-out", "data/expected_predictions.json", "output path for expected predictions")
	threshold := flag.Float64("hazard-threshold", 35.0, "hazard threshold in µg/m³")
	flag.Parse()

	// Fixed clock for reproducible GeneratedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2020, time.September, 20, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	rows := generateRows()
	if err := writeArchive(*archiveOut, rows); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}
	log.Printf("wrote archive: %s (%d rows)", *archiveOut, len(rows))

	// Run the real pipeline over the archive we just wrote.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	tables, err := dataset.NewLoader(logger, metrics).LoadArchive(*archiveOut)
	if err != nil {
		return fmt.Errorf("loading archive back: %w", err)
	}

	set := features.NewBuilder(90*time.Minute, logger, metrics).Build(tables)

	predictor, err := model.Load(*modelPath, *schemaPath, logger)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	predictions := make([]domain.Prediction, 0, len(set.Vectors))
	for _, v := range set.Vectors {
		predicted, err := predictor.Predict(v.Row())
		if err != nil {
			return fmt.Errorf("scoring %s@%s: %w", v.LocationID, v.Timestamp.Format(time.RFC3339), err)
		}
		predictions = append(predictions, domain.NewPrediction(v, predicted, *threshold))
	}

	if err := writeJSON(*expectedOut, predictions); err != nil {
		return fmt.Errorf("writing expected predictions: %w", err)
	}
	log.Printf("wrote expected predictions: %s", *expectedOut)

	printStats(set, predictions, *threshold)
	return nil
}

// csvRow is one line of the archive, string-valued so missing cells stay
// empty rather than zero.
type csvRow struct {
	timestamp  time.Time
	locationID string
	source     domain.Source
	lat, lon   float64
	cells      map[string]string
}

// generateRows produces one satellite pass and one ground reading per site
// per day. The deterministic plume curve peaks at a different day per site
// so downstream assertions have both hazardous and clean series to check.
func generateRows() []csvRow {
	var rows []csvRow
	for _, s := range sites {
		for day := 0; day < fixtureDays; day++ {
			pm25 := s.basePM25 + s.smokePeak*plumeShape(day-s.peakDay)
			smoke := smokeIndexFor(s.smokePeak * plumeShape(day-s.peakDay))
			aod := 0.1 + pm25/250.0

			groundAt := episodeStart.AddDate(0, 0, day).Add(14 * time.Hour)
			satAt := groundAt.Add(-25 * time.Minute) // inside the default join window

			rows = append(rows, csvRow{
				timestamp:  satAt,
				locationID: s.id,
				source:     domain.SourceSatellite,
				lat:        s.lat,
				lon:        s.lon,
				cells: map[string]string{
					"aod":         formatFloat(aod),
					"smoke_index": strconv.Itoa(smoke),
				},
			})

			ground := csvRow{
				timestamp:  groundAt,
				locationID: s.id,
				source:     domain.SourceGround,
				lat:        s.lat,
				lon:        s.lon,
				cells: map[string]string{
					"pm25":          formatFloat(pm25),
					"temperature_c": formatFloat(24 - 0.5*float64(day)),
					"humidity_pct":  formatFloat(30 + 2*float64(day)),
					"wind_speed_ms": formatFloat(2 + plumeShape(day-s.peakDay)*4),
				},
			}
			// Next-day ground truth is available for all but the last day.
			if day < fixtureDays-1 {
				next := s.basePM25 + s.smokePeak*plumeShape(day+1-s.peakDay)
				ground.cells["actual_pm25"] = formatFloat(next)
			}
			rows = append(rows, ground)
		}
	}
	return rows
}

// plumeShape is a smooth bump in [0,1] centered on offset 0, ~4 days wide.
func plumeShape(offset int) float64 {
	return math.Exp(-float64(offset*offset) / 4.0)
}

func smokeIndexFor(added float64) int {
	switch {
	case added >= 100:
		return 3
	case added >= 40:
		return 2
	case added >= 10:
		return 1
	default:
		return 0
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

var archiveColumns = []string{
	"timestamp", "location_id", "source", "lat", "lon",
	"pm25", "aod", "smoke_index", "temperature_c", "humidity_pct", "wind_speed_ms",
	"actual_pm25",
}

func writeArchive(path string, rows []csvRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	w := csv.NewWriter(gz)

	if err := w.Write(archiveColumns); err != nil {
		return err
	}
	for _, r := range rows {
		record := make([]string, len(archiveColumns))
		record[0] = r.timestamp.Format(time.RFC3339)
		record[1] = r.locationID
		record[2] = string(r.source)
		record[3] = formatFloat(r.lat)
		record[4] = formatFloat(r.lon)
		for i, col := range archiveColumns[5:] {
			record[5+i] = r.cells[col]
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return gz.Close()
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(set *features.FeatureSet, predictions []domain.Prediction, threshold float64) {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Satellite rows: %d, ground rows: %d, joined: %d\n",
		set.Report.SatelliteRows, set.Report.GroundRows, set.Report.Joined)
	fmt.Printf("Locations covered: %d\n", set.Report.LocationsCovered)
	fmt.Printf("First-observation rows (velocity undefined): %d\n", set.Report.FirstObservation)

	var hazardous int
	var maxPredicted float64
	perLocation := map[string]int{}
	for i := range predictions {
		p := &predictions[i]
		perLocation[p.LocationID]++
		if p.HazardFlag {
			hazardous++
		}
		if p.PredictedPM25 > maxPredicted {
			maxPredicted = p.PredictedPM25
		}
	}
	fmt.Printf("Predictions: %d, hazardous (> %.1f): %d\n", len(predictions), threshold, hazardous)
	fmt.Printf("Max predicted: %.2f µg/m³\n", maxPredicted)
	for _, s := range sites {
		fmt.Printf("  %s: %d predictions\n", s.id, perLocation[s.id])
	}
}
