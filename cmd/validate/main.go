// Command validate performs end-to-end integrity checks across the forecast
// pipeline fixtures: the observation archive, the assembled feature matrix,
// model scoring against the expected-prediction fixture, and attribution
// completeness.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -archive data/observations.csv.gz \
//	  -model data/pm25_model.txt \
//	  -schema data/pm25_model_schema.json \
//	  -expected data/expected_predictions.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/smokesignal-ai/pm25-dashboard/internal/dataset"
	"github.com/smokesignal-ai/pm25-dashboard/internal/domain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/explain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/features"
	"github.com/smokesignal-ai/pm25-dashboard/internal/model"
	"github.com/smokesignal-ai/pm25-dashboard/internal/observability"
)

const (
	joinTolerance   = 90 * time.Minute
	hazardThreshold = 35.0
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	archive := flag.String("archive", "data/observations.csv.gz", "path to the observation archive")
	modelPath := flag.String("model", "data/pm25_model.txt", "pretrained model artifact")
	schemaPath := flag.String("schema", "data/pm25_model_schema.json", "model schema manifest")
	expected := flag.String("expected", "data/expected_predictions.json", "expected prediction fixture")
	flag.Parse()

	if code := run(*archive, *modelPath, *schemaPath, *expected); code != 0 {
		os.Exit(code)
	}
}

func run(archivePath, modelPath, schemaPath, expectedPath string) int {
	// Fixed clock matching genfixtures so GeneratedAt comparisons hold.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2020, time.September, 20, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	fmt.Println("=== Forecast Pipeline Integrity Validation ===")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	tables, err := dataset.NewLoader(logger, metrics).LoadArchive(archivePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load archive: %v\n", err)
		return 1
	}

	set := features.NewBuilder(joinTolerance, logger, metrics).Build(tables)

	predictor, err := model.Load(modelPath, schemaPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load model: %v\n", err)
		return 1
	}

	expectedPredictions, err := loadJSON[domain.Prediction](expectedPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load expected predictions: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateArchive(tables),
		validateFeatureMatrix(set, tables),
		validateScoring(set, predictor, expectedPredictions),
		validateAttribution(set, predictor),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-44s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d satellite, %d ground, %d feature rows, %d expected predictions\n",
		len(tables.Satellite), len(tables.Ground), len(set.Vectors), len(expectedPredictions))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ── Phase 1: Archive Integrity ──
// Validates the loaded observation tables against source invariants.

func validateArchive(tables *dataset.Tables) *phase {
	p := &phase{name: "Phase 1: Archive Integrity"}

	if len(tables.Satellite) == 0 {
		p.errorf("no satellite rows loaded")
	}
	if len(tables.Ground) == 0 {
		p.errorf("no ground rows loaded")
	}
	if tables.Report.MalformedRows > 0 {
		p.errorf("archive contains %d malformed rows", tables.Report.MalformedRows)
	}

	for i := range tables.Satellite {
		o := &tables.Satellite[i]
		if o.AOD == nil || o.SmokeIndex == nil {
			p.errorf("satellite row %s@%s: missing aod or smoke_index", o.LocationID, o.Timestamp.Format(time.RFC3339))
		}
		if o.SmokeIndex != nil && (*o.SmokeIndex < 0 || *o.SmokeIndex > 3) {
			p.errorf("satellite row %s@%s: smoke_index %g outside [0,3]", o.LocationID, o.Timestamp.Format(time.RFC3339), *o.SmokeIndex)
		}
	}
	for i := range tables.Ground {
		o := &tables.Ground[i]
		if o.PM25 == nil || o.TemperatureC == nil || o.HumidityPct == nil || o.WindSpeedMS == nil {
			p.errorf("ground row %s@%s: missing covariate", o.LocationID, o.Timestamp.Format(time.RFC3339))
		}
	}
	return p
}

// ── Phase 2: Feature Matrix ──
// Validates the satellite/ground join and the velocity derivation.

func validateFeatureMatrix(set *features.FeatureSet, tables *dataset.Tables) *phase {
	p := &phase{name: "Phase 2: Feature Matrix (join + velocity)"}

	r := set.Report
	if r.Joined != len(set.Vectors) {
		p.errorf("report.joined=%d but %d vectors assembled", r.Joined, len(set.Vectors))
	}
	if r.Joined+r.DroppedNoMatch != r.SatelliteRows {
		p.errorf("joined (%d) + dropped (%d) != satellite rows (%d)", r.Joined, r.DroppedNoMatch, r.SatelliteRows)
	}
	if r.SatelliteRows != len(tables.Satellite) {
		p.errorf("report.satellite_rows=%d, loader saw %d", r.SatelliteRows, len(tables.Satellite))
	}

	firstSeen := map[string]bool{}
	for i := range set.Vectors {
		v := &set.Vectors[i]
		if v.PlumeVelocity == nil && firstSeen[v.LocationID] {
			p.errorf("%s@%s: velocity undefined on a non-first observation", v.LocationID, v.Timestamp.Format(time.RFC3339))
		}
		firstSeen[v.LocationID] = true

		row := v.Row()
		for j, name := range row.Names {
			if name != "plume_velocity" && row.Missing[j] {
				p.errorf("%s@%s: covariate %s marked missing", v.LocationID, v.Timestamp.Format(time.RFC3339), name)
			}
		}
	}
	return p
}

// ── Phase 3: Model Scoring ──
// Re-scores every feature vector and compares against the expected fixture.

func validateScoring(set *features.FeatureSet, predictor model.Predictor, expected []domain.Prediction) *phase {
	p := &phase{name: "Phase 3: Model Scoring (vs fixture)"}

	byID := make(map[string]*domain.Prediction, len(expected))
	for i := range expected {
		byID[expected[i].ID] = &expected[i]
	}

	if len(expected) != len(set.Vectors) {
		p.errorf("fixture has %d predictions, matrix has %d vectors", len(expected), len(set.Vectors))
	}

	for i := range set.Vectors {
		v := set.Vectors[i]
		predicted, err := predictor.Predict(v.Row())
		if err != nil {
			p.errorf("%s@%s: scoring failed: %v", v.LocationID, v.Timestamp.Format(time.RFC3339), err)
			continue
		}

		got := domain.NewPrediction(v, predicted, hazardThreshold)
		want, ok := byID[got.ID]
		if !ok {
			p.errorf("%s@%s: ID %s not in fixture", v.LocationID, v.Timestamp.Format(time.RFC3339), got.ID)
			continue
		}

		if !floatEq(want.PredictedPM25, got.PredictedPM25) {
			p.errorf("ID %s: predicted: fixture=%g, pipeline=%g", got.ID, want.PredictedPM25, got.PredictedPM25)
		}
		if want.HazardFlag != got.HazardFlag {
			p.errorf("ID %s: hazard flag: fixture=%v, pipeline=%v", got.ID, want.HazardFlag, got.HazardFlag)
		}
		if !ptrFloatEq(want.Error, got.Error) {
			p.errorf("ID %s: error field mismatch", got.ID)
		}
	}
	return p
}

// ── Phase 4: Attribution Completeness ──
// Checks that per-feature contributions sum to prediction minus baseline.

func validateAttribution(set *features.FeatureSet, predictor model.Predictor) *phase {
	p := &phase{name: "Phase 4: Attribution Completeness"}

	explainer := explain.New(predictor)
	order := predictor.Schema().FeatureOrder

	for i := range set.Vectors {
		v := set.Vectors[i]
		attr, err := explainer.Explain(v)
		if err != nil {
			p.errorf("%s@%s: explain failed: %v", v.LocationID, v.Timestamp.Format(time.RFC3339), err)
			continue
		}

		var sum float64
		for _, c := range attr.Contributions {
			sum += c.Score
		}
		if math.Abs(sum-(attr.Predicted-attr.Baseline)) > 1e-6 {
			p.errorf("%s@%s: contributions sum %g != predicted-baseline %g",
				v.LocationID, v.Timestamp.Format(time.RFC3339), sum, attr.Predicted-attr.Baseline)
		}

		if len(attr.Contributions) != len(order) {
			p.errorf("%s@%s: %d contributions, schema has %d features",
				v.LocationID, v.Timestamp.Format(time.RFC3339), len(attr.Contributions), len(order))
			continue
		}
		for j, c := range attr.Contributions {
			if c.Feature != order[j] {
				p.errorf("%s@%s: contribution %d is %q, schema order says %q",
					v.LocationID, v.Timestamp.Format(time.RFC3339), j, c.Feature, order[j])
			}
		}
	}
	return p
}

// ── Helpers ──

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func ptrFloatEq(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return floatEq(*a, *b)
}
