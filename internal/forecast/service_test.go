package forecast

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smokesignal-ai/pm25-dashboard/internal/config"
	"github.com/smokesignal-ai/pm25-dashboard/internal/domain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/explain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/features"
	"github.com/smokesignal-ai/pm25-dashboard/internal/model"
	"github.com/smokesignal-ai/pm25-dashboard/internal/observability"
)

var base = time.Date(2023, 8, 12, 13, 0, 0, 0, time.UTC)

// stubBooster predicts 4×ground_pm25 so hazard outcomes are easy to stage.
type stubBooster struct{}

func (stubBooster) PredictSingle(fvals []float64, _ int) float64 { return 4 * fvals[0] }
func (stubBooster) NFeatures() int                              { return len(domain.FeatureNames) }

func testConfig() *config.Config {
	return &config.Config{
		HazardThresholdUGM3: 35.0,
		VelocityAlertUGM3H:  10.0,
		ScoringWorkers:      2,
		ExplainCacheSize:    16,
	}
}

func vector(loc string, ts time.Time, pm25 float64, velocity *float64) domain.FeatureVector {
	return domain.FeatureVector{
		LocationID:    loc,
		Timestamp:     ts,
		Lat:           39.7392,
		Lon:           -104.9903,
		GroundPM25:    pm25,
		SatelliteAOD:  0.8,
		SmokeIndex:    1,
		TemperatureC:  31.5,
		HumidityPct:   18,
		WindSpeedMS:   4.2,
		PlumeVelocity: velocity,
	}
}

func newTestService(t *testing.T, vectors []domain.FeatureVector) *Service {
	t.Helper()

	gbm, err := model.NewWithBooster(stubBooster{}, model.Schema{
		FeatureOrder: domain.FeatureNames,
		Imputation:   "zero",
		Baseline:     []float64{5, 0.2, 0, 20, 40, 3, 0},
	})
	require.NoError(t, err)

	metrics := observability.NewMetricsForTesting()
	cfg := testConfig()
	explainer := explain.NewCached(explain.New(gbm), cfg.ExplainCacheSize, metrics)

	svc := New(cfg, &features.FeatureSet{Vectors: vectors}, gbm, explainer, slog.Default(), metrics)
	return svc
}

func TestPrecomputeAndSeries(t *testing.T) {
	velocity := 6.0
	vectors := []domain.FeatureVector{
		vector("mon-001", base.Add(time.Hour), 40.0, &velocity), // out of order on purpose
		vector("mon-001", base, 5.0, nil),
		vector("mon-002", base, 2.0, nil),
	}

	svc := newTestService(t, vectors)
	require.Error(t, svc.CheckReadiness(context.Background()), "not ready before precompute")
	require.NoError(t, svc.Precompute(context.Background()))
	require.NoError(t, svc.CheckReadiness(context.Background()))

	series, err := svc.Series("mon-001")
	require.NoError(t, err)
	require.Len(t, series, 2)

	assert.True(t, series[0].Timestamp.Before(series[1].Timestamp), "series is time-ordered")
	assert.Equal(t, 20.0, series[0].PredictedPM25)
	assert.False(t, series[0].HazardFlag)
	assert.Equal(t, 160.0, series[1].PredictedPM25)
	assert.True(t, series[1].HazardFlag, "160 µg/m³ against threshold 35 is hazardous")

	_, err = svc.Series("mon-999")
	assert.ErrorIs(t, err, ErrUnknownLocation)
}

func TestLocations(t *testing.T) {
	vectors := []domain.FeatureVector{
		vector("mon-002", base, 5.0, nil),
		vector("mon-001", base, 5.0, nil),
		vector("mon-001", base.Add(time.Hour), 6.0, nil),
	}

	svc := newTestService(t, vectors)
	require.NoError(t, svc.Precompute(context.Background()))

	locs := svc.Locations()
	require.Len(t, locs, 2)
	assert.Equal(t, "mon-001", locs[0].ID)
	assert.Equal(t, "mon-002", locs[1].ID)
	assert.Equal(t, 2, locs[0].Rows)
	assert.Equal(t, "39.7392, -104.9903", locs[0].Label)
	assert.Equal(t, base, locs[0].FirstTime)
	assert.Equal(t, base.Add(time.Hour), locs[0].LastTime)
}

func TestAt(t *testing.T) {
	vectors := []domain.FeatureVector{
		vector("mon-001", base, 5.0, nil),
		vector("mon-001", base.Add(24*time.Hour), 50.0, nil),
	}

	svc := newTestService(t, vectors)
	require.NoError(t, svc.Precompute(context.Background()))

	day := time.Date(2023, 8, 13, 0, 0, 0, 0, time.UTC)
	p, err := svc.At("mon-001", day)
	require.NoError(t, err)
	assert.Equal(t, 200.0, p.PredictedPM25)

	_, err = svc.At("mon-001", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExplainAt(t *testing.T) {
	velocity := 14.0
	vec := vector("mon-001", base, 40.0, &velocity)
	vec.SmokeIndex = 0

	svc := newTestService(t, []domain.FeatureVector{vec})
	require.NoError(t, svc.Precompute(context.Background()))

	attr, drivers, err := svc.ExplainAt("mon-001", base)
	require.NoError(t, err)

	var sum float64
	for _, c := range attr.Contributions {
		sum += c.Score
	}
	assert.InDelta(t, attr.Predicted-attr.Baseline, sum, 1e-9)
	assert.Equal(t, domain.DriverRisingVelocity, drivers.Verdict)
}

func TestAlerts(t *testing.T) {
	velocity := 1.0
	vectors := []domain.FeatureVector{
		vector("mon-002", base.Add(time.Hour), 50.0, &velocity),
		vector("mon-001", base, 60.0, nil),
		vector("mon-001", base.Add(2*time.Hour), 3.0, nil),
	}

	svc := newTestService(t, vectors)
	require.NoError(t, svc.Precompute(context.Background()))

	alerts := svc.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, "mon-001", alerts[0].LocationID)
	assert.Equal(t, "mon-002", alerts[1].LocationID)
	assert.True(t, alerts[0].Timestamp.Before(alerts[1].Timestamp))
	for _, a := range alerts {
		assert.True(t, a.HazardFlag)
	}
}

func TestPrecomputeFailsOnSchemaMismatch(t *testing.T) {
	// A vector can't be shuffled through the typed API, so stage the
	// mismatch with a schema narrower than the canonical row.
	gbm, err := model.NewWithBooster(
		&narrowBooster{},
		model.Schema{
			FeatureOrder: domain.FeatureNames[:3],
			Imputation:   "zero",
			Baseline:     []float64{5, 0.2, 0},
		},
	)
	require.NoError(t, err)

	metrics := observability.NewMetricsForTesting()
	cfg := testConfig()
	svc := New(cfg,
		&features.FeatureSet{Vectors: []domain.FeatureVector{vector("mon-001", base, 5.0, nil)}},
		gbm,
		explain.NewCached(explain.New(gbm), 4, metrics),
		slog.Default(), metrics,
	)

	err = svc.Precompute(context.Background())
	var mismatch *domain.FeatureMismatchError
	require.ErrorAs(t, err, &mismatch, "a mislabeled matrix must abort startup, not mis-score")
	require.Error(t, svc.CheckReadiness(context.Background()))
}

type narrowBooster struct{}

func (narrowBooster) PredictSingle(fvals []float64, _ int) float64 { return fvals[0] }
func (narrowBooster) NFeatures() int                              { return 3 }
