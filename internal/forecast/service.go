// Package forecast owns the dashboard's read model: an immutable context of
// scored feature vectors built once at process start and shared by every
// session. Nothing here mutates after Precompute returns, so concurrent
// readers need no locking.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smokesignal-ai/pm25-dashboard/internal/config"
	"github.com/smokesignal-ai/pm25-dashboard/internal/domain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/explain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/features"
	"github.com/smokesignal-ai/pm25-dashboard/internal/model"
	"github.com/smokesignal-ai/pm25-dashboard/internal/observability"
)

// ErrUnknownLocation is returned for location IDs absent from the dataset.
var ErrUnknownLocation = errors.New("unknown location")

// ErrNotFound is returned when a location has no row at the requested date.
var ErrNotFound = errors.New("no forecast for requested date")

// scoredRow pairs a feature vector with its prediction.
type scoredRow struct {
	vector     domain.FeatureVector
	prediction domain.Prediction
}

// Service serves forecasts, hazard flags, and explanations out of the
// precomputed context.
type Service struct {
	cfg       *config.Config
	predictor model.Predictor
	explainer *explain.CachedExplainer
	logger    *slog.Logger
	metrics   *observability.Metrics

	featureSet *features.FeatureSet
	byLocation map[string][]scoredRow
	locations  []domain.LocationInfo
	ready      atomic.Bool
}

// New creates a Service over an assembled feature set. Call Precompute
// before serving traffic.
func New(
	cfg *config.Config,
	set *features.FeatureSet,
	predictor model.Predictor,
	explainer *explain.CachedExplainer,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		cfg:        cfg,
		predictor:  predictor,
		explainer:  explainer,
		logger:     logger,
		metrics:    metrics,
		featureSet: set,
		byLocation: make(map[string][]scoredRow),
	}
}

// Precompute scores every feature vector and freezes the read model. Scoring
// is parallelized across a bounded worker group; a single scoring failure
// aborts startup — a partially scored dashboard would be misleading.
func (s *Service) Precompute(ctx context.Context) error {
	start := time.Now()

	predictions := make([]float64, len(s.featureSet.Vectors))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ScoringWorkers)

	for i := range s.featureSet.Vectors {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := s.predictor.Predict(s.featureSet.Vectors[i].Row())
			if err != nil {
				return fmt.Errorf("score row %s@%s: %w",
					s.featureSet.Vectors[i].LocationID, s.featureSet.Vectors[i].Timestamp, err)
			}
			predictions[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	hazardous := 0
	for i, vec := range s.featureSet.Vectors {
		pred := domain.NewPrediction(vec, predictions[i], s.cfg.HazardThresholdUGM3)
		if pred.HazardFlag {
			hazardous++
		}
		s.byLocation[vec.LocationID] = append(s.byLocation[vec.LocationID], scoredRow{
			vector:     vec,
			prediction: pred,
		})
	}

	for id, rows := range s.byLocation {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].prediction.Timestamp.Before(rows[j].prediction.Timestamp)
		})
		first := rows[0]
		s.locations = append(s.locations, domain.LocationInfo{
			ID:        id,
			Label:     domain.LocationLabel(first.vector.Lat, first.vector.Lon),
			Lat:       first.vector.Lat,
			Lon:       first.vector.Lon,
			FirstTime: rows[0].prediction.Timestamp,
			LastTime:  rows[len(rows)-1].prediction.Timestamp,
			Rows:      len(rows),
		})
	}
	sort.Slice(s.locations, func(i, j int) bool { return s.locations[i].ID < s.locations[j].ID })

	s.metrics.PredictionsComputed.Add(float64(len(s.featureSet.Vectors)))
	s.metrics.HazardousPredictions.Set(float64(hazardous))
	s.metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	s.ready.Store(true)

	s.logger.Info("forecasts precomputed",
		"rows", len(s.featureSet.Vectors),
		"locations", len(s.locations),
		"hazardous", hazardous,
		"duration", time.Since(start),
	)
	return nil
}

// CheckReadiness returns nil once the forecast context is fully built.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("forecast context not yet precomputed")
	}
	return nil
}

// Locations lists monitor locations for the dashboard pickers, sorted by ID.
func (s *Service) Locations() []domain.LocationInfo {
	return s.locations
}

// Report returns the feature-assembly accounting for the loaded dataset.
func (s *Service) Report() features.Report {
	return s.featureSet.Report
}

// Series returns the full time-ordered forecast series for one location.
func (s *Service) Series(locationID string) ([]domain.Prediction, error) {
	rows, ok := s.byLocation[locationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLocation, locationID)
	}
	out := make([]domain.Prediction, len(rows))
	for i, r := range rows {
		out[i] = r.prediction
	}
	return out, nil
}

// At returns the prediction for a location on a specific UTC calendar day.
func (s *Service) At(locationID string, day time.Time) (domain.Prediction, error) {
	row, err := s.rowAt(locationID, day)
	if err != nil {
		return domain.Prediction{}, err
	}
	return row.prediction, nil
}

// ExplainAt computes (or serves from cache) the attribution and key-driver
// assessment for a location's prediction on a specific UTC calendar day.
func (s *Service) ExplainAt(locationID string, day time.Time) (domain.Attribution, domain.DriverAssessment, error) {
	row, err := s.rowAt(locationID, day)
	if err != nil {
		return domain.Attribution{}, domain.DriverAssessment{}, err
	}

	attr, err := s.explainer.Explain(row.vector)
	if err != nil {
		return domain.Attribution{}, domain.DriverAssessment{}, err
	}
	drivers := explain.DeriveDrivers(attr, row.vector, s.cfg.VelocityAlertUGM3H)
	return attr, drivers, nil
}

// Alerts returns every prediction above the hazard threshold, across all
// locations, in chronological order.
func (s *Service) Alerts() []domain.Prediction {
	var alerts []domain.Prediction
	for _, info := range s.locations {
		for _, r := range s.byLocation[info.ID] {
			if r.prediction.HazardFlag {
				alerts = append(alerts, r.prediction)
			}
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Timestamp.Before(alerts[j].Timestamp)
	})
	return alerts
}

// rowAt finds the first row for a location whose timestamp falls on the
// given UTC day.
func (s *Service) rowAt(locationID string, day time.Time) (scoredRow, error) {
	rows, ok := s.byLocation[locationID]
	if !ok {
		return scoredRow{}, fmt.Errorf("%w: %s", ErrUnknownLocation, locationID)
	}
	y, m, d := day.UTC().Date()
	for _, r := range rows {
		ry, rm, rd := r.prediction.Timestamp.UTC().Date()
		if ry == y && rm == m && rd == d {
			return r, nil
		}
	}
	return scoredRow{}, fmt.Errorf("%w: %s on %s", ErrNotFound, locationID, day.Format("2006-01-02"))
}
