// Package model wraps the pretrained gradient-boosting artifact behind a
// narrow Predictor interface. The boosting library is consumed as a black
// box: this package's own responsibilities are schema enforcement and
// imputation, so a mislabeled feature matrix can never reach the trees.
package model

import (
	"fmt"
	"log/slog"

	"github.com/dmitryikh/leaves"

	"github.com/smokesignal-ai/pm25-dashboard/internal/domain"
)

// Predictor scores one feature row into a 24-hour-ahead PM2.5 estimate.
// Any conforming gradient-boosting implementation satisfies it; the pipeline
// never depends on the concrete library.
type Predictor interface {
	Predict(row domain.FeatureRow) (float64, error)
	Schema() Schema
}

// booster is the slice of the leaves ensemble API the adapter needs.
type booster interface {
	PredictSingle(fvals []float64, nEstimators int) float64
	NFeatures() int
}

// GBM is the leaves-backed Predictor over a LightGBM text artifact.
type GBM struct {
	ensemble booster
	schema   Schema
}

// Load deserializes the model artifact and its schema manifest. Returns a
// *domain.ModelUnavailableError when either cannot be read — fatal for the
// dashboard, no retries.
func Load(modelPath, schemaPath string, logger *slog.Logger) (*GBM, error) {
	schema, err := LoadSchema(schemaPath)
	if err != nil {
		return nil, err
	}

	ensemble, err := leaves.LGEnsembleFromFile(modelPath, false)
	if err != nil {
		return nil, &domain.ModelUnavailableError{Path: modelPath, Err: err}
	}

	if ensemble.NFeatures() != len(schema.FeatureOrder) {
		return nil, &domain.ModelUnavailableError{
			Path: modelPath,
			Err: fmt.Errorf("artifact expects %d features, schema manifest lists %d",
				ensemble.NFeatures(), len(schema.FeatureOrder)),
		}
	}

	logger.Info("model loaded",
		"path", modelPath,
		"features", ensemble.NFeatures(),
		"trees", ensemble.NEstimators(),
		"imputation", schema.Imputation,
	)
	return &GBM{ensemble: ensemble, schema: schema}, nil
}

// NewWithBooster wires an already-loaded booster to a schema. Used by tests
// and fixture tooling.
func NewWithBooster(b booster, schema Schema) (*GBM, error) {
	if err := schema.validate(); err != nil {
		return nil, err
	}
	if b.NFeatures() != len(schema.FeatureOrder) {
		return nil, fmt.Errorf("booster expects %d features, schema lists %d",
			b.NFeatures(), len(schema.FeatureOrder))
	}
	return &GBM{ensemble: b, schema: schema}, nil
}

// Predict validates the row against the training-time schema, imputes
// undefined values, and scores it. The returned estimate is µg/m³.
func (g *GBM) Predict(row domain.FeatureRow) (float64, error) {
	if err := g.schema.Check(row); err != nil {
		return 0, err
	}
	return g.ensemble.PredictSingle(g.schema.Impute(row), 0), nil
}

// Schema returns the training-time schema the artifact was loaded with.
func (g *GBM) Schema() Schema { return g.schema }
