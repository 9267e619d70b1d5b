// Package dataset loads the bundled historical observation archive: a
// gzip-compressed CSV holding both satellite and ground readings. A malformed
// archive is a fatal startup condition; there are no retries.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jszwec/csvutil"
	"github.com/klauspost/compress/gzip"

	"github.com/smokesignal-ai/pm25-dashboard/internal/domain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/observability"
)

// requiredColumns must all be present in the archive header. actual_pm25 is
// intentionally absent: archives without labels are still servable.
var requiredColumns = []string{
	"timestamp", "location_id", "source", "lat", "lon",
	"pm25", "aod", "smoke_index", "temperature_c", "humidity_pct", "wind_speed_ms",
}

// record mirrors one archive CSV row. Pointer fields distinguish an empty
// cell from a literal zero; required_if ties presence to the row's source.
type record struct {
	Timestamp  time.Time `csv:"timestamp" validate:"required"`
	LocationID string    `csv:"location_id" validate:"required"`
	Source     string    `csv:"source" validate:"required,oneof=satellite ground"`
	Lat        float64   `csv:"lat" validate:"gte=-90,lte=90"`
	Lon        float64   `csv:"lon" validate:"gte=-180,lte=180"`

	PM25       *float64 `csv:"pm25" validate:"required_if=Source ground,omitempty,gte=0"`
	AOD        *float64 `csv:"aod" validate:"required_if=Source satellite,omitempty,gte=0"`
	SmokeIndex *float64 `csv:"smoke_index" validate:"required_if=Source satellite,omitempty,gte=0,lte=3"`

	TemperatureC *float64 `csv:"temperature_c" validate:"required_if=Source ground"`
	HumidityPct  *float64 `csv:"humidity_pct" validate:"required_if=Source ground,omitempty,gte=0,lte=100"`
	WindSpeedMS  *float64 `csv:"wind_speed_ms" validate:"required_if=Source ground,omitempty,gte=0"`

	ActualPM25 *float64 `csv:"actual_pm25" validate:"omitempty,gte=0"`
}

// Tables holds the loaded archive split by source, plus load accounting.
type Tables struct {
	Satellite []domain.Observation
	Ground    []domain.Observation
	Report    Report
}

// Report counts what happened during a load. Malformed rows are skipped, not
// fatal, but they are never silently discarded.
type Report struct {
	SatelliteRows int `json:"satellite_rows"`
	GroundRows    int `json:"ground_rows"`
	MalformedRows int `json:"malformed_rows"`
}

// Loader reads and validates observation archives.
type Loader struct {
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewLoader creates a Loader.
func NewLoader(logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		metrics:  metrics,
	}
}

// LoadArchive decompresses and parses the archive at path. It returns a
// *domain.DataLoadError when the archive is missing, corrupt, or lacks a
// required column.
func (l *Loader) LoadArchive(path string) (*Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.DataLoadError{Path: path, Err: err}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, &domain.DataLoadError{Path: path, Err: fmt.Errorf("decompress: %w", err)}
	}
	defer gz.Close()

	tables, err := l.parse(gz)
	if err != nil {
		return nil, &domain.DataLoadError{Path: path, Err: err}
	}

	l.metrics.RowsLoaded.WithLabelValues(string(domain.SourceSatellite)).Add(float64(tables.Report.SatelliteRows))
	l.metrics.RowsLoaded.WithLabelValues(string(domain.SourceGround)).Add(float64(tables.Report.GroundRows))
	l.metrics.RowsMalformed.Add(float64(tables.Report.MalformedRows))

	l.logger.Info("dataset loaded",
		"path", path,
		"satellite_rows", tables.Report.SatelliteRows,
		"ground_rows", tables.Report.GroundRows,
		"malformed_rows", tables.Report.MalformedRows,
	)
	return tables, nil
}

func (l *Loader) parse(r io.Reader) (*Tables, error) {
	csvReader := csv.NewReader(r)
	dec, err := csvutil.NewDecoder(csvReader)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if err := checkHeader(dec.Header()); err != nil {
		return nil, err
	}

	tables := &Tables{}
	for line := 2; ; line++ {
		var rec record
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			if rowLevel(err) {
				l.logger.Warn("skipping malformed row", "line", line, "error", err)
				tables.Report.MalformedRows++
				continue
			}
			return nil, fmt.Errorf("parse row %d: %w", line, err)
		}

		if err := l.validate.Struct(rec); err != nil {
			l.logger.Warn("skipping invalid row", "line", line, "error", err)
			tables.Report.MalformedRows++
			continue
		}

		obs := toObservation(rec)
		switch obs.Source {
		case domain.SourceSatellite:
			tables.Satellite = append(tables.Satellite, obs)
			tables.Report.SatelliteRows++
		case domain.SourceGround:
			tables.Ground = append(tables.Ground, obs)
			tables.Report.GroundRows++
		}
	}

	if tables.Report.SatelliteRows == 0 && tables.Report.GroundRows == 0 {
		return nil, errors.New("archive contains no valid observation rows")
	}
	return tables, nil
}

func checkHeader(header []string) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	for _, col := range requiredColumns {
		if !present[col] {
			return fmt.Errorf("required column %q is absent", col)
		}
	}
	return nil
}

// rowLevel reports whether a decode error affects only the current row and
// parsing can continue with the next one.
func rowLevel(err error) bool {
	var typeErr *csvutil.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return true
	}
	var parseErr *csv.ParseError
	return errors.As(err, &parseErr)
}

func toObservation(rec record) domain.Observation {
	source := domain.Source(rec.Source)
	return domain.Observation{
		ID:           domain.ObservationID(rec.LocationID, source, rec.Timestamp),
		Timestamp:    rec.Timestamp.UTC(),
		LocationID:   rec.LocationID,
		Source:       source,
		Lat:          rec.Lat,
		Lon:          rec.Lon,
		PM25:         rec.PM25,
		AOD:          rec.AOD,
		SmokeIndex:   rec.SmokeIndex,
		TemperatureC: rec.TemperatureC,
		HumidityPct:  rec.HumidityPct,
		WindSpeedMS:  rec.WindSpeedMS,
		ActualPM25:   rec.ActualPM25,
	}
}
