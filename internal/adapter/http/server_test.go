package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/smokesignal-ai/pm25-dashboard/internal/adapter/http"
	"github.com/smokesignal-ai/pm25-dashboard/internal/domain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/features"
	"github.com/smokesignal-ai/pm25-dashboard/internal/forecast"
	"github.com/smokesignal-ai/pm25-dashboard/internal/observability"
)

func ptr(v float64) *float64 { return &v }

type mockForecast struct {
	readyErr   error
	locations  []domain.LocationInfo
	report     features.Report
	series     []domain.Prediction
	seriesErr  error
	prediction domain.Prediction
	atErr      error
	attr       domain.Attribution
	drivers    domain.DriverAssessment
	explainErr error
	alerts     []domain.Prediction
}

func (m *mockForecast) CheckReadiness(_ context.Context) error { return m.readyErr }

func (m *mockForecast) Locations() []domain.LocationInfo { return m.locations }

func (m *mockForecast) Report() features.Report { return m.report }

func (m *mockForecast) Series(_ string) ([]domain.Prediction, error) {
	return m.series, m.seriesErr
}

func (m *mockForecast) At(_ string, _ time.Time) (domain.Prediction, error) {
	return m.prediction, m.atErr
}

func (m *mockForecast) ExplainAt(_ string, _ time.Time) (domain.Attribution, domain.DriverAssessment, error) {
	return m.attr, m.drivers, m.explainErr
}

func (m *mockForecast) Alerts() []domain.Prediction { return m.alerts }

func newTestServer(api *mockForecast) *httpadapter.Server {
	return httpadapter.NewServer(":0", api, slog.Default(), observability.NewMetricsForTesting())
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(&mockForecast{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(&mockForecast{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(&mockForecast{readyErr: fmt.Errorf("scoring in progress")})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "scoring in progress", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&mockForecast{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestLocationsEndpoint(t *testing.T) {
	api := &mockForecast{
		locations: []domain.LocationInfo{
			{ID: "loc-001", Label: "44.0500, -121.3100", Lat: 44.05, Lon: -121.31, Rows: 12},
		},
	}
	srv := newTestServer(api)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/locations", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Locations []domain.LocationInfo `json:"locations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Locations, 1)
	assert.Equal(t, "loc-001", body.Locations[0].ID)
	assert.Equal(t, "44.0500, -121.3100", body.Locations[0].Label)
}

func TestReportEndpoint(t *testing.T) {
	api := &mockForecast{
		report: features.Report{Joined: 42, LocationsCovered: 3, ToleranceWindowMin: 90},
	}
	srv := newTestServer(api)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/report", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body features.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 42, body.Joined)
	assert.Equal(t, 3, body.LocationsCovered)
	assert.Equal(t, 90, body.ToleranceWindowMin)
}

func TestSeriesEndpoint(t *testing.T) {
	ts := time.Date(2020, 9, 12, 14, 0, 0, 0, time.UTC)
	api := &mockForecast{
		series: []domain.Prediction{
			{LocationID: "loc-001", Timestamp: ts, PredictedPM25: 162.5, HazardFlag: true, ActualPM25: ptr(158.0), Error: ptr(4.5)},
		},
	}
	srv := newTestServer(api)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/forecast/loc-001", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Series []domain.Prediction `json:"series"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Series, 1)
	assert.Equal(t, 162.5, body.Series[0].PredictedPM25)
	assert.True(t, body.Series[0].HazardFlag)
}

func TestSeriesUnknownLocationReturns404(t *testing.T) {
	srv := newTestServer(&mockForecast{seriesErr: forecast.ErrUnknownLocation})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/forecast/nowhere", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForecastAtEndpoint(t *testing.T) {
	api := &mockForecast{
		prediction: domain.Prediction{LocationID: "loc-001", PredictedPM25: 28.4},
	}
	srv := newTestServer(api)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/forecast/loc-001/2020-09-12", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body domain.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 28.4, body.PredictedPM25)
	assert.False(t, body.HazardFlag)
}

func TestForecastAtBadDateReturns400(t *testing.T) {
	srv := newTestServer(&mockForecast{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/forecast/loc-001/12-sep-2020", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForecastAtMissingDateReturns404(t *testing.T) {
	srv := newTestServer(&mockForecast{atErr: forecast.ErrNotFound})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/forecast/loc-001/2020-09-13", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExplainEndpoint(t *testing.T) {
	api := &mockForecast{
		attr: domain.Attribution{
			LocationID: "loc-001",
			Baseline:   12.0,
			Predicted:  162.5,
			Contributions: []domain.FeatureContribution{
				{Feature: "ground_pm25", Score: 120.5},
				{Feature: "smoke_index", Score: 30.0},
			},
		},
		drivers: domain.DriverAssessment{
			Verdict:    domain.DriverSmokePlume,
			TopFeature: "ground_pm25",
			TopScore:   120.5,
		},
	}
	srv := newTestServer(api)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/explain/loc-001/2020-09-12", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Attribution domain.Attribution          `json:"attribution"`
		Ranked      []domain.FeatureContribution `json:"ranked"`
		Drivers     domain.DriverAssessment      `json:"drivers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 162.5, body.Attribution.Predicted)
	require.Len(t, body.Ranked, 2)
	assert.Equal(t, "ground_pm25", body.Ranked[0].Feature)
	assert.Equal(t, domain.DriverSmokePlume, body.Drivers.Verdict)
}

func TestExplainUnknownLocationReturns404(t *testing.T) {
	srv := newTestServer(&mockForecast{explainErr: forecast.ErrUnknownLocation})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/explain/nowhere/2020-09-12", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertsEndpoint(t *testing.T) {
	api := &mockForecast{
		alerts: []domain.Prediction{
			{LocationID: "loc-001", PredictedPM25: 162.5, HazardFlag: true},
			{LocationID: "loc-002", PredictedPM25: 48.0, HazardFlag: true},
		},
	}
	srv := newTestServer(api)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count  int                 `json:"count"`
		Alerts []domain.Prediction `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Alerts, 2)
}

func TestIndexServed(t *testing.T) {
	srv := newTestServer(&mockForecast{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "PM2.5 Forecast Dashboard")
}

func TestRequestIDHeaderSet(t *testing.T) {
	srv := newTestServer(&mockForecast{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
