// Package http exposes the dashboard over HTTP: the JSON API the UI is
// built on, the embedded single-page UI itself, and the usual health,
// readiness, and metrics endpoints. No business logic lives here — handlers
// render whatever the forecast service returns.
package http

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smokesignal-ai/pm25-dashboard/internal/domain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/features"
	"github.com/smokesignal-ai/pm25-dashboard/internal/forecast"
	"github.com/smokesignal-ai/pm25-dashboard/internal/observability"
)

//go:embed static
var staticFS embed.FS

// ForecastAPI is the slice of the forecast service the dashboard renders.
type ForecastAPI interface {
	CheckReadiness(ctx context.Context) error
	Locations() []domain.LocationInfo
	Report() features.Report
	Series(locationID string) ([]domain.Prediction, error)
	At(locationID string, day time.Time) (domain.Prediction, error)
	ExplainAt(locationID string, day time.Time) (domain.Attribution, domain.DriverAssessment, error)
	Alerts() []domain.Prediction
}

// Server exposes the dashboard API, UI, and operational endpoints.
type Server struct {
	httpServer *http.Server
	api        ForecastAPI
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewServer creates the dashboard HTTP server.
func NewServer(addr string, api ForecastAPI, logger *slog.Logger, metrics *observability.Metrics) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		api:     api,
		logger:  logger,
		metrics: metrics,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/locations", s.handleLocations)
	mux.HandleFunc("GET /api/report", s.handleReport)
	mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	mux.HandleFunc("GET /api/forecast/{location}", s.handleSeries)
	mux.HandleFunc("GET /api/forecast/{location}/{date}", s.handleAt)
	mux.HandleFunc("GET /api/explain/{location}/{date}", s.handleExplain)

	static, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /", http.FileServerFS(static))

	s.httpServer.Handler = s.withRequestLogging(mux)
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.api.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLocations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"locations": s.api.Locations()})
}

func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.api.Report())
}

func (s *Server) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	alerts := s.api.Alerts()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	series, err := s.api.Series(r.PathValue("location"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"series": series})
}

func (s *Server) handleAt(w http.ResponseWriter, r *http.Request) {
	day, ok := parseDay(w, r)
	if !ok {
		return
	}
	prediction, err := s.api.At(r.PathValue("location"), day)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	day, ok := parseDay(w, r)
	if !ok {
		return
	}
	attr, drivers, err := s.api.ExplainAt(r.PathValue("location"), day)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attribution": attr,
		"ranked":      attr.Ranked(),
		"drivers":     drivers,
	})
}

func parseDay(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	day, err := time.Parse("2006-01-02", r.PathValue("date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "date must be formatted YYYY-MM-DD",
		})
		return time.Time{}, false
	}
	return day, true
}

// writeError maps service errors onto HTTP statuses. Nothing here ever
// degrades into a partial forecast payload.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, forecast.ErrUnknownLocation), errors.Is(err, forecast.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// withRequestLogging tags each request with an ID and records the outcome.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.metrics.HTTPRequests.WithLabelValues(r.URL.Path, strconv.Itoa(rec.status)).Inc()
		s.logger.Debug("request served",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response body
}
