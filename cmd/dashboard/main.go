package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/smokesignal-ai/pm25-dashboard/internal/adapter/http"
	kafkaadapter "github.com/smokesignal-ai/pm25-dashboard/internal/adapter/kafka"
	"github.com/smokesignal-ai/pm25-dashboard/internal/config"
	"github.com/smokesignal-ai/pm25-dashboard/internal/dataset"
	"github.com/smokesignal-ai/pm25-dashboard/internal/explain"
	"github.com/smokesignal-ai/pm25-dashboard/internal/features"
	"github.com/smokesignal-ai/pm25-dashboard/internal/forecast"
	"github.com/smokesignal-ai/pm25-dashboard/internal/model"
	"github.com/smokesignal-ai/pm25-dashboard/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load the observation archive and assemble the feature matrix.
	loader := dataset.NewLoader(logger, metrics)
	tables, err := loader.LoadArchive(cfg.DatasetPath)
	if err != nil {
		logger.Error("failed to load observation archive", "path", cfg.DatasetPath, "error", err)
		os.Exit(1)
	}

	builder := features.NewBuilder(cfg.JoinTolerance, logger, metrics)
	set := builder.Build(tables)

	// Load the pretrained model and wrap it with the attribution engine.
	predictor, err := model.Load(cfg.ModelPath, cfg.ModelSchemaPath, logger)
	if err != nil {
		logger.Error("failed to load forecast model", "path", cfg.ModelPath, "error", err)
		os.Exit(1)
	}

	explainer := explain.NewCached(explain.New(predictor), cfg.ExplainCacheSize, metrics)

	svc := forecast.New(cfg, set, predictor, explainer, logger, metrics)
	if err := svc.Precompute(ctx); err != nil {
		logger.Error("failed to score feature matrix", "error", err)
		os.Exit(1)
	}

	// Publish hazard alerts (feature-flagged via ALERTS_ENABLED / KAFKA_BROKERS).
	if cfg.AlertsEnabled {
		publisher := kafkaadapter.NewAlertPublisher(cfg, logger, metrics)
		if err := publisher.PublishBatch(ctx, svc.Alerts()); err != nil {
			logger.Error("failed to publish hazard alerts", "error", err)
		}
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	} else {
		logger.Info("hazard alert publishing disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, logger, metrics)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
