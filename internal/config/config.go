package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Bundled artifacts.
	DatasetPath     string
	ModelPath       string
	ModelSchemaPath string

	// Pipeline tuning.
	JoinTolerance    time.Duration // satellite↔ground nearest-match window
	ScoringWorkers   int
	ExplainCacheSize int

	// Dashboard thresholds.
	HazardThresholdUGM3 float64 // µg/m³; predictions above this are flagged
	VelocityAlertUGM3H  float64 // µg/m³/h; velocities above this read as a new ignition

	// Hazard alert publishing (KAFKA_BROKERS + ALERTS_ENABLED).
	KafkaBrokers    []string
	KafkaAlertTopic string
	AlertsEnabled   bool
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	joinTolerance, err := parseDuration("JOIN_TOLERANCE", "90m")
	if err != nil {
		return nil, err
	}
	hazardThreshold, err := parseFloat("HAZARD_THRESHOLD_UGM3", "35.0")
	if err != nil {
		return nil, err
	}
	velocityAlert, err := parseFloat("VELOCITY_ALERT_UGM3H", "10.0")
	if err != nil {
		return nil, err
	}
	scoringWorkers, err := parseInt("SCORING_WORKERS", "4")
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("EXPLAIN_CACHE_SIZE", "1000")
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	alertsEnabled := len(brokers) > 0
	if v := os.Getenv("ALERTS_ENABLED"); v != "" {
		alertsEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatasetPath:     envOrDefault("DATASET_PATH", "data/observations.csv.gz"),
		ModelPath:       envOrDefault("MODEL_PATH", "data/pm25_model.txt"),
		ModelSchemaPath: envOrDefault("MODEL_SCHEMA_PATH", "data/pm25_model_schema.json"),

		JoinTolerance:    joinTolerance,
		ScoringWorkers:   scoringWorkers,
		ExplainCacheSize: cacheSize,

		HazardThresholdUGM3: hazardThreshold,
		VelocityAlertUGM3H:  velocityAlert,

		KafkaBrokers:    brokers,
		KafkaAlertTopic: envOrDefault("KAFKA_ALERT_TOPIC", "pm25-hazard-alerts"),
		AlertsEnabled:   alertsEnabled,
	}

	if cfg.DatasetPath == "" {
		return nil, errors.New("DATASET_PATH is required")
	}
	if cfg.ModelPath == "" {
		return nil, errors.New("MODEL_PATH is required")
	}
	if cfg.ModelSchemaPath == "" {
		return nil, errors.New("MODEL_SCHEMA_PATH is required")
	}
	if cfg.HazardThresholdUGM3 <= 0 {
		return nil, errors.New("HAZARD_THRESHOLD_UGM3 must be positive")
	}
	if cfg.JoinTolerance <= 0 {
		return nil, errors.New("JOIN_TOLERANCE must be positive")
	}
	if cfg.ScoringWorkers <= 0 {
		return nil, errors.New("SCORING_WORKERS must be positive")
	}
	if cfg.ExplainCacheSize <= 0 {
		return nil, errors.New("EXPLAIN_CACHE_SIZE must be positive")
	}
	if cfg.AlertsEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("ALERTS_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseFloat(key, def string) (float64, error) {
	f, err := strconv.ParseFloat(envOrDefault(key, def), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func parseInt(key, def string) (int, error) {
	n, err := strconv.Atoi(envOrDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
