// Package config loads service settings from environment variables, with an
// optional .env file for local development. Engine knobs (grid resolution,
// window boundaries, spike screening, forest hyperparameters) land in a
// domain.Config value that is threaded explicitly through the pipeline; the
// rest is process plumbing.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/riverweft/patrolcast/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// ModelPath is where cmd/train writes the artifact and where cmd/serve
	// and cmd/recommend read it from.
	ModelPath string

	// DatabaseURL enables the Postgres training-run recorder when set.
	// Empty disables recording entirely.
	DatabaseURL string

	// BearerToken guards the /v1 API endpoints when set. Health, readiness,
	// and metrics stay open for probes.
	BearerToken string

	// CacheSize bounds the in-process recommendation cache.
	CacheSize int

	// Engine is the prediction-engine configuration recorded in every model
	// artifact's provenance.
	Engine domain.Config
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is honored if present.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseIntInRange("CACHE_SIZE", 256, 1, 100000)
	if err != nil {
		return nil, err
	}

	engine, err := loadEngine()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		ModelPath:       envOrDefault("MODEL_PATH", "model.json"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		BearerToken:     os.Getenv("API_BEARER_TOKEN"),
		CacheSize:       cacheSize,
		Engine:          engine,
	}

	if cfg.ModelPath == "" {
		return nil, errors.New("MODEL_PATH must not be empty")
	}

	return cfg, nil
}

// loadEngine assembles the domain.Config from environment variables, starting
// from the reference defaults.
func loadEngine() (domain.Config, error) {
	engine := domain.DefaultConfig()
	var err error

	if engine.Resolution, err = parseIntInRange("GRID_RESOLUTION", engine.Resolution, 0, 15); err != nil {
		return engine, err
	}
	if engine.StudyArea, err = parseStudyArea("STUDY_AREA", engine.StudyArea); err != nil {
		return engine, err
	}
	if engine.PeriodStarts, err = parsePeriodStarts("PERIOD_STARTS", engine.PeriodStarts); err != nil {
		return engine, err
	}
	if engine.SpikeFactor, err = parseFloat("SPIKE_FACTOR", engine.SpikeFactor); err != nil {
		return engine, err
	}
	if policy := os.Getenv("SPIKE_POLICY"); policy != "" {
		engine.SpikePolicy = domain.SpikePolicy(policy)
	}
	if engine.MinObservations, err = parseIntInRange("MIN_OBSERVATIONS", engine.MinObservations, 1, 1<<30); err != nil {
		return engine, err
	}
	if engine.TopK, err = parseIntInRange("TOP_K", engine.TopK, 1, 10000); err != nil {
		return engine, err
	}

	if engine.Forest.Trees, err = parseIntInRange("FOREST_TREES", engine.Forest.Trees, 1, 10000); err != nil {
		return engine, err
	}
	if engine.Forest.MaxDepth, err = parseIntInRange("FOREST_MAX_DEPTH", engine.Forest.MaxDepth, 0, 1000); err != nil {
		return engine, err
	}
	if engine.Forest.MinLeaf, err = parseIntInRange("FOREST_MIN_LEAF", engine.Forest.MinLeaf, 1, 1<<20); err != nil {
		return engine, err
	}
	if engine.Forest.SampleRatio, err = parseFloat("FOREST_SAMPLE_RATIO", engine.Forest.SampleRatio); err != nil {
		return engine, err
	}
	if seed := os.Getenv("FOREST_SEED"); seed != "" {
		n, err := strconv.ParseInt(seed, 10, 64)
		if err != nil {
			return engine, fmt.Errorf("invalid FOREST_SEED %q", seed)
		}
		engine.Forest.Seed = n
	}

	if err := engine.Validate(); err != nil {
		return engine, fmt.Errorf("engine configuration: %w", err)
	}
	return engine, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	s := envOrDefault(key, fallback)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive duration", key, s)
	}
	return d, nil
}

func parseIntInRange(key string, fallback, min, max int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("invalid %s %q: want an integer in %d..%d", key, s, min, max)
	}
	return n, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: want a number", key, s)
	}
	return f, nil
}

// parseStudyArea reads a bounding box as "minLat,minLon,maxLat,maxLon".
// The literal "none" disables the study-area filter.
func parseStudyArea(key string, fallback domain.BoundingBox) (domain.BoundingBox, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	if strings.EqualFold(s, "none") {
		return domain.BoundingBox{}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.BoundingBox{}, fmt.Errorf("invalid %s %q: want minLat,minLon,maxLat,maxLon", key, s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.BoundingBox{}, fmt.Errorf("invalid %s %q: bad number %q", key, s, p)
		}
		vals[i] = f
	}
	return domain.BoundingBox{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}, nil
}

// parsePeriodStarts reads the four period start hours as "6,12,17,22".
func parsePeriodStarts(key string, fallback [domain.NumPeriods]int) ([domain.NumPeriods]int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != domain.NumPeriods {
		return fallback, fmt.Errorf("invalid %s %q: want %d comma-separated hours", key, s, domain.NumPeriods)
	}
	var starts [domain.NumPeriods]int
	for i, p := range parts {
		h, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || h < 0 || h > 23 {
			return fallback, fmt.Errorf("invalid %s %q: hour %q outside 0..23", key, s, p)
		}
		starts[i] = h
	}
	return starts, nil
}
