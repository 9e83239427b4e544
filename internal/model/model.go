// Package model wraps the trained estimator in a self-describing artifact:
// the forest plus everything needed to score it honestly later (feature
// schema, grid resolution, training year, cell registry, configuration
// fingerprint, sample size). A model that cannot prove what it was trained on
// is not worth shipping to a patrol briefing.
package model

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/riverweft/patrolcast/internal/domain"
	"github.com/riverweft/patrolcast/internal/forest"
	"github.com/riverweft/patrolcast/internal/hexgrid"
	"github.com/riverweft/patrolcast/internal/temporal"
)

// RiskModel is a trained, immutable risk estimator. Obtain one from [Train]
// or [Load]; concurrent Predict calls are safe.
type RiskModel struct {
	Version           string              `json:"version"`
	SchemaVersion     string              `json:"schema_version"`
	FeatureNames      []string            `json:"feature_names"`
	Resolution        int                 `json:"resolution"`
	TrainYear         int                 `json:"train_year"`
	TrainObservations int                 `json:"train_observations"`
	ConfigFingerprint string              `json:"config_fingerprint"`
	Hyperparams       domain.ForestParams `json:"hyperparams"`
	TrainedAt         time.Time           `json:"trained_at"`
	Grid              []domain.CellInfo   `json:"grid"`
	Forest            *forest.Forest      `json:"forest"`

	indexOnce sync.Once
	centroids map[domain.CellID]domain.Geo
}

// Metrics is the validation summary for a model against a held-out year.
type Metrics struct {
	MAE          float64 `json:"mae"`
	R2           float64 `json:"r2"`
	Observations int     `json:"observations"`
	SkippedCells int     `json:"skipped_cells"`
}

// Train fits a risk model on one year of observations. Training refuses
// datasets below cfg.MinObservations with [domain.ErrInsufficientData]: a
// model nobody should trust is a model nobody gets.
func Train(ctx context.Context, observations []domain.Observation, cfg domain.Config) (*RiskModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	if len(observations) < cfg.MinObservations {
		return nil, fmt.Errorf("%w: %d observations, need at least %d",
			domain.ErrInsufficientData, len(observations), cfg.MinObservations)
	}

	year := observations[0].Year
	centroids := make(map[domain.CellID]domain.Geo)
	features := make([][]float64, 0, len(observations))
	targets := make([]float64, 0, len(observations))
	for _, obs := range observations {
		if obs.Year != year {
			return nil, fmt.Errorf("model: mixed years %d and %d in one training set", year, obs.Year)
		}
		x, y := temporal.EncodeObservation(obs)
		features = append(features, x)
		targets = append(targets, y)
		centroids[obs.Cell] = obs.Centroid
	}

	f, err := forest.Train(ctx, features, targets, cfg.Forest)
	if err != nil {
		return nil, err
	}

	grid := make([]domain.CellInfo, 0, len(centroids))
	for id, c := range centroids {
		grid = append(grid, domain.CellInfo{ID: id, Centroid: c})
	}
	sort.Slice(grid, func(i, j int) bool { return grid[i].ID < grid[j].ID })

	m := &RiskModel{
		Version:           fmt.Sprintf("rf-%d-res%d-%s-%s", year, cfg.Resolution, temporal.SchemaVersion, cfg.Fingerprint()),
		SchemaVersion:     temporal.SchemaVersion,
		FeatureNames:      temporal.FeatureNames(),
		Resolution:        cfg.Resolution,
		TrainYear:         year,
		TrainObservations: len(observations),
		ConfigFingerprint: cfg.Fingerprint(),
		Hyperparams:       cfg.Forest,
		TrainedAt:         domain.Now(),
		Grid:              grid,
		Forest:            f,
	}
	return m, nil
}

// Predict scores one grid cell in one time window. The cell must belong to
// the model's grid; risk for territory the model never saw is a different
// question than this model answers.
func (m *RiskModel) Predict(cell domain.CellID, w domain.TimeWindow) (float64, error) {
	m.indexOnce.Do(m.buildIndex)
	centroid, ok := m.centroids[cell]
	if !ok {
		return 0, fmt.Errorf("model: cell %s not in the %d-cell training grid", cell, len(m.Grid))
	}
	return m.Forest.Predict(temporal.Encode(centroid, w))
}

// Validate scores the model against a held-out year and reports MAE and R2.
// Guards run before any metric: the artifact's recorded training size and the
// validation set must both clear cfg.MinObservations, the feature schema must
// match, and the validation cells must be at the model's resolution. Metrics
// cover only cells present in both years' grids; validation-only cells are
// skipped and counted.
func (m *RiskModel) Validate(observations []domain.Observation, cfg domain.Config) (Metrics, error) {
	if m.TrainObservations < cfg.MinObservations {
		return Metrics{}, fmt.Errorf("%w: model was trained on %d observations, minimum is %d",
			domain.ErrInsufficientData, m.TrainObservations, cfg.MinObservations)
	}
	if len(observations) < cfg.MinObservations {
		return Metrics{}, fmt.Errorf("%w: %d validation observations, need at least %d",
			domain.ErrInsufficientData, len(observations), cfg.MinObservations)
	}
	if m.SchemaVersion != temporal.SchemaVersion {
		return Metrics{}, fmt.Errorf("%w: artifact schema %s, runtime schema %s",
			domain.ErrSchemaMismatch, m.SchemaVersion, temporal.SchemaVersion)
	}
	if res, err := hexgrid.CellResolution(observations[0].Cell); err != nil {
		return Metrics{}, fmt.Errorf("model: validation grid: %w", err)
	} else if res != m.Resolution {
		return Metrics{}, fmt.Errorf("%w: validation cells at resolution %d, model at %d",
			domain.ErrSchemaMismatch, res, m.Resolution)
	}

	m.indexOnce.Do(m.buildIndex)

	var (
		actual    []float64
		predicted []float64
		skipped   = make(map[domain.CellID]bool)
	)
	for _, obs := range observations {
		if _, ok := m.centroids[obs.Cell]; !ok {
			skipped[obs.Cell] = true
			continue
		}
		estimate, err := m.Predict(obs.Cell, obs.Window)
		if err != nil {
			return Metrics{}, err
		}
		actual = append(actual, float64(obs.Count))
		predicted = append(predicted, estimate)
	}
	if len(actual) == 0 {
		return Metrics{}, fmt.Errorf("%w: no validation cells overlap the training grid", domain.ErrInsufficientData)
	}

	metrics := Metrics{Observations: len(actual), SkippedCells: len(skipped)}

	absErr := make([]float64, len(actual))
	var sse float64
	for i := range actual {
		diff := actual[i] - predicted[i]
		absErr[i] = math.Abs(diff)
		sse += diff * diff
	}
	metrics.MAE = stat.Mean(absErr, nil)

	mean := stat.Mean(actual, nil)
	var sst float64
	for _, y := range actual {
		sst += (y - mean) * (y - mean)
	}
	switch {
	case sst > 0:
		metrics.R2 = 1 - sse/sst
	case sse == 0:
		metrics.R2 = 1 // constant target, perfectly matched
	default:
		metrics.R2 = 0 // constant target the model missed; R2 is undefined, report the floor
	}
	return metrics, nil
}

// Cells returns a copy of the training grid in ascending cell order.
func (m *RiskModel) Cells() []domain.CellInfo {
	return append([]domain.CellInfo(nil), m.Grid...)
}

func (m *RiskModel) buildIndex() {
	centroids := make(map[domain.CellID]domain.Geo, len(m.Grid))
	for _, c := range m.Grid {
		centroids[c.ID] = c.Centroid
	}
	m.centroids = centroids
}
