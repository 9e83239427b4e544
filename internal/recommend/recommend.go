// Package recommend turns model scores into ranked patrol suggestions for a
// single weekly time window. Ranking is fully deterministic: descending
// predicted density, with exact ties broken by ascending cell identifier, so
// the same model and query always brief the same zones in the same order.
package recommend

import (
	"fmt"
	"sort"
	"time"

	"github.com/riverweft/patrolcast/internal/domain"
)

// Predictor is the slice of the trained model the engine needs.
type Predictor interface {
	Predict(cell domain.CellID, w domain.TimeWindow) (float64, error)
}

// Entry is one ranked patrol zone. Centroid is the map hand-off coordinate;
// rendering of the surrounding hexagon belongs to the consumer.
type Entry struct {
	Rank      int           `json:"rank"`
	Cell      domain.CellID `json:"cell"`
	Centroid  domain.Geo    `json:"centroid"`
	Predicted float64       `json:"predicted"`
}

// Recommendation is a complete answer to one patrol query, carrying the model
// version so every briefing is traceable to the artifact that produced it.
type Recommendation struct {
	Window       domain.TimeWindow `json:"window"`
	ModelVersion string            `json:"model_version"`
	GeneratedAt  time.Time         `json:"generated_at"`
	GridSize     int               `json:"grid_size"`
	Entries      []Entry           `json:"entries"`
}

// Engine answers patrol queries against a fixed grid and trained predictor.
type Engine struct {
	predictor Predictor
	grid      []domain.CellInfo
	version   string
}

// New builds an engine over a model's grid. The grid is the training grid:
// recommendations never invent cells the model has not seen.
func New(p Predictor, grid []domain.CellInfo, modelVersion string) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("recommend: nil predictor")
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("recommend: empty grid")
	}
	return &Engine{predictor: p, grid: grid, version: modelVersion}, nil
}

// ParseQuery resolves day and period labels into a time window. Labels are
// matched strictly (no fuzzy matching); unknown labels fail with
// [domain.ErrUnknownTimeWindow] and name the offending input.
func ParseQuery(day, period string) (domain.TimeWindow, error) {
	d, err := domain.ParseWeekday(day)
	if err != nil {
		return domain.TimeWindow{}, err
	}
	p, err := domain.ParsePeriod(period)
	if err != nil {
		return domain.TimeWindow{}, err
	}
	return domain.TimeWindow{Day: d, Period: p}, nil
}

// Recommend scores every grid cell for the window and returns the top k,
// ranked. The result length is min(k, grid size).
func (e *Engine) Recommend(w domain.TimeWindow, topK int) (*Recommendation, error) {
	if topK < 1 {
		return nil, fmt.Errorf("recommend: top k %d must be at least 1", topK)
	}

	entries := make([]Entry, 0, len(e.grid))
	for _, cell := range e.grid {
		predicted, err := e.predictor.Predict(cell.ID, w)
		if err != nil {
			return nil, fmt.Errorf("recommend: score %s: %w", cell.ID, err)
		}
		entries = append(entries, Entry{Cell: cell.ID, Centroid: cell.Centroid, Predicted: predicted})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Predicted != entries[j].Predicted {
			return entries[i].Predicted > entries[j].Predicted
		}
		return entries[i].Cell < entries[j].Cell
	})

	if topK < len(entries) {
		entries = entries[:topK]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return &Recommendation{
		Window:       w,
		ModelVersion: e.version,
		GeneratedAt:  domain.Now(),
		GridSize:     len(e.grid),
		Entries:      entries,
	}, nil
}
