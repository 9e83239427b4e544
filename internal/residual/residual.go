// Package residual diagnoses where a trained model misses. A residual is
// observed minus predicted, so positive means under-prediction: demand the
// model would have left unpatrolled. The analyzer only reads; it never tunes
// the model it is criticizing.
package residual

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/riverweft/patrolcast/internal/domain"
)

// Predictor is the slice of the trained model the analyzer needs.
type Predictor interface {
	Predict(cell domain.CellID, w domain.TimeWindow) (float64, error)
	Cells() []domain.CellInfo
}

// Record is one scored validation observation.
type Record struct {
	Cell      domain.CellID     `json:"cell"`
	Centroid  domain.Geo        `json:"centroid"`
	Window    domain.TimeWindow `json:"window"`
	Observed  int               `json:"observed"`
	Predicted float64           `json:"predicted"`
	Residual  float64           `json:"residual"`
}

// CellSummary aggregates residuals for one cell.
type CellSummary struct {
	Cell         domain.CellID `json:"cell"`
	MeanResidual float64       `json:"mean_residual"`
	Observations int           `json:"observations"`
}

// WindowSummary aggregates residuals for one weekly window.
type WindowSummary struct {
	Window       domain.TimeWindow `json:"window"`
	MeanResidual float64           `json:"mean_residual"`
	Observations int               `json:"observations"`
}

// Summary is the aggregate view of an analysis run.
type Summary struct {
	Records        int             `json:"records"`
	SkippedCells   int             `json:"skipped_cells"`
	MeanResidual   float64         `json:"mean_residual"`
	MAE            float64         `json:"mae"`
	P10            float64         `json:"p10"`
	P50            float64         `json:"p50"`
	P90            float64         `json:"p90"`
	ByCell         []CellSummary   `json:"by_cell"`
	ByWindow       []WindowSummary `json:"by_window"`
	UnderPredicted []CellSummary   `json:"under_predicted"`
	OverPredicted  []CellSummary   `json:"over_predicted"`
}

// Analyze scores every validation observation whose cell the model knows and
// aggregates the misses: overall moments and quantiles, per-cell and
// per-window means, and the top-k most under- and over-predicted cells.
// Validation-only cells are skipped and counted, mirroring metric validation.
func Analyze(p Predictor, observations []domain.Observation, topK int) ([]Record, Summary, error) {
	if topK < 1 {
		return nil, Summary{}, fmt.Errorf("residual: top k %d must be at least 1", topK)
	}

	known := make(map[domain.CellID]bool)
	for _, c := range p.Cells() {
		known[c.ID] = true
	}

	var (
		records   []Record
		residuals []float64
		absolute  []float64
		skipped   = make(map[domain.CellID]bool)
		byCell    = make(map[domain.CellID]*CellSummary)
		byWindow  = make(map[domain.TimeWindow]*WindowSummary)
	)

	for _, obs := range observations {
		if !known[obs.Cell] {
			skipped[obs.Cell] = true
			continue
		}
		predicted, err := p.Predict(obs.Cell, obs.Window)
		if err != nil {
			return nil, Summary{}, fmt.Errorf("residual: score %s %s: %w", obs.Cell, obs.Window, err)
		}

		r := Record{
			Cell:      obs.Cell,
			Centroid:  obs.Centroid,
			Window:    obs.Window,
			Observed:  obs.Count,
			Predicted: predicted,
			Residual:  float64(obs.Count) - predicted,
		}
		records = append(records, r)
		residuals = append(residuals, r.Residual)
		if r.Residual < 0 {
			absolute = append(absolute, -r.Residual)
		} else {
			absolute = append(absolute, r.Residual)
		}

		cs := byCell[r.Cell]
		if cs == nil {
			cs = &CellSummary{Cell: r.Cell}
			byCell[r.Cell] = cs
		}
		cs.MeanResidual += r.Residual
		cs.Observations++

		ws := byWindow[r.Window]
		if ws == nil {
			ws = &WindowSummary{Window: r.Window}
			byWindow[r.Window] = ws
		}
		ws.MeanResidual += r.Residual
		ws.Observations++
	}

	if len(records) == 0 {
		return nil, Summary{}, fmt.Errorf("%w: no validation cells overlap the model grid", domain.ErrInsufficientData)
	}

	summary := Summary{
		Records:      len(records),
		SkippedCells: len(skipped),
		MeanResidual: stat.Mean(residuals, nil),
		MAE:          stat.Mean(absolute, nil),
	}

	sorted := append([]float64(nil), residuals...)
	sort.Float64s(sorted)
	summary.P10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	summary.P50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	summary.P90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)

	for _, cs := range byCell {
		cs.MeanResidual /= float64(cs.Observations)
		summary.ByCell = append(summary.ByCell, *cs)
	}
	sort.Slice(summary.ByCell, func(i, j int) bool { return summary.ByCell[i].Cell < summary.ByCell[j].Cell })

	for _, ws := range byWindow {
		ws.MeanResidual /= float64(ws.Observations)
		summary.ByWindow = append(summary.ByWindow, *ws)
	}
	sort.Slice(summary.ByWindow, func(i, j int) bool {
		return summary.ByWindow[i].Window.Ordinal() < summary.ByWindow[j].Window.Ordinal()
	})

	summary.UnderPredicted = rankCells(summary.ByCell, topK, func(a, b CellSummary) bool {
		if a.MeanResidual != b.MeanResidual {
			return a.MeanResidual > b.MeanResidual
		}
		return a.Cell < b.Cell
	})
	summary.OverPredicted = rankCells(summary.ByCell, topK, func(a, b CellSummary) bool {
		if a.MeanResidual != b.MeanResidual {
			return a.MeanResidual < b.MeanResidual
		}
		return a.Cell < b.Cell
	})

	return records, summary, nil
}

func rankCells(cells []CellSummary, k int, less func(a, b CellSummary) bool) []CellSummary {
	ranked := append([]CellSummary(nil), cells...)
	sort.Slice(ranked, func(i, j int) bool { return less(ranked[i], ranked[j]) })
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
