package residual

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverweft/patrolcast/internal/domain"
)

type stubPredictor struct {
	grid  []domain.CellInfo
	preds map[string]float64
	err   error
}

func (s *stubPredictor) Cells() []domain.CellInfo { return s.grid }

func (s *stubPredictor) Predict(cell domain.CellID, w domain.TimeWindow) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.preds[fmt.Sprintf("%s|%d", cell, w.Ordinal())], nil
}

var (
	w1 = domain.TimeWindow{Day: domain.Monday, Period: domain.Morning}
	w2 = domain.TimeWindow{Day: domain.Saturday, Period: domain.LateNight}
)

func key(cell domain.CellID, w domain.TimeWindow) string {
	return fmt.Sprintf("%s|%d", cell, w.Ordinal())
}

func fixedPredictor() *stubPredictor {
	return &stubPredictor{
		grid: []domain.CellInfo{{ID: "cellA"}, {ID: "cellB"}},
		preds: map[string]float64{
			key("cellA", w1): 7,
			key("cellA", w2): 4,
			key("cellB", w1): 5,
		},
	}
}

func fixedObservations() []domain.Observation {
	return []domain.Observation{
		{Cell: "cellA", Window: w1, Year: 2024, Count: 10},
		{Cell: "cellA", Window: w2, Year: 2024, Count: 2},
		{Cell: "cellB", Window: w1, Year: 2024, Count: 5},
		{Cell: "cellC", Window: w1, Year: 2024, Count: 9},
	}
}

func TestAnalyze(t *testing.T) {
	records, summary, err := Analyze(fixedPredictor(), fixedObservations(), 1)
	require.NoError(t, err)

	t.Run("residual is observed minus predicted", func(t *testing.T) {
		require.Len(t, records, 3)
		assert.Equal(t, 3.0, records[0].Residual, "10 observed, 7 predicted")
		assert.Equal(t, -2.0, records[1].Residual, "2 observed, 4 predicted")
		assert.Equal(t, 0.0, records[2].Residual)
	})

	t.Run("unknown cells are skipped and counted", func(t *testing.T) {
		assert.Equal(t, 3, summary.Records)
		assert.Equal(t, 1, summary.SkippedCells)
	})

	t.Run("overall moments", func(t *testing.T) {
		assert.InDelta(t, 1.0/3.0, summary.MeanResidual, 1e-12)
		assert.InDelta(t, 5.0/3.0, summary.MAE, 1e-12)
		assert.LessOrEqual(t, summary.P10, summary.P50)
		assert.LessOrEqual(t, summary.P50, summary.P90)
		assert.GreaterOrEqual(t, summary.P10, -2.0)
		assert.LessOrEqual(t, summary.P90, 3.0)
	})

	t.Run("per-cell means", func(t *testing.T) {
		require.Len(t, summary.ByCell, 2)
		assert.Equal(t, domain.CellID("cellA"), summary.ByCell[0].Cell)
		assert.InDelta(t, 0.5, summary.ByCell[0].MeanResidual, 1e-12)
		assert.Equal(t, 2, summary.ByCell[0].Observations)
		assert.Equal(t, domain.CellID("cellB"), summary.ByCell[1].Cell)
		assert.Zero(t, summary.ByCell[1].MeanResidual)
	})

	t.Run("per-window means in ordinal order", func(t *testing.T) {
		require.Len(t, summary.ByWindow, 2)
		assert.Equal(t, w1, summary.ByWindow[0].Window)
		assert.InDelta(t, 1.5, summary.ByWindow[0].MeanResidual, 1e-12)
		assert.Equal(t, w2, summary.ByWindow[1].Window)
		assert.InDelta(t, -2.0, summary.ByWindow[1].MeanResidual, 1e-12)
	})

	t.Run("top movers", func(t *testing.T) {
		require.Len(t, summary.UnderPredicted, 1)
		assert.Equal(t, domain.CellID("cellA"), summary.UnderPredicted[0].Cell,
			"cellA is the most under-predicted")
		require.Len(t, summary.OverPredicted, 1)
		assert.Equal(t, domain.CellID("cellB"), summary.OverPredicted[0].Cell)
	})
}

func TestAnalyzeTopKLargerThanGrid(t *testing.T) {
	_, summary, err := Analyze(fixedPredictor(), fixedObservations(), 50)
	require.NoError(t, err)
	assert.Len(t, summary.UnderPredicted, 2, "never more entries than cells")
}

func TestAnalyzeErrors(t *testing.T) {
	t.Run("bad top k", func(t *testing.T) {
		_, _, err := Analyze(fixedPredictor(), fixedObservations(), 0)
		require.Error(t, err)
	})

	t.Run("predictor failure propagates", func(t *testing.T) {
		p := fixedPredictor()
		p.err = errors.New("boom")
		_, _, err := Analyze(p, fixedObservations(), 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("no overlap", func(t *testing.T) {
		p := &stubPredictor{grid: []domain.CellInfo{{ID: "elsewhere"}}}
		_, _, err := Analyze(p, fixedObservations(), 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInsufficientData)
	})

	t.Run("deterministic tie-break on equal residual means", func(t *testing.T) {
		p := &stubPredictor{
			grid:  []domain.CellInfo{{ID: "cellA"}, {ID: "cellB"}},
			preds: map[string]float64{key("cellA", w1): 1, key("cellB", w1): 1},
		}
		obs := []domain.Observation{
			{Cell: "cellA", Window: w1, Count: 1},
			{Cell: "cellB", Window: w1, Count: 1},
		}
		_, summary, err := Analyze(p, obs, 2)
		require.NoError(t, err)
		assert.Equal(t, domain.CellID("cellA"), summary.UnderPredicted[0].Cell)
		assert.Equal(t, domain.CellID("cellA"), summary.OverPredicted[0].Cell)
	})
}
