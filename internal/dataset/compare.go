package dataset

import (
	"sort"

	"github.com/riverweft/patrolcast/internal/domain"
)

// CellDelta is one cell's year-over-year change in total incident count.
type CellDelta struct {
	Cell   domain.CellID `json:"cell"`
	CountA int           `json:"count_a"`
	CountB int           `json:"count_b"`
	Delta  int           `json:"delta"` // CountB - CountA
}

// CompareYears sums each dataset by cell and reports per-cell deltas, largest
// growth first (ties by ascending cell). Cells present in only one year are
// included with a zero count on the other side; a hot spot that appears or
// disappears between years is exactly what this surfaces.
func CompareYears(a, b []domain.Observation) []CellDelta {
	sumByCell := func(obs []domain.Observation) map[domain.CellID]int {
		sums := make(map[domain.CellID]int)
		for _, o := range obs {
			sums[o.Cell] += o.Count
		}
		return sums
	}
	sumsA := sumByCell(a)
	sumsB := sumByCell(b)

	cells := make(map[domain.CellID]bool, len(sumsA)+len(sumsB))
	for c := range sumsA {
		cells[c] = true
	}
	for c := range sumsB {
		cells[c] = true
	}

	deltas := make([]CellDelta, 0, len(cells))
	for c := range cells {
		deltas = append(deltas, CellDelta{
			Cell:   c,
			CountA: sumsA[c],
			CountB: sumsB[c],
			Delta:  sumsB[c] - sumsA[c],
		})
	}
	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].Delta != deltas[j].Delta {
			return deltas[i].Delta > deltas[j].Delta
		}
		return deltas[i].Cell < deltas[j].Cell
	})
	return deltas
}
