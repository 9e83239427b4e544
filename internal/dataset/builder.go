// Package dataset turns cleaned incident batches into model-ready
// observations: one row per (cell, window) for a single calendar year.
//
// Construction is a pure reduction. Records are partitioned hard by year,
// screened for the midnight artifact, indexed, bucketed, and counted; then the
// full cross product of observed cells and all weekly windows is enumerated so
// quiet combinations appear as explicit zero counts. "No incidents" is a real
// observation, not a gap, and a model trained without zeros would only ever
// see busy rows.
package dataset

import (
	"sort"

	"github.com/riverweft/patrolcast/internal/domain"
	"github.com/riverweft/patrolcast/internal/hexgrid"
	"github.com/riverweft/patrolcast/internal/temporal"
)

// Builder assembles per-year datasets under one engine configuration. The
// same Builder must produce both the training and validation datasets so grid
// resolution and window boundaries cannot drift between them.
type Builder struct {
	cfg      domain.Config
	indexer  *hexgrid.Indexer
	bucketer *temporal.Bucketer
}

// New builds a dataset Builder from the engine configuration.
func New(cfg domain.Config) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	indexer, err := hexgrid.New(cfg)
	if err != nil {
		return nil, err
	}
	bucketer, err := temporal.NewBucketer(cfg)
	if err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg, indexer: indexer, bucketer: bucketer}, nil
}

// BuildStats accounts for every input record of a build:
//
//	Input = OutOfYear + Spike.Excluded + InvalidCoordinate + OutOfArea + Used
type BuildStats struct {
	Year              int                  `json:"year"`
	Input             int                  `json:"input"`
	Used              int                  `json:"used"`
	OutOfYear         int                  `json:"out_of_year"`
	InvalidCoordinate int                  `json:"invalid_coordinate"`
	OutOfArea         int                  `json:"out_of_area"`
	Spike             temporal.SpikeReport `json:"spike"`
	Cells             int                  `json:"cells"`
	Observations      int                  `json:"observations"`
}

type cellWindow struct {
	cell   domain.CellID
	window domain.TimeWindow
}

// Build aggregates one calendar year of records into observations. The year
// filter is a hard partition: a record from any other year is dropped and
// counted, so train/validate separation is enforced here, not by caller
// discipline. Output is fully enumerated (observed cells x all windows,
// zeros included) and sorted by cell then window ordinal.
func (b *Builder) Build(incidents []domain.Incident, year int) ([]domain.Observation, BuildStats) {
	stats := BuildStats{Year: year, Input: len(incidents)}

	inYear := make([]domain.Incident, 0, len(incidents))
	for _, inc := range incidents {
		if inc.Timestamp.UTC().Year() != year {
			stats.OutOfYear++
			continue
		}
		inYear = append(inYear, inc)
	}

	stats.Spike = temporal.DetectMidnightSpike(inYear, b.cfg.SpikeFactor)
	inYear = temporal.ApplySpikePolicy(inYear, &stats.Spike, b.cfg.SpikePolicy)

	counts := make(map[cellWindow]int)
	centroids := make(map[domain.CellID]domain.Geo)
	for _, inc := range inYear {
		info, err := b.indexer.CellWithCentroid(inc.Geo)
		if err != nil {
			stats.InvalidCoordinate++
			continue
		}
		if !b.indexer.InArea(inc.Geo) {
			stats.OutOfArea++
			continue
		}
		window := b.bucketer.Window(inc.Timestamp)
		counts[cellWindow{cell: info.ID, window: window}]++
		centroids[info.ID] = info.Centroid
		stats.Used++
	}

	cells := make([]domain.CellID, 0, len(centroids))
	for id := range centroids {
		cells = append(cells, id)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })

	windows := domain.AllWindows()
	observations := make([]domain.Observation, 0, len(cells)*len(windows))
	for _, cell := range cells {
		for _, w := range windows {
			observations = append(observations, domain.Observation{
				Cell:     cell,
				Centroid: centroids[cell],
				Window:   w,
				Year:     year,
				Count:    counts[cellWindow{cell: cell, window: w}],
			})
		}
	}

	stats.Cells = len(cells)
	stats.Observations = len(observations)
	return observations, stats
}
