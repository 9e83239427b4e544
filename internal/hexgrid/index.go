// Package hexgrid assigns WGS-84 points to H3 hexagonal grid cells at a fixed
// resolution. Indexing is pure: the same coordinate always yields the same
// cell, and no call depends on prior calls. Hexagons keep neighbor distances
// nearly uniform, which square grids do not, so density gradients across
// adjacent cells stay comparable.
package hexgrid

import (
	"fmt"
	"math"

	h3 "github.com/uber/h3-go/v4"

	"github.com/riverweft/patrolcast/internal/domain"
)

// Indexer maps coordinates to cells at one resolution. A model trained on
// cells from one Indexer can only score cells of the same resolution, so the
// resolution is fixed at construction and never mutated.
type Indexer struct {
	resolution int
	area       domain.BoundingBox
}

// New builds an Indexer for the configured resolution and study area.
func New(cfg domain.Config) (*Indexer, error) {
	if cfg.Resolution < 0 || cfg.Resolution > 15 {
		return nil, fmt.Errorf("hexgrid: resolution %d outside H3 range 0..15", cfg.Resolution)
	}
	return &Indexer{resolution: cfg.Resolution, area: cfg.StudyArea}, nil
}

// Resolution returns the H3 resolution this Indexer assigns at.
func (ix *Indexer) Resolution() int {
	return ix.resolution
}

// InArea reports whether the point lies inside the configured study area.
// Out-of-area points carry valid coordinates; they are dropped for scope, not
// for quality, and the two drop reasons are counted separately upstream.
func (ix *Indexer) InArea(g domain.Geo) bool {
	return ix.area.Contains(g)
}

// Cell assigns a coordinate to its grid cell. Non-finite or out-of-range
// coordinates fail with [domain.ErrInvalidCoordinate].
func (ix *Indexer) Cell(g domain.Geo) (domain.CellID, error) {
	if err := checkCoordinate(g); err != nil {
		return "", err
	}
	cell, err := h3.LatLngToCell(h3.NewLatLng(g.Lat, g.Lon), ix.resolution)
	if err != nil {
		return "", fmt.Errorf("%w: (%v, %v): %v", domain.ErrInvalidCoordinate, g.Lat, g.Lon, err)
	}
	return domain.CellID(cell.String()), nil
}

// CellWithCentroid assigns a coordinate to its cell and resolves the cell
// centroid in one step. The centroid, not the raw point, is the spatial
// feature carried into the dataset so every record in a cell shares an anchor.
func (ix *Indexer) CellWithCentroid(g domain.Geo) (domain.CellInfo, error) {
	if err := checkCoordinate(g); err != nil {
		return domain.CellInfo{}, err
	}
	cell, err := h3.LatLngToCell(h3.NewLatLng(g.Lat, g.Lon), ix.resolution)
	if err != nil {
		return domain.CellInfo{}, fmt.Errorf("%w: (%v, %v): %v", domain.ErrInvalidCoordinate, g.Lat, g.Lon, err)
	}
	center, err := h3.CellToLatLng(cell)
	if err != nil {
		return domain.CellInfo{}, fmt.Errorf("hexgrid: centroid of %s: %w", cell.String(), err)
	}
	return domain.CellInfo{
		ID:       domain.CellID(cell.String()),
		Centroid: domain.Geo{Lat: center.Lat, Lon: center.Lng},
	}, nil
}

// Aggregate reduces a point set to per-cell counts. Invalid points are
// dropped and counted, never zero-filled into a cell. The reduction is
// order-independent: splitting a batch and summing the resulting maps gives
// the same counts as one pass.
func (ix *Indexer) Aggregate(points []domain.Geo) (map[domain.CellID]int, int) {
	counts := make(map[domain.CellID]int)
	dropped := 0
	for _, g := range points {
		cell, err := ix.Cell(g)
		if err != nil {
			dropped++
			continue
		}
		counts[cell]++
	}
	return counts, dropped
}

// Boundary returns the polygon vertices of a cell for map rendering.
func Boundary(id domain.CellID) ([]domain.Geo, error) {
	cell := h3.Cell(h3.IndexFromString(string(id)))
	if !cell.IsValid() {
		return nil, fmt.Errorf("hexgrid: %q is not an H3 cell", id)
	}
	boundary, err := h3.CellToBoundary(cell)
	if err != nil {
		return nil, fmt.Errorf("hexgrid: boundary of %s: %w", id, err)
	}
	vertices := make([]domain.Geo, 0, len(boundary))
	for _, v := range boundary {
		vertices = append(vertices, domain.Geo{Lat: v.Lat, Lon: v.Lng})
	}
	return vertices, nil
}

// CellResolution reports the resolution encoded in a cell identifier, used to
// reject cross-resolution mixing before any scoring happens.
func CellResolution(id domain.CellID) (int, error) {
	cell := h3.Cell(h3.IndexFromString(string(id)))
	if !cell.IsValid() {
		return 0, fmt.Errorf("hexgrid: %q is not an H3 cell", id)
	}
	return cell.Resolution(), nil
}

func checkCoordinate(g domain.Geo) error {
	if math.IsNaN(g.Lat) || math.IsInf(g.Lat, 0) || math.IsNaN(g.Lon) || math.IsInf(g.Lon, 0) {
		return fmt.Errorf("%w: non-finite (%v, %v)", domain.ErrInvalidCoordinate, g.Lat, g.Lon)
	}
	if g.Lat < -90 || g.Lat > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", domain.ErrInvalidCoordinate, g.Lat)
	}
	if g.Lon < -180 || g.Lon > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", domain.ErrInvalidCoordinate, g.Lon)
	}
	return nil
}
