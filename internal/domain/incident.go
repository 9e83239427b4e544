package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Incident is one cleaned call-for-service record. Coordinates are WGS-84,
// the timestamp is UTC, and Category is reporting metadata only.
type Incident struct {
	ID        string    `json:"id"`
	Geo       Geo       `json:"geo"`
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category,omitempty"`
}

// CellID is an H3 index string, e.g. "8829a1d21dfffff". H3 renders indexes as
// fixed-width hex at a given resolution, so lexicographic order on CellID is a
// total, stable order and is used for every deterministic sort in the pipeline.
type CellID string

// CellInfo pairs a grid cell with its centroid, the spatial anchor used both
// as a model feature and as the map hand-off coordinate.
type CellInfo struct {
	ID       CellID `json:"id"`
	Centroid Geo    `json:"centroid"`
}

// Observation is one model-ready dataset row: the incident count for one grid
// cell in one weekly time window of one calendar year. Zero-count rows are
// real observations ("patrolled, nothing happened"), not gaps.
type Observation struct {
	Cell     CellID     `json:"cell"`
	Centroid Geo        `json:"centroid"`
	Window   TimeWindow `json:"window"`
	Year     int        `json:"year"`
	Count    int        `json:"count"`
}

// GenerateIncidentID produces a deterministic ID from the record's key fields.
// Replaying the same batch yields identical IDs, keeping run reports and
// stored run records comparable across re-ingests.
func GenerateIncidentID(lat, lon float64, ts time.Time, category string) string {
	input := fmt.Sprintf("%.6f|%.6f|%s|%s", lat, lon, ts.UTC().Format(time.RFC3339), category)
	hash := sha256.Sum256([]byte(input))
	return "cfs-" + hex.EncodeToString(hash[:8])
}
