// Package ingest reads and writes cleaned call-for-service CSV batches.
//
// The batch contract is one CSV per calendar year with the header
// id,latitude,longitude,timestamp,category and RFC 3339 timestamps. Upstream
// cleaning owns deduplication and column normalization; this package owns
// strict parsing. A malformed field drops that record and increments a skip
// counter, it never fails the batch. Only a broken header fails the batch,
// because that means the file is not the contract at all.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/riverweft/patrolcast/internal/domain"
)

var requiredColumns = []string{"id", "latitude", "longitude", "timestamp", "category"}

// Stats counts what happened to every data row of a batch. Rows is always
// Parsed + Malformed + BadCoordinate + BadTimestamp.
type Stats struct {
	Rows          int `json:"rows"`
	Parsed        int `json:"parsed"`
	Malformed     int `json:"malformed"`
	BadCoordinate int `json:"bad_coordinate"`
	BadTimestamp  int `json:"bad_timestamp"`
}

// Read parses a cleaned CSV batch. Records with unparseable coordinates or
// timestamps are dropped and counted; everything else is returned with
// timestamps normalized to UTC. Records arriving without an ID get a
// deterministic one.
func Read(r io.Reader) ([]domain.Incident, Stats, error) {
	var stats Stats

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1 // ragged rows are counted skips, not batch failures

	header, err := cr.Read()
	if err == io.EOF {
		return nil, stats, fmt.Errorf("ingest: empty batch, no header row")
	}
	if err != nil {
		return nil, stats, fmt.Errorf("ingest: read header: %w", err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, stats, err
	}

	var incidents []domain.Incident
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("ingest: read row %d: %w", stats.Rows+2, err)
		}
		stats.Rows++

		if len(row) != len(header) {
			stats.Malformed++
			continue
		}

		lat, latErr := strconv.ParseFloat(strings.TrimSpace(row[cols["latitude"]]), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(row[cols["longitude"]]), 64)
		if latErr != nil || lonErr != nil {
			stats.BadCoordinate++
			continue
		}

		ts, tsErr := time.Parse(time.RFC3339, strings.TrimSpace(row[cols["timestamp"]]))
		if tsErr != nil {
			stats.BadTimestamp++
			continue
		}
		ts = ts.UTC()

		category := strings.TrimSpace(row[cols["category"]])
		id := strings.TrimSpace(row[cols["id"]])
		if id == "" {
			id = domain.GenerateIncidentID(lat, lon, ts, category)
		}

		incidents = append(incidents, domain.Incident{
			ID:        id,
			Geo:       domain.Geo{Lat: lat, Lon: lon},
			Timestamp: ts,
			Category:  category,
		})
		stats.Parsed++
	}

	return incidents, stats, nil
}

// ReadFile parses a cleaned CSV batch from disk.
func ReadFile(path string) ([]domain.Incident, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Write emits incidents in the batch contract format, suitable for Read.
func Write(w io.Writer, incidents []domain.Incident) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(requiredColumns); err != nil {
		return fmt.Errorf("ingest: write header: %w", err)
	}
	for _, inc := range incidents {
		row := []string{
			inc.ID,
			strconv.FormatFloat(inc.Geo.Lat, 'f', -1, 64),
			strconv.FormatFloat(inc.Geo.Lon, 'f', -1, 64),
			inc.Timestamp.UTC().Format(time.RFC3339),
			inc.Category,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("ingest: write record %s: %w", inc.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// mapColumns resolves the header into column positions by name, so column
// order is free but every contract column must be present.
func mapColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, want := range requiredColumns {
		if _, ok := cols[want]; !ok {
			return nil, fmt.Errorf("ingest: header missing column %q (got %v)", want, header)
		}
	}
	return cols, nil
}
