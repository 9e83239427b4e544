package ingest

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverweft/patrolcast/internal/domain"
)

const sampleBatch = `id,latitude,longitude,timestamp,category
cfs-aaa,36.1699,-115.1398,2023-07-14T22:41:09Z,Property_Crime
cfs-bbb,36.2733,-115.2637,2023-07-15T03:12:00Z,Violent_Crime
`

func TestRead(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		incidents, stats, err := Read(strings.NewReader(sampleBatch))
		require.NoError(t, err)
		require.Len(t, incidents, 2)

		assert.Equal(t, Stats{Rows: 2, Parsed: 2}, stats)
		assert.Equal(t, "cfs-aaa", incidents[0].ID)
		assert.Equal(t, 36.1699, incidents[0].Geo.Lat)
		assert.Equal(t, -115.1398, incidents[0].Geo.Lon)
		assert.Equal(t, time.Date(2023, 7, 14, 22, 41, 9, 0, time.UTC), incidents[0].Timestamp)
		assert.Equal(t, "Property_Crime", incidents[0].Category)
	})

	t.Run("offset timestamps normalize to UTC", func(t *testing.T) {
		batch := "id,latitude,longitude,timestamp,category\n" +
			"cfs-ccc,36.1,-115.1,2023-07-14T15:41:09-07:00,Traffic\n"
		incidents, _, err := Read(strings.NewReader(batch))
		require.NoError(t, err)
		require.Len(t, incidents, 1)

		assert.Equal(t, time.Date(2023, 7, 14, 22, 41, 9, 0, time.UTC), incidents[0].Timestamp)
		assert.Equal(t, time.UTC, incidents[0].Timestamp.Location())
	})

	t.Run("malformed timestamp is one counted skip", func(t *testing.T) {
		batch := "id,latitude,longitude,timestamp,category\n" +
			"cfs-aaa,36.1,-115.1,2023-07-14T22:41:09Z,A\n" +
			"cfs-bad,36.2,-115.2,July 14th 2023,B\n" +
			"cfs-ccc,36.3,-115.3,2023-07-15T01:00:00Z,C\n"

		incidents, stats, err := Read(strings.NewReader(batch))
		require.NoError(t, err, "a bad record must not fail the batch")
		assert.Len(t, incidents, 2)
		assert.Equal(t, 1, stats.BadTimestamp)
		assert.Equal(t, 2, stats.Parsed)
		assert.Equal(t, 3, stats.Rows)
	})

	t.Run("non-numeric coordinate is a counted skip", func(t *testing.T) {
		batch := "id,latitude,longitude,timestamp,category\n" +
			"cfs-bad,north,-115.2,2023-07-14T22:41:09Z,A\n"

		incidents, stats, err := Read(strings.NewReader(batch))
		require.NoError(t, err)
		assert.Empty(t, incidents)
		assert.Equal(t, 1, stats.BadCoordinate)
	})

	t.Run("ragged row is a counted skip", func(t *testing.T) {
		batch := "id,latitude,longitude,timestamp,category\n" +
			"cfs-short,36.1,-115.1\n" +
			"cfs-ok,36.1,-115.1,2023-07-14T22:41:09Z,A\n"

		incidents, stats, err := Read(strings.NewReader(batch))
		require.NoError(t, err)
		assert.Len(t, incidents, 1)
		assert.Equal(t, 1, stats.Malformed)
	})

	t.Run("out-of-range coordinate still parses", func(t *testing.T) {
		// Range validation is the spatial indexer's job; ingest only owns syntax.
		batch := "id,latitude,longitude,timestamp,category\n" +
			"cfs-far,200,-115.2,2023-07-14T22:41:09Z,A\n"

		incidents, stats, err := Read(strings.NewReader(batch))
		require.NoError(t, err)
		assert.Len(t, incidents, 1)
		assert.Equal(t, 1, stats.Parsed)
	})

	t.Run("column order is free", func(t *testing.T) {
		batch := "timestamp,category,id,latitude,longitude\n" +
			"2023-07-14T22:41:09Z,A,cfs-aaa,36.1,-115.1\n"

		incidents, _, err := Read(strings.NewReader(batch))
		require.NoError(t, err)
		require.Len(t, incidents, 1)
		assert.Equal(t, 36.1, incidents[0].Geo.Lat)
	})

	t.Run("missing contract column fails the batch", func(t *testing.T) {
		batch := "id,lat,lon,timestamp,category\n"
		_, _, err := Read(strings.NewReader(batch))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing column")
	})

	t.Run("empty input fails", func(t *testing.T) {
		_, _, err := Read(strings.NewReader(""))
		require.Error(t, err)
	})

	t.Run("blank id gets a deterministic one", func(t *testing.T) {
		batch := "id,latitude,longitude,timestamp,category\n" +
			",36.1,-115.1,2023-07-14T22:41:09Z,A\n"

		first, _, err := Read(strings.NewReader(batch))
		require.NoError(t, err)
		second, _, err := Read(strings.NewReader(batch))
		require.NoError(t, err)

		require.Len(t, first, 1)
		assert.NotEmpty(t, first[0].ID)
		assert.Equal(t, first[0].ID, second[0].ID)
	})
}

func TestWriteReadRoundTrip(t *testing.T) {
	incidents := []domain.Incident{
		{
			ID:        "cfs-aaa",
			Geo:       domain.Geo{Lat: 36.1699, Lon: -115.1398},
			Timestamp: time.Date(2023, 7, 14, 22, 41, 9, 0, time.UTC),
			Category:  "Property_Crime",
		},
		{
			ID:        "cfs-bbb",
			Geo:       domain.Geo{Lat: 36.2733, Lon: -115.2637},
			Timestamp: time.Date(2023, 12, 31, 0, 0, 1, 0, time.UTC),
			Category:  "",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, incidents))

	got, stats, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, len(incidents), stats.Parsed)
	if diff := cmp.Diff(incidents, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
