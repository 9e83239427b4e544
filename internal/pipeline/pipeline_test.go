package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverweft/patrolcast/internal/domain"
	"github.com/riverweft/patrolcast/internal/ingest"
	"github.com/riverweft/patrolcast/internal/model"
	"github.com/riverweft/patrolcast/internal/observability"
	"github.com/riverweft/patrolcast/internal/pipeline"
)

type captureRecorder struct {
	saved []*pipeline.Result
	err   error
}

func (r *captureRecorder) SaveRun(_ context.Context, res *pipeline.Result) error {
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, res)
	return nil
}

func testConfig() domain.Config {
	cfg := domain.DefaultConfig()
	cfg.MinObservations = 50
	cfg.Forest.Trees = 10
	cfg.Forest.MaxDepth = 4
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// batchIncidents hits the same three spots every week at stable hours, so
// both years land on the same cells and the week count controls the volume.
func batchIncidents(year, weeks int) []domain.Incident {
	spots := []domain.Geo{
		{Lat: 36.1699, Lon: -115.1398},
		{Lat: 36.2733, Lon: -115.2637},
		{Lat: 36.0397, Lon: -114.9819},
	}

	var incidents []domain.Incident
	start := time.Date(year, 1, 6, 0, 0, 0, 0, time.UTC)
	for week := 0; week < weeks; week++ {
		for s, g := range spots {
			ts := start.AddDate(0, 0, 7*week).Add(time.Duration(8+4*s)*time.Hour + 30*time.Minute)
			incidents = append(incidents, domain.Incident{
				ID:        domain.GenerateIncidentID(g.Lat, g.Lon, ts, "Synth"),
				Geo:       g,
				Timestamp: ts,
				Category:  "Synth",
			})
		}
	}
	return incidents
}

func writeBatch(t *testing.T, dir, name string, year, weeks int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, ingest.Write(f, batchIncidents(year, weeks)))
	return path
}

func appendRaw(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	for _, line := range lines {
		_, err := f.WriteString(line + "\n")
		require.NoError(t, err)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	trainCSV := writeBatch(t, dir, "2023.csv", 2023, 40)
	validateCSV := writeBatch(t, dir, "2024.csv", 2024, 30)

	// Three rows that must be dropped at different layers: wrong field count
	// and a non-numeric latitude go at ingest, latitude 95 parses fine but
	// fails indexing during the build.
	appendRaw(t, trainCSV,
		"torn,row",
		"bad1,abc,-115.1398,2023-03-04T10:30:00Z,Synth",
		"bad2,95.0,-115.1398,2023-03-04T10:30:00Z,Synth",
	)

	recorder := &captureRecorder{}
	p, err := pipeline.New(testConfig(), testLogger(), observability.NewMetricsForTesting(), recorder)
	require.NoError(t, err)

	modelPath := filepath.Join(dir, "model.json")
	result, err := p.Run(context.Background(), pipeline.Spec{
		TrainCSV:     trainCSV,
		ValidateCSV:  validateCSV,
		TrainYear:    2023,
		ValidateYear: 2024,
		ModelPath:    modelPath,
	})
	require.NoError(t, err)

	t.Run("run identity", func(t *testing.T) {
		assert.NotEmpty(t, result.RunID)
		assert.True(t, strings.HasPrefix(result.ModelVersion, "rf-2023-res8-v1-"), "got %s", result.ModelVersion)
		assert.Equal(t, 2023, result.TrainYear)
		assert.Equal(t, 2024, result.ValidateYear)
		assert.Equal(t, testConfig().Fingerprint(), result.ConfigFingerprint)
	})

	t.Run("ingest accounting", func(t *testing.T) {
		assert.Equal(t, 123, result.TrainIngest.Rows)
		assert.Equal(t, 121, result.TrainIngest.Parsed)
		assert.Equal(t, 1, result.TrainIngest.Malformed)
		assert.Equal(t, 1, result.TrainIngest.BadCoordinate)
		assert.Equal(t, 90, result.ValidateIngest.Parsed)
	})

	t.Run("build accounting", func(t *testing.T) {
		assert.Equal(t, result.TrainIngest.Parsed, result.TrainBuild.Input)
		assert.Equal(t, 1, result.TrainBuild.InvalidCoordinate)
		assert.Equal(t, 120, result.TrainBuild.Used)
		assert.Equal(t, 3, result.TrainBuild.Cells)
		assert.Equal(t, 3*domain.NumWindows, result.TrainBuild.Observations)
		assert.Equal(t, 121, result.TrainProfile.Incidents)
	})

	t.Run("validation scored", func(t *testing.T) {
		assert.Equal(t, 3*domain.NumWindows, result.Metrics.Observations)
		assert.Zero(t, result.Metrics.SkippedCells)
		assert.GreaterOrEqual(t, result.Metrics.MAE, 0.0)
		assert.LessOrEqual(t, result.Metrics.R2, 1.0)
		assert.Equal(t, 3*domain.NumWindows, result.Residuals.Records)
	})

	t.Run("importances ranked", func(t *testing.T) {
		require.Len(t, result.Importances, 8)
		for i := 1; i < len(result.Importances); i++ {
			assert.GreaterOrEqual(t, result.Importances[i-1].Weight, result.Importances[i].Weight)
		}
	})

	t.Run("movers split by direction", func(t *testing.T) {
		// The validation year has ten fewer weeks, so every cell declines.
		assert.Empty(t, result.Growth)
		assert.Len(t, result.Decline, 3)
		for _, d := range result.Decline {
			assert.Negative(t, d.Delta)
		}
	})

	t.Run("artifact published", func(t *testing.T) {
		assert.Equal(t, modelPath, result.ModelPath)
		restored, err := model.Load(modelPath)
		require.NoError(t, err)
		assert.Equal(t, result.ModelVersion, restored.Version)
	})

	t.Run("all stages timed", func(t *testing.T) {
		var names []string
		for _, s := range result.Stages {
			names = append(names, s.Stage)
		}
		assert.Equal(t, []string{"ingest", "build", "train", "validate", "analyze", "persist"}, names)
	})

	t.Run("run recorded", func(t *testing.T) {
		assert.True(t, result.Recorded)
		require.Len(t, recorder.saved, 1)
		assert.Equal(t, result.RunID, recorder.saved[0].RunID)
	})
}

func TestRunGuards(t *testing.T) {
	dir := t.TempDir()
	trainCSV := writeBatch(t, dir, "2023.csv", 2023, 40)
	validateCSV := writeBatch(t, dir, "2024.csv", 2024, 30)

	newPipeline := func(t *testing.T) *pipeline.Pipeline {
		t.Helper()
		p, err := pipeline.New(testConfig(), testLogger(), observability.NewMetricsForTesting(), nil)
		require.NoError(t, err)
		return p
	}

	t.Run("same year for train and holdout", func(t *testing.T) {
		_, err := newPipeline(t).Run(context.Background(), pipeline.Spec{
			TrainCSV:     trainCSV,
			ValidateCSV:  trainCSV,
			TrainYear:    2023,
			ValidateYear: 2023,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "holdout")
	})

	t.Run("missing input file", func(t *testing.T) {
		_, err := newPipeline(t).Run(context.Background(), pipeline.Spec{
			TrainCSV:     filepath.Join(dir, "absent.csv"),
			ValidateCSV:  validateCSV,
			TrainYear:    2023,
			ValidateYear: 2024,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ingest")
	})

	t.Run("cancelled context writes nothing", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		modelPath := filepath.Join(dir, "never.json")
		_, err := newPipeline(t).Run(ctx, pipeline.Spec{
			TrainCSV:     trainCSV,
			ValidateCSV:  validateCSV,
			TrainYear:    2023,
			ValidateYear: 2024,
			ModelPath:    modelPath,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		_, statErr := os.Stat(modelPath)
		assert.True(t, os.IsNotExist(statErr), "artifact must not exist after an aborted run")
	})

	t.Run("too little training data", func(t *testing.T) {
		// One week still zero-fills to 3 cells x 28 windows = 84 rows, so the
		// floor has to sit above that to trip.
		strict := testConfig()
		strict.MinObservations = 100
		p, err := pipeline.New(strict, testLogger(), observability.NewMetricsForTesting(), nil)
		require.NoError(t, err)

		tiny := writeBatch(t, dir, "tiny.csv", 2023, 1)
		_, err = p.Run(context.Background(), pipeline.Spec{
			TrainCSV:     tiny,
			ValidateCSV:  validateCSV,
			TrainYear:    2023,
			ValidateYear: 2024,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInsufficientData)
	})
}

func TestRunRecorderFailureIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	trainCSV := writeBatch(t, dir, "2023.csv", 2023, 40)
	validateCSV := writeBatch(t, dir, "2024.csv", 2024, 30)

	recorder := &captureRecorder{err: assert.AnError}
	p, err := pipeline.New(testConfig(), testLogger(), observability.NewMetricsForTesting(), recorder)
	require.NoError(t, err)

	result, err := p.Run(context.Background(), pipeline.Spec{
		TrainCSV:     trainCSV,
		ValidateCSV:  validateCSV,
		TrainYear:    2023,
		ValidateYear: 2024,
	})
	require.NoError(t, err, "a dead run store must not fail the run")
	assert.False(t, result.Recorded)
	assert.Empty(t, result.ModelPath, "no path requested, none written")
}

func TestRunStartedAtUsesClock(t *testing.T) {
	frozen := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(frozen))
	defer domain.SetClock(nil)

	dir := t.TempDir()
	trainCSV := writeBatch(t, dir, "2023.csv", 2023, 40)
	validateCSV := writeBatch(t, dir, "2024.csv", 2024, 30)

	p, err := pipeline.New(testConfig(), testLogger(), observability.NewMetricsForTesting(), nil)
	require.NoError(t, err)

	result, err := p.Run(context.Background(), pipeline.Spec{
		TrainCSV:     trainCSV,
		ValidateCSV:  validateCSV,
		TrainYear:    2023,
		ValidateYear: 2024,
	})
	require.NoError(t, err)
	assert.Equal(t, frozen, result.StartedAt)
}
