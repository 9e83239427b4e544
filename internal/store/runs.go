// Package store persists training run history to Postgres. Every completed
// run is one row: the headline numbers in indexed columns for dashboards, the
// full report as JSONB for everything else. The store is append-only; runs
// are facts, not state.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/riverweft/patrolcast/internal/pipeline"
)

// RunStore records completed training runs in Postgres.
type RunStore struct {
	db *sqlx.DB
}

// Open connects to Postgres and verifies the connection with a ping.
func Open(dsn string) (*RunStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	return &RunStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the run history table when absent.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS training_runs (
			run_id                TEXT PRIMARY KEY,
			model_version         TEXT NOT NULL,
			config_fingerprint    TEXT NOT NULL,
			train_year            INT NOT NULL,
			validate_year         INT NOT NULL,
			started_at            TIMESTAMPTZ NOT NULL,
			duration_ms           BIGINT NOT NULL,
			train_rows            INT NOT NULL,
			train_observations    INT NOT NULL,
			validate_observations INT NOT NULL,
			mae                   DOUBLE PRECISION NOT NULL,
			r2                    DOUBLE PRECISION NOT NULL,
			report                JSONB NOT NULL,
			recorded_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// SaveRun writes one completed run. Satisfies pipeline.RunRecorder.
func (s *RunStore) SaveRun(ctx context.Context, result *pipeline.Result) error {
	const query = `
		INSERT INTO training_runs (
			run_id, model_version, config_fingerprint,
			train_year, validate_year, started_at, duration_ms,
			train_rows, train_observations, validate_observations,
			mae, r2, report
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	report, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("store: marshal report for run %s: %w", result.RunID, err)
	}

	_, err = s.db.ExecContext(ctx, query,
		result.RunID, result.ModelVersion, result.ConfigFingerprint,
		result.TrainYear, result.ValidateYear, result.StartedAt, result.Duration.Milliseconds(),
		result.TrainIngest.Rows, result.TrainBuild.Observations, result.Metrics.Observations,
		result.Metrics.MAE, result.Metrics.R2, report,
	)
	if err != nil {
		return fmt.Errorf("store: save run %s: %w", result.RunID, err)
	}
	return nil
}

// RunSummary is one row of run history, newest first from RecentRuns.
type RunSummary struct {
	RunID        string    `db:"run_id" json:"run_id"`
	ModelVersion string    `db:"model_version" json:"model_version"`
	TrainYear    int       `db:"train_year" json:"train_year"`
	ValidateYear int       `db:"validate_year" json:"validate_year"`
	StartedAt    time.Time `db:"started_at" json:"started_at"`
	DurationMS   int64     `db:"duration_ms" json:"duration_ms"`
	MAE          float64   `db:"mae" json:"mae"`
	R2           float64   `db:"r2" json:"r2"`
}

// RecentRuns returns the newest runs, most recent first.
func (s *RunStore) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	const query = `
		SELECT run_id, model_version, train_year, validate_year,
		       started_at, duration_ms, mae, r2
		FROM training_runs
		ORDER BY started_at DESC
		LIMIT $1`

	var runs []RunSummary
	if err := s.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("store: recent runs: %w", err)
	}
	return runs, nil
}
