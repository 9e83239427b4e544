// Package pipeline orchestrates a complete training run: ingest two year
// batches, build the per-year datasets, train on the earlier year, validate
// against the later one, analyze residuals, and publish the model artifact.
//
// A run is atomic. Stages execute in order, any stage error aborts the whole
// run, and the artifact is written only after validation succeeds, so a
// half-trained model can never be picked up by the serving path. Cancelling
// the context aborts the run; there is no resume.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/riverweft/patrolcast/internal/dataset"
	"github.com/riverweft/patrolcast/internal/domain"
	"github.com/riverweft/patrolcast/internal/ingest"
	"github.com/riverweft/patrolcast/internal/model"
	"github.com/riverweft/patrolcast/internal/observability"
	"github.com/riverweft/patrolcast/internal/residual"
)

// RunRecorder persists a completed run summary. Recording is best-effort:
// a recorder failure is logged and surfaced on the Result, never fatal.
type RunRecorder interface {
	SaveRun(ctx context.Context, result *Result) error
}

// Spec names the inputs and outputs of one training run.
type Spec struct {
	TrainCSV     string
	ValidateCSV  string
	TrainYear    int
	ValidateYear int

	// ModelPath is where the artifact is written. Empty skips persistence,
	// which only makes sense in tests.
	ModelPath string
}

// Importance is one feature's share of the forest's split gain.
type Importance struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// StageTiming records how long one pipeline stage took.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// Result is the full accounting of a training run: what went in, what was
// dropped and why, how the model scored, and where it misses.
type Result struct {
	RunID             string        `json:"run_id"`
	ModelVersion      string        `json:"model_version"`
	ConfigFingerprint string        `json:"config_fingerprint"`
	TrainYear         int           `json:"train_year"`
	ValidateYear      int           `json:"validate_year"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	Stages            []StageTiming `json:"stages"`

	TrainIngest    ingest.Stats       `json:"train_ingest"`
	ValidateIngest ingest.Stats       `json:"validate_ingest"`
	TrainBuild     dataset.BuildStats `json:"train_build"`
	ValidateBuild  dataset.BuildStats `json:"validate_build"`
	TrainProfile   dataset.Profile    `json:"train_profile"`

	Metrics     model.Metrics    `json:"metrics"`
	Importances []Importance     `json:"importances"`
	Residuals   residual.Summary `json:"residuals"`

	// Growth and Decline are the cells whose year-over-year totals moved
	// the most, largest first.
	Growth  []dataset.CellDelta `json:"growth"`
	Decline []dataset.CellDelta `json:"decline"`

	ModelPath string `json:"model_path,omitempty"`
	Recorded  bool   `json:"recorded"`
}

// Pipeline runs training end to end under one engine configuration.
type Pipeline struct {
	cfg      domain.Config
	builder  *dataset.Builder
	logger   *slog.Logger
	metrics  *observability.Metrics
	recorder RunRecorder
}

// New creates a Pipeline. Pass a nil recorder to disable run recording.
func New(cfg domain.Config, logger *slog.Logger, metrics *observability.Metrics, recorder RunRecorder) (*Pipeline, error) {
	builder, err := dataset.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return &Pipeline{
		cfg:      cfg,
		builder:  builder,
		logger:   logger,
		metrics:  metrics,
		recorder: recorder,
	}, nil
}

// Run executes one training run. On success the returned Result is complete
// and the artifact (if requested) is on disk; on error nothing is published.
func (p *Pipeline) Run(ctx context.Context, spec Spec) (*Result, error) {
	if spec.TrainYear == spec.ValidateYear {
		return nil, fmt.Errorf("pipeline: training and validation year are both %d; the holdout must be a different calendar year", spec.TrainYear)
	}

	result := &Result{
		RunID:             uuid.NewString(),
		ConfigFingerprint: p.cfg.Fingerprint(),
		TrainYear:         spec.TrainYear,
		ValidateYear:      spec.ValidateYear,
		StartedAt:         domain.Now(),
	}
	runStart := time.Now()

	p.logger.Info("training run started",
		"run_id", result.RunID,
		"train_year", spec.TrainYear,
		"validate_year", spec.ValidateYear,
		"config", result.ConfigFingerprint,
	)

	var trained *model.RiskModel
	err := p.runStages(ctx, spec, result, &trained)
	result.Duration = time.Since(runStart)
	p.metrics.TrainingDuration.Observe(result.Duration.Seconds())

	if err != nil {
		p.metrics.TrainingRuns.WithLabelValues("error").Inc()
		p.logger.Error("training run failed", "run_id", result.RunID, "error", err)
		return nil, err
	}
	p.metrics.TrainingRuns.WithLabelValues("success").Inc()

	p.record(ctx, result)

	p.logger.Info("training run complete",
		"run_id", result.RunID,
		"model_version", result.ModelVersion,
		"mae", result.Metrics.MAE,
		"r2", result.Metrics.R2,
		"duration", result.Duration,
	)
	return result, nil
}

func (p *Pipeline) runStages(ctx context.Context, spec Spec, result *Result, trained **model.RiskModel) error {
	var (
		trainBatch    []domain.Incident
		validateBatch []domain.Incident
		trainObs      []domain.Observation
		validateObs   []domain.Observation
	)

	stages := []struct {
		name string
		fn   func() error
	}{
		{"ingest", func() error {
			var err error
			if trainBatch, result.TrainIngest, err = p.ingestBatch(spec.TrainCSV); err != nil {
				return err
			}
			validateBatch, result.ValidateIngest, err = p.ingestBatch(spec.ValidateCSV)
			return err
		}},
		{"build", func() error {
			trainObs, result.TrainBuild = p.buildDataset(trainBatch, spec.TrainYear)
			validateObs, result.ValidateBuild = p.buildDataset(validateBatch, spec.ValidateYear)
			result.TrainProfile = p.builder.Profile(trainBatch)
			return nil
		}},
		{"train", func() error {
			m, err := model.Train(ctx, trainObs, p.cfg)
			if err != nil {
				return err
			}
			*trained = m
			result.ModelVersion = m.Version
			result.Importances = rankImportances(m.FeatureNames, m.Forest.FeatureImportances)
			return nil
		}},
		{"validate", func() error {
			metrics, err := (*trained).Validate(validateObs, p.cfg)
			if err != nil {
				return err
			}
			result.Metrics = metrics
			return nil
		}},
		{"analyze", func() error {
			_, summary, err := residual.Analyze(*trained, validateObs, p.cfg.TopK)
			if err != nil {
				return err
			}
			result.Residuals = summary

			deltas := dataset.CompareYears(trainObs, validateObs)
			result.Growth, result.Decline = splitMovers(deltas, p.cfg.TopK)
			return nil
		}},
		{"persist", func() error {
			if spec.ModelPath == "" {
				return nil
			}
			if err := (*trained).Save(spec.ModelPath); err != nil {
				return err
			}
			result.ModelPath = spec.ModelPath
			return nil
		}},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline: aborted before %s: %w", s.name, err)
		}
		start := time.Now()
		if err := s.fn(); err != nil {
			return fmt.Errorf("pipeline: %s: %w", s.name, err)
		}
		elapsed := time.Since(start)
		result.Stages = append(result.Stages, StageTiming{Stage: s.name, Duration: elapsed})
		p.logger.Info("stage complete", "run_id", result.RunID, "stage", s.name, "duration", elapsed)
	}
	return nil
}

func (p *Pipeline) ingestBatch(path string) ([]domain.Incident, ingest.Stats, error) {
	incidents, stats, err := ingest.ReadFile(path)
	if err != nil {
		return nil, stats, err
	}

	p.metrics.RecordsIngested.Add(float64(stats.Parsed))
	p.countDrops(map[string]int{
		observability.DropMalformed:     stats.Malformed,
		observability.DropBadCoordinate: stats.BadCoordinate,
		observability.DropBadTimestamp:  stats.BadTimestamp,
	})

	skipped := stats.Rows - stats.Parsed
	if skipped > 0 {
		p.logger.Warn("batch has unparseable rows",
			"path", path,
			"rows", stats.Rows,
			"skipped", skipped,
		)
	}
	return incidents, stats, nil
}

func (p *Pipeline) buildDataset(incidents []domain.Incident, year int) ([]domain.Observation, dataset.BuildStats) {
	obs, stats := p.builder.Build(incidents, year)

	p.metrics.DatasetRows.Observe(float64(stats.Observations))
	p.countDrops(map[string]int{
		observability.DropOutOfYear:     stats.OutOfYear,
		observability.DropBadCoordinate: stats.InvalidCoordinate,
		observability.DropOutOfArea:     stats.OutOfArea,
		observability.DropMidnightSpike: stats.Spike.Excluded,
	})

	if stats.Spike.Flagged {
		p.logger.Warn("midnight spike flagged",
			"year", year,
			"midnight_count", stats.Spike.MidnightCount,
			"top_of_hour_mean", stats.Spike.TopOfHourMean,
			"excluded", stats.Spike.Excluded,
			"policy", p.cfg.SpikePolicy,
		)
	}
	p.logger.Info("dataset built",
		"year", year,
		"used", stats.Used,
		"cells", stats.Cells,
		"observations", stats.Observations,
	)
	return obs, stats
}

func (p *Pipeline) countDrops(byReason map[string]int) {
	for reason, n := range byReason {
		if n > 0 {
			p.metrics.RecordsDropped.WithLabelValues(reason).Add(float64(n))
		}
	}
}

func (p *Pipeline) record(ctx context.Context, result *Result) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.SaveRun(ctx, result); err != nil {
		p.logger.Warn("run recording failed", "run_id", result.RunID, "error", err)
		return
	}
	result.Recorded = true
}

// rankImportances pairs feature names with forest importances, heaviest first.
func rankImportances(names []string, weights []float64) []Importance {
	ranked := make([]Importance, 0, len(names))
	for i, name := range names {
		ranked = append(ranked, Importance{Feature: name, Weight: weights[i]})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Weight != ranked[j].Weight {
			return ranked[i].Weight > ranked[j].Weight
		}
		return ranked[i].Feature < ranked[j].Feature
	})
	return ranked
}

// splitMovers takes year-over-year deltas (already sorted by growth) and
// returns the k largest gains and k largest declines, steepest first. Flat
// cells appear in neither list.
func splitMovers(deltas []dataset.CellDelta, k int) (growth, decline []dataset.CellDelta) {
	for _, d := range deltas {
		switch {
		case d.Delta > 0 && len(growth) < k:
			growth = append(growth, d)
		case d.Delta < 0:
			decline = append(decline, d)
		}
	}
	sort.Slice(decline, func(i, j int) bool {
		if decline[i].Delta != decline[j].Delta {
			return decline[i].Delta < decline[j].Delta
		}
		return decline[i].Cell < decline[j].Cell
	})
	if len(decline) > k {
		decline = decline[:k]
	}
	return growth, decline
}
