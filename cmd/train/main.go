// Command train runs the full training pipeline: ingest two cleaned yearly
// CSV batches, train a risk model on the earlier year, validate it against
// the later one, and write the model artifact plus a run report.
//
// Usage:
//
//	go run ./cmd/train \
//	  -train-csv data/cleaned_2023.csv \
//	  -validate-csv data/cleaned_2024.csv \
//	  -train-year 2023 -validate-year 2024 \
//	  -model-out model.json
//
// Engine settings (grid resolution, period boundaries, forest hyperparameters)
// come from the environment; see internal/config. When DATABASE_URL is set the
// run summary is also recorded in Postgres.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/riverweft/patrolcast/internal/config"
	"github.com/riverweft/patrolcast/internal/dataset"
	"github.com/riverweft/patrolcast/internal/ingest"
	"github.com/riverweft/patrolcast/internal/observability"
	"github.com/riverweft/patrolcast/internal/pipeline"
	"github.com/riverweft/patrolcast/internal/residual"
	"github.com/riverweft/patrolcast/internal/store"
)

func main() {
	trainCSV := flag.String("train-csv", "", "cleaned incident CSV for the training year")
	validateCSV := flag.String("validate-csv", "", "cleaned incident CSV for the holdout year")
	trainYear := flag.Int("train-year", 0, "calendar year to train on")
	validateYear := flag.Int("validate-year", 0, "calendar year to validate against")
	modelOut := flag.String("model-out", "", "artifact output path (defaults to MODEL_PATH)")
	reportOut := flag.String("report-out", "", "optional path for the full run report as JSON")
	flag.Parse()

	if *trainCSV == "" || *validateCSV == "" || *trainYear == 0 || *validateYear == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*trainCSV, *validateCSV, *trainYear, *validateYear, *modelOut, *reportOut); err != nil {
		fmt.Fprintf(os.Stderr, "train: %v\n", err)
		os.Exit(1)
	}
}

func run(trainCSV, validateCSV string, trainYear, validateYear int, modelOut, reportOut string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var recorder pipeline.RunRecorder
	var runStore *store.RunStore
	if cfg.DatabaseURL != "" {
		runStore, err = store.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		defer runStore.Close()
		if err := runStore.EnsureSchema(ctx); err != nil {
			return err
		}
		recorder = runStore
		logger.Info("run recording enabled")
	}

	p, err := pipeline.New(cfg.Engine, logger, metrics, recorder)
	if err != nil {
		return err
	}

	modelPath := modelOut
	if modelPath == "" {
		modelPath = cfg.ModelPath
	}

	result, err := p.Run(ctx, pipeline.Spec{
		TrainCSV:     trainCSV,
		ValidateCSV:  validateCSV,
		TrainYear:    trainYear,
		ValidateYear: validateYear,
		ModelPath:    modelPath,
	})
	if err != nil {
		return err
	}

	printReport(result, cfg)

	if runStore != nil {
		history, err := runStore.RecentRuns(ctx, 5)
		switch {
		case err != nil:
			logger.Warn("run history unavailable", "error", err)
		case len(history) > 0:
			printHistory(history)
		}
	}

	if reportOut != "" {
		if err := writeReport(reportOut, result); err != nil {
			return err
		}
		fmt.Printf("\nFull report: %s\n", reportOut)
	}
	return nil
}

func printReport(r *pipeline.Result, cfg *config.Config) {
	fmt.Println("=== Training Run Report ===")
	fmt.Println()
	fmt.Printf("Run %s\n", r.RunID)
	fmt.Printf("Model %s (config %s)\n", r.ModelVersion, r.ConfigFingerprint)
	fmt.Printf("Trained on %d, validated against %d\n", r.TrainYear, r.ValidateYear)

	fmt.Println("\n── Ingest ──")
	printIngest(r.TrainYear, r.TrainIngest)
	printIngest(r.ValidateYear, r.ValidateIngest)

	fmt.Println("\n── Dataset ──")
	printBuild(r.TrainBuild)
	printBuild(r.ValidateBuild)

	fmt.Printf("\n── Batch profile (%d) ──\n", r.TrainYear)
	for _, p := range r.TrainProfile.Periods {
		fmt.Printf("  %-12s weekday %8.1f/day   weekend %8.1f/day\n",
			p.Period, p.WeekdayPerDay, p.WeekendPerDay)
	}
	if len(r.TrainProfile.Categories) > 0 {
		fmt.Println("  Top categories:")
		for i, c := range r.TrainProfile.Categories {
			if i == 5 {
				break
			}
			fmt.Printf("    %-24s %d\n", c.Category, c.Count)
		}
	}

	fmt.Println("\n── Model ──")
	f := cfg.Engine.Forest
	fmt.Printf("  %d trees, max depth %d, min leaf %d, sample ratio %.2f, seed %d\n",
		f.Trees, f.MaxDepth, f.MinLeaf, f.SampleRatio, f.Seed)
	fmt.Println("  Feature importances:")
	for _, imp := range r.Importances {
		fmt.Printf("    %-16s %.4f\n", imp.Feature, imp.Weight)
	}

	fmt.Printf("\n── Validation (%d) ──\n", r.ValidateYear)
	fmt.Printf("  MAE %.3f   R2 %.4f   (%d observations, %d skipped cells)\n",
		r.Metrics.MAE, r.Metrics.R2, r.Metrics.Observations, r.Metrics.SkippedCells)
	fmt.Printf("  Residuals: mean %+.3f   p10 %+.2f   p50 %+.2f   p90 %+.2f\n",
		r.Residuals.MeanResidual, r.Residuals.P10, r.Residuals.P50, r.Residuals.P90)
	printCellSummaries("Most under-predicted cells (unmet demand):", r.Residuals.UnderPredicted)
	printCellSummaries("Most over-predicted cells:", r.Residuals.OverPredicted)

	if len(r.Growth) > 0 || len(r.Decline) > 0 {
		fmt.Println("\n── Year-over-year movers ──")
		printMovers("Growth:", r.Growth, r.TrainYear, r.ValidateYear)
		printMovers("Decline:", r.Decline, r.TrainYear, r.ValidateYear)
	}

	fmt.Println("\n── Timing ──")
	var parts []string
	for _, s := range r.Stages {
		parts = append(parts, fmt.Sprintf("%s %s", s.Stage, s.Duration.Round(time.Millisecond)))
	}
	fmt.Printf("  %s\n", strings.Join(parts, ", "))
	fmt.Printf("  total %s\n", r.Duration.Round(time.Millisecond))

	fmt.Println()
	if r.ModelPath != "" {
		fmt.Printf("Artifact: %s\n", r.ModelPath)
	}
	if r.Recorded {
		fmt.Println("Run recorded in database.")
	}
}

func printIngest(year int, s ingest.Stats) {
	skipped := s.Rows - s.Parsed
	fmt.Printf("  %d: %d rows, %d parsed", year, s.Rows, s.Parsed)
	if skipped > 0 {
		fmt.Printf(" (%d skipped: %d malformed, %d bad coordinate, %d bad timestamp)",
			skipped, s.Malformed, s.BadCoordinate, s.BadTimestamp)
	}
	fmt.Println()
}

func printBuild(b dataset.BuildStats) {
	fmt.Printf("  %d: %d used of %d", b.Year, b.Used, b.Input)
	var drops []string
	if b.OutOfYear > 0 {
		drops = append(drops, fmt.Sprintf("%d out of year", b.OutOfYear))
	}
	if b.Spike.Excluded > 0 {
		drops = append(drops, fmt.Sprintf("%d spike-excluded", b.Spike.Excluded))
	}
	if b.InvalidCoordinate > 0 {
		drops = append(drops, fmt.Sprintf("%d invalid coordinate", b.InvalidCoordinate))
	}
	if b.OutOfArea > 0 {
		drops = append(drops, fmt.Sprintf("%d out of area", b.OutOfArea))
	}
	if len(drops) > 0 {
		fmt.Printf(" (%s)", strings.Join(drops, ", "))
	}
	fmt.Printf("; %d cells, %d observations\n", b.Cells, b.Observations)

	if b.Spike.Flagged {
		fmt.Printf("  MIDNIGHT SPIKE %d: midnight %d vs top-of-hour mean %.1f (factor %.1f)\n",
			b.Year, b.Spike.MidnightCount, b.Spike.TopOfHourMean, b.Spike.Factor)
	}
}

func printCellSummaries(title string, cells []residual.CellSummary) {
	if len(cells) == 0 {
		return
	}
	fmt.Printf("  %s\n", title)
	for i, c := range cells {
		if i == 5 {
			break
		}
		fmt.Printf("    %-18s mean %+.2f  (%d windows)\n", c.Cell, c.MeanResidual, c.Observations)
	}
}

func printMovers(title string, movers []dataset.CellDelta, yearA, yearB int) {
	if len(movers) == 0 {
		return
	}
	fmt.Printf("  %s\n", title)
	for i, d := range movers {
		if i == 5 {
			break
		}
		fmt.Printf("    %-18s %d %d -> %d %d  (%+d)\n", d.Cell, yearA, d.CountA, yearB, d.CountB, d.Delta)
	}
}

func printHistory(runs []store.RunSummary) {
	fmt.Println("\n── Run history ──")
	for _, r := range runs {
		fmt.Printf("  %s  %-28s %d->%d  MAE %.3f  R2 %.4f  (%s)\n",
			r.StartedAt.Format("2006-01-02 15:04"), r.ModelVersion,
			r.TrainYear, r.ValidateYear, r.MAE, r.R2,
			(time.Duration(r.DurationMS) * time.Millisecond).Round(time.Millisecond))
	}
}

func writeReport(path string, r *pipeline.Result) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
