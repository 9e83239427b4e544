// Command serve runs the patrol recommendation API over a trained model
// artifact. The server starts even when no artifact exists yet, answering
// health checks and reporting not-ready; SIGHUP reloads the artifact in
// place, so a retrain rolls out without dropping connections.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/riverweft/patrolcast/internal/api"
	"github.com/riverweft/patrolcast/internal/config"
	"github.com/riverweft/patrolcast/internal/model"
	"github.com/riverweft/patrolcast/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	srv := api.New(cfg, logger, metrics)

	if err := loadArtifact(srv, cfg.ModelPath); err != nil {
		logger.Warn("starting without a model, serving not-ready until one loads",
			"path", cfg.ModelPath, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := loadArtifact(srv, cfg.ModelPath); err != nil {
					logger.Error("model reload failed, keeping current model",
						"path", cfg.ModelPath, "error", err)
				}
			}
		}
	}()

	if err := srv.Run(ctx); err != nil {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func loadArtifact(srv *api.Server, path string) error {
	m, err := model.Load(path)
	if err != nil {
		return err
	}
	return srv.SetModel(m)
}
