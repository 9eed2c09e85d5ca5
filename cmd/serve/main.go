// Command serve loads the trained artifacts and serves POST /predict.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/YuminosukeSato/penguinml/config"
	"github.com/YuminosukeSato/penguinml/pkg/log"
	"github.com/YuminosukeSato/penguinml/serving"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServe(os.Args[1:])
	if err != nil {
		return err
	}
	if err := log.SetupLogger(cfg.LogLevel, os.Stderr); err != nil {
		return err
	}
	logger := log.GetLoggerWithName("serve")

	// 成果物がなければ起動しない
	art, err := serving.LoadArtifacts(cfg.ModelPath, cfg.LabelEncoderPath)
	if err != nil {
		logger.Error("Failed to load artifacts", err)
		return err
	}
	logger.Info("Artifacts loaded",
		log.ArtifactPathKey, cfg.ModelPath,
		"label_encoder_path", cfg.LabelEncoderPath,
		log.ClassesKey, art.Classes(),
	)

	handler := serving.NewHandler(art, logger,
		serving.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		serving.WithPredictionCache(cfg.CacheSize),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serving.NewServer(cfg, handler, logger).Run(ctx)
}
