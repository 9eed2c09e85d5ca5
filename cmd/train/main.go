// Command train fits the penguin species classifier and writes the model
// and label encoder artifacts used by the serve command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/YuminosukeSato/penguinml/config"
	"github.com/YuminosukeSato/penguinml/pkg/log"
	"github.com/YuminosukeSato/penguinml/training"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "train: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadTrain(os.Args[1:])
	if err != nil {
		return err
	}
	if err := log.SetupLogger(cfg.LogLevel, os.Stderr); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := training.Run(ctx, cfg)
	if err != nil {
		log.GetLoggerWithName("train").Error("Training failed", err)
		return err
	}

	fmt.Printf("Train F1: %.4f\n", report.TrainF1)
	fmt.Printf("Test F1: %.4f\n", report.TestF1)
	fmt.Printf("Model saved to %s\n", report.ModelPath)
	fmt.Printf("Label encoder saved to %s\n", report.LabelEncoderPath)
	if report.PlotPath != "" {
		fmt.Printf("Feature importance plot saved to %s\n", report.PlotPath)
	}
	return nil
}
