package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"signforge/internal/config"
	"signforge/internal/logging"
	"signforge/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (built-in defaults when empty)")
	dataPath := flag.String("data", "", "Override the landmark CSV file or directory")
	checkpointPath := flag.String("checkpoint", "", "Override the checkpoint output path")
	exportPath := flag.String("export", "", "Override the ONNX output path")
	noExport := flag.Bool("no-export", false, "Skip the ONNX export")
	epochs := flag.Int("epochs", 0, "Number of training epochs")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	lr := flag.Float64("lr", 0, "Adam learning rate")
	seed := flag.Int64("seed", 0, "PRNG seed (0 picks one)")
	dev := flag.String("device", "", "Compute device: auto, cpu or cuda")
	logLevel := flag.String("log-level", "", "Log level: DEBUG, INFO, WARN or ERROR")

	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			fatal("failed to load config", err)
		}
		cfg = loaded
	}

	cfg.ApplyOverrides(config.Overrides{
		DataPath:       *dataPath,
		CheckpointPath: *checkpointPath,
		ExportPath:     *exportPath,
		Epochs:         *epochs,
		BatchSize:      *batchSize,
		LearningRate:   *lr,
		Seed:           *seed,
		Device:         *dev,
		LogLevel:       *logLevel,
	})

	if err := cfg.Validate(); err != nil {
		fatal("invalid config", err)
	}
	logging.Configure(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCfg := trainer.RunConfig{
		DataPath:       cfg.DataPath,
		CheckpointPath: cfg.CheckpointPath,
		ExportPath:     cfg.ExportPath,
		Epochs:         cfg.Epochs,
		BatchSize:      cfg.BatchSize,
		LearningRate:   cfg.LearningRate,
		HiddenDim:      cfg.HiddenDim,
		Dropout:        cfg.Dropout,
		TrainFraction:  cfg.TrainFraction,
		Seed:           cfg.Seed,
		Device:         cfg.Device,
		OpsetVersion:   cfg.OpsetVersion,
		IRVersion:      cfg.IRVersion,
		LogEvery:       cfg.LogEvery,
	}
	if *noExport {
		runCfg.ExportPath = ""
	}

	res, err := trainer.Run(ctx, runCfg)
	if err != nil {
		stop()
		fatal("training failed", err)
	}
	if res.ExportErr != nil {
		slog.Warn("finished without a browser model", "checkpoint", res.CheckpointPath)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
