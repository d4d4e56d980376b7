package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"signforge/internal/checkpoint"
	"signforge/internal/dataset"
	"signforge/internal/device"
	"signforge/internal/metrics"
	"signforge/internal/model"
	"signforge/internal/onnx"
)

// RunConfig captures the knobs required by the training pipeline.
type RunConfig struct {
	DataPath       string
	CheckpointPath string
	// ExportPath is where the browser ONNX model goes; empty skips export.
	ExportPath    string
	Epochs        int
	BatchSize     int
	LearningRate  float64
	HiddenDim     int
	Dropout       float64
	TrainFraction float64
	// Seed drives split, shuffling, initialisation and dropout. Zero picks
	// a fresh seed that is logged and returned in the Result.
	Seed         int64
	Device       string
	OpsetVersion int64
	IRVersion    int64
	LogEvery     int
}

// Result reports what a run produced.
type Result struct {
	RunID          string
	Seed           int64
	Device         device.Device
	Classes        []string
	TrainSize      int
	ValSize        int
	History        []metrics.Epoch
	CheckpointPath string
	Export         *onnx.Artifact
	// ExportErr is set when the ONNX export failed. The run itself still
	// succeeded: the checkpoint is on disk.
	ExportErr error
}

// Run loads the table, trains the classifier, saves the checkpoint and
// attempts the browser export.
func Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	if cfg.Epochs <= 0 {
		return nil, errors.New("trainer: epochs must be > 0")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("trainer: batch size must be > 0")
	}
	if cfg.TrainFraction <= 0 || cfg.TrainFraction > 1 {
		return nil, fmt.Errorf("trainer: train fraction must be in (0, 1] (got %g)", cfg.TrainFraction)
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 1
	}

	dev, err := device.Select(cfg.Device)
	if err != nil {
		return nil, err
	}
	res := &Result{RunID: uuid.NewString(), Device: dev, CheckpointPath: cfg.CheckpointPath}
	log := slog.With("run_id", res.RunID)
	log.Info("using device", "device", dev.String(), "brand", dev.Brand,
		"logical_cores", dev.LogicalCores, "features", dev.Features)

	res.Seed = cfg.Seed
	if res.Seed == 0 {
		res.Seed = time.Now().UnixNano()
	}
	log.Info("seeded run", "seed", res.Seed)
	rng := rand.New(rand.NewSource(res.Seed))

	table, err := dataset.LoadTable(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("load data: %w", err)
	}
	log.Info("data loaded", "path", cfg.DataPath, "rows", table.Len(), "columns", table.Columns())

	enc := dataset.FitLabelEncoder(table.Labels)
	res.Classes = enc.Classes()
	log.Info(fmt.Sprintf("detected %d unique signs", enc.NumClasses()), "classes", enc.NumClasses())

	ds, err := dataset.NewDataset(table, enc)
	if err != nil {
		return nil, err
	}
	trainIdx, valIdx := dataset.Split(ds.Len(), cfg.TrainFraction, rng)
	res.TrainSize, res.ValSize = len(trainIdx), len(valIdx)
	if len(trainIdx) == 0 {
		return nil, fmt.Errorf("trainer: %d rows leave an empty training split", ds.Len())
	}
	log.Info("split dataset", "train", len(trainIdx), "val", len(valIdx))

	trainLoader, err := dataset.NewLoader(ds, trainIdx, cfg.BatchSize, rng)
	if err != nil {
		return nil, err
	}
	valLoader, err := dataset.NewLoader(ds, valIdx, cfg.BatchSize, nil)
	if err != nil {
		return nil, err
	}

	mdl, err := model.NewMLP(model.Spec{
		InputDim:   ds.Dim(),
		HiddenDim:  cfg.HiddenDim,
		NumClasses: enc.NumClasses(),
		Dropout:    cfg.Dropout,
	}, rng)
	if err != nil {
		return nil, err
	}
	spec := mdl.Spec()
	log.Info("built model", "input_dim", spec.InputDim, "hidden_dim", spec.HiddenDim,
		"num_classes", spec.NumClasses, "dropout", spec.Dropout)

	opt := model.NewAdam(cfg.LearningRate)
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		trainSnap, err := TrainEpoch(ctx, mdl, trainLoader, opt)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: train: %w", epoch, err)
		}
		valSnap, err := Evaluate(ctx, mdl, valLoader)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: evaluate: %w", epoch, err)
		}
		res.History = append(res.History, metrics.Epoch{Epoch: epoch, Train: trainSnap, Val: valSnap})

		if epoch%cfg.LogEvery == 0 || epoch == cfg.Epochs {
			log.Info(fmt.Sprintf("epoch [%d/%d]", epoch, cfg.Epochs),
				"train_loss", trainSnap.Loss,
				"train_acc", trainSnap.Accuracy,
				"val_loss", valSnap.Loss,
				"val_acc", valSnap.Accuracy,
				"samples_per_sec", trainSnap.SamplesPerSec,
			)
		}
	}

	ckpt := checkpoint.New(res.RunID, res.Seed, mdl, enc, res.History)
	if err := checkpoint.Save(cfg.CheckpointPath, ckpt); err != nil {
		return nil, err
	}
	log.Info("model saved", "path", cfg.CheckpointPath)

	if cfg.ExportPath == "" {
		log.Info("onnx export skipped")
		return res, nil
	}
	log.Info("starting onnx export", "path", cfg.ExportPath, "opset", cfg.OpsetVersion, "ir_version", cfg.IRVersion)
	res.Export, res.ExportErr = guardExport(func() (*onnx.Artifact, error) {
		return onnx.ExportForBrowser(mdl, cfg.ExportPath, cfg.IRVersion, onnx.Options{
			Opset:     cfg.OpsetVersion,
			DocString: "run " + res.RunID,
		})
	})
	if res.ExportErr != nil {
		attrs := []any{"err", res.ExportErr}
		var pe *exportPanic
		if errors.As(res.ExportErr, &pe) {
			attrs = append(attrs, "stack", string(pe.stack))
		}
		log.Error("onnx export failed", attrs...)
		return res, nil
	}
	log.Info("browser-safe onnx export succeeded",
		"path", res.Export.Path,
		"size_kb", fmt.Sprintf("%.2f", float64(res.Export.Size)/1024),
		"ir_version", res.Export.Info.IRVersion,
	)
	return res, nil
}

type exportPanic struct {
	value any
	stack []byte
}

func (p *exportPanic) Error() string {
	return fmt.Sprintf("panic during export: %v", p.value)
}

// guardExport runs fn, turning a panic into an error that keeps the stack.
func guardExport(fn func() (*onnx.Artifact, error)) (art *onnx.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			art = nil
			err = &exportPanic{value: r, stack: debug.Stack()}
		}
	}()
	return fn()
}
