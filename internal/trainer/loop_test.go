package trainer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signforge/internal/checkpoint"
	"signforge/internal/dataset"
	"signforge/internal/model"
	"signforge/internal/onnx"
)

// writeClusters writes a separable table: each label is a tight cluster
// around its own centre.
func writeClusters(t *testing.T, path string, perClass int) {
	t.Helper()
	centres := map[string][]float64{
		"A":     {1, 0, 0, 0},
		"B":     {0, 1, 0, 0},
		"hello": {0, 0, 1, 0},
	}
	rng := rand.New(rand.NewSource(99))
	var buf bytes.Buffer
	for i := 0; i < perClass; i++ {
		for _, label := range []string{"A", "B", "hello"} {
			for _, c := range centres[label] {
				fmt.Fprintf(&buf, "%.4f,", c+rng.NormFloat64()*0.05)
			}
			fmt.Fprintf(&buf, "%s\n", label)
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	return &buf
}

func baseConfig(dir string) RunConfig {
	return RunConfig{
		DataPath:       filepath.Join(dir, "data", "one_hand_dataset.csv"),
		CheckpointPath: filepath.Join(dir, "models", "bsl_sign_model.ckpt"),
		ExportPath:     filepath.Join(dir, "public", "models", "bsl_sign_model.onnx"),
		Epochs:         30,
		BatchSize:      16,
		LearningRate:   1e-2,
		HiddenDim:      16,
		Dropout:        0.3,
		TrainFraction:  0.8,
		Seed:           7,
		Device:         "auto",
		OpsetVersion:   17,
		IRVersion:      9,
	}
}

func TestRunTrainsSavesAndExports(t *testing.T) {
	logs := captureLogs(t)
	dir := t.TempDir()
	cfg := baseConfig(dir)
	writeClusters(t, cfg.DataPath, 40)

	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, res.ExportErr)

	assert.Equal(t, []string{"A", "B", "hello"}, res.Classes)
	assert.Equal(t, 96, res.TrainSize)
	assert.Equal(t, 24, res.ValSize)
	assert.Equal(t, "cpu", res.Device.Kind)
	require.Len(t, res.History, cfg.Epochs)

	for _, ep := range res.History {
		for _, snap := range []struct {
			name           string
			loss, accuracy float64
		}{
			{"train", ep.Train.Loss, ep.Train.Accuracy},
			{"val", ep.Val.Loss, ep.Val.Accuracy},
		} {
			assert.GreaterOrEqual(t, snap.loss, 0.0, "epoch %d %s", ep.Epoch, snap.name)
			assert.GreaterOrEqual(t, snap.accuracy, 0.0, "epoch %d %s", ep.Epoch, snap.name)
			assert.LessOrEqual(t, snap.accuracy, 1.0, "epoch %d %s", ep.Epoch, snap.name)
		}
		assert.Equal(t, 96, ep.Train.Samples)
		assert.Equal(t, 24, ep.Val.Samples)
	}
	last := res.History[len(res.History)-1]
	assert.Less(t, last.Train.Loss, res.History[0].Train.Loss)
	assert.GreaterOrEqual(t, last.Val.Accuracy, 0.9)

	ckpt, err := checkpoint.Load(cfg.CheckpointPath)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, ckpt.RunID)
	assert.Equal(t, int64(7), ckpt.Seed)
	assert.Equal(t, 4, ckpt.Spec.InputDim)
	assert.Equal(t, 3, ckpt.Spec.NumClasses)

	require.NotNil(t, res.Export)
	info, err := onnx.InspectFile(cfg.ExportPath)
	require.NoError(t, err)
	assert.Equal(t, int64(9), info.IRVersion)
	assert.Equal(t, int64(17), info.Opsets[""])

	out := logs.String()
	assert.Contains(t, out, "detected 3 unique signs")
	assert.Contains(t, out, "epoch [30/30]")
	assert.Contains(t, out, "model saved")
	assert.Contains(t, out, "browser-safe onnx export succeeded")
}

func TestRunSurvivesExportFailure(t *testing.T) {
	logs := captureLogs(t)
	dir := t.TempDir()
	cfg := baseConfig(dir)
	cfg.Epochs = 2
	writeClusters(t, cfg.DataPath, 5)

	blocker := filepath.Join(dir, "public")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))

	res, err := Run(context.Background(), cfg)
	require.NoError(t, err, "export failure must not fail the run")
	require.Error(t, res.ExportErr)
	assert.Nil(t, res.Export)

	_, err = os.Stat(cfg.CheckpointPath)
	assert.NoError(t, err, "checkpoint must exist")

	out := logs.String()
	assert.Contains(t, out, "onnx export failed")
	assert.Contains(t, out, "err=")
	assert.NotContains(t, out, "stack=", "plain errors carry no stack")
}

func TestRunSkipsExportWithoutPath(t *testing.T) {
	captureLogs(t)
	dir := t.TempDir()
	cfg := baseConfig(dir)
	cfg.Epochs = 1
	cfg.ExportPath = ""
	writeClusters(t, cfg.DataPath, 5)

	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, res.Export)
	assert.NoError(t, res.ExportErr)
}

func TestRunReproducibleWithSeed(t *testing.T) {
	captureLogs(t)
	dir := t.TempDir()
	cfg := baseConfig(dir)
	cfg.Epochs = 3
	cfg.ExportPath = ""
	writeClusters(t, cfg.DataPath, 10)

	a, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	ckptA, err := checkpoint.Load(cfg.CheckpointPath)
	require.NoError(t, err)

	b, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	ckptB, err := checkpoint.Load(cfg.CheckpointPath)
	require.NoError(t, err)

	assert.Equal(t, ckptA.State, ckptB.State)
	for i := range a.History {
		assert.Equal(t, a.History[i].Train.Loss, b.History[i].Train.Loss)
		assert.Equal(t, a.History[i].Val.Accuracy, b.History[i].Val.Accuracy)
	}
}

func TestRunUnseededPicksAndReportsSeed(t *testing.T) {
	logs := captureLogs(t)
	dir := t.TempDir()
	cfg := baseConfig(dir)
	cfg.Epochs = 1
	cfg.Seed = 0
	cfg.ExportPath = ""
	writeClusters(t, cfg.DataPath, 5)

	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotZero(t, res.Seed)
	assert.Contains(t, logs.String(), fmt.Sprintf("seed=%d", res.Seed))
}

func TestRunFatalErrors(t *testing.T) {
	captureLogs(t)
	dir := t.TempDir()

	cfg := baseConfig(dir)
	_, err := Run(context.Background(), cfg)
	assert.Error(t, err, "missing data file")

	writeClusters(t, cfg.DataPath, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, cfg)
	assert.True(t, errors.Is(err, context.Canceled), "%v", err)

	bad := cfg
	bad.Device = "cuda"
	_, err = Run(context.Background(), bad)
	assert.Error(t, err)

	bad = cfg
	bad.Epochs = 0
	_, err = Run(context.Background(), bad)
	assert.Error(t, err)

	tiny := baseConfig(t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Dir(tiny.DataPath), 0o755))
	require.NoError(t, os.WriteFile(tiny.DataPath, []byte("1,2,A\n"), 0o644))
	_, err = Run(context.Background(), tiny)
	assert.Error(t, err, "one row leaves no training data")
}

func TestGuardExportRecoversPanic(t *testing.T) {
	art, err := guardExport(func() (*onnx.Artifact, error) {
		panic("onnx writer exploded")
	})
	assert.Nil(t, art)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "onnx writer exploded"))

	var pe *exportPanic
	require.True(t, errors.As(err, &pe))
	assert.NotEmpty(t, pe.stack)
}

func TestEvaluateEmptySplit(t *testing.T) {
	ds := &dataset.Dataset{Features: [][]float64{{1}}, Labels: []int{0}}
	loader, err := dataset.NewLoader(ds, nil, 4, nil)
	require.NoError(t, err)

	m, err := model.NewMLP(model.Spec{InputDim: 1, HiddenDim: 2, NumClasses: 1}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	snap, err := Evaluate(context.Background(), m, loader)
	require.NoError(t, err)
	assert.Zero(t, snap.Loss)
	assert.Zero(t, snap.Accuracy)
}
