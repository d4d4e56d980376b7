package trainer

import (
	"context"
	"time"

	"signforge/internal/dataset"
	"signforge/internal/metrics"
	"signforge/internal/model"
)

// TrainEpoch runs one optimisation pass over loader and returns the
// size-weighted mean loss and accuracy of the pass.
func TrainEpoch(ctx context.Context, m model.Model, loader *dataset.Loader, opt model.Optimizer) (metrics.Snapshot, error) {
	return pass(ctx, loader, func(batch model.Batch) (model.StepResult, error) {
		return m.TrainStep(batch, opt)
	})
}

// Evaluate scores loader without dropout or parameter updates.
func Evaluate(ctx context.Context, m model.Model, loader *dataset.Loader) (metrics.Snapshot, error) {
	return pass(ctx, loader, m.EvalStep)
}

func pass(ctx context.Context, loader *dataset.Loader, step func(model.Batch) (model.StepResult, error)) (metrics.Snapshot, error) {
	var window metrics.Window
	startData := time.Now()
	err := loader.Each(ctx, func(inputs [][]float64, labels []int) error {
		dataTime := time.Since(startData)

		startCompute := time.Now()
		res, err := step(model.Batch{Inputs: inputs, Labels: labels})
		if err != nil {
			return err
		}
		computeTime := time.Since(startCompute)

		window.Record(res.Samples, res.Correct, res.Loss, dataTime, computeTime)
		startData = time.Now()
		return nil
	})
	if err != nil {
		return metrics.Snapshot{}, err
	}
	return window.Snapshot(), nil
}
