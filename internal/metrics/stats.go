package metrics

import "time"

// Window accumulates per-batch results across one pass over a split.
type Window struct {
	samples int
	correct int
	lossSum float64
	data    time.Duration
	compute time.Duration
	steps   int
}

// Record adds a batch measurement. loss is the batch mean, weighted by
// batchSize when aggregated.
func (w *Window) Record(batchSize, correct int, loss float64, dataTime, computeTime time.Duration) {
	w.samples += batchSize
	w.correct += correct
	w.lossSum += loss * float64(batchSize)
	w.data += dataTime
	w.compute += computeTime
	w.steps++
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Samples: w.samples}
	if w.samples > 0 {
		snap.Loss = w.lossSum / float64(w.samples)
		snap.Accuracy = float64(w.correct) / float64(w.samples)
	}
	total := w.data + w.compute
	if total > 0 {
		snap.SamplesPerSec = float64(w.samples) / total.Seconds()
	}
	if w.steps > 0 {
		snap.AvgDataMS = (w.data.Seconds() * 1000) / float64(w.steps)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.steps)
	}

	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics for one split.
type Snapshot struct {
	Samples       int     `json:"samples"`
	Loss          float64 `json:"loss"`
	Accuracy      float64 `json:"accuracy"`
	SamplesPerSec float64 `json:"samples_per_sec"`
	AvgDataMS     float64 `json:"avg_data_ms"`
	AvgComputeMS  float64 `json:"avg_compute_ms"`
}

// Epoch pairs the train and validation snapshots of one epoch.
type Epoch struct {
	Epoch int      `json:"epoch"`
	Train Snapshot `json:"train"`
	Val   Snapshot `json:"val"`
}
