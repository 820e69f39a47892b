package metrics

import "time"

// Window accumulates timing stats across multiple steps.
type Window struct {
	samples  int
	data     time.Duration
	compute  time.Duration
	steps    int
	lastLoss float64
}

// Record adds a new measurement to the window.
func (w *Window) Record(batchSize int, dataTime, computeTime time.Duration, loss float64) {
	w.samples += batchSize
	w.data += dataTime
	w.compute += computeTime
	w.steps++
	w.lastLoss = loss
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Steps: w.steps}
	total := w.data + w.compute
	if total > 0 {
		snap.ImagesPerSec = float64(w.samples) / total.Seconds()
	}
	if w.steps > 0 {
		snap.AvgDataMS = (w.data.Seconds() * 1000) / float64(w.steps)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.steps)
	}
	snap.LastLoss = w.lastLoss

	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	Steps        int
	ImagesPerSec float64
	AvgDataMS    float64
	AvgComputeMS float64
	LastLoss     float64
}

// Eval accumulates an evaluation pass.
type Eval struct {
	// LossSum is the sum of per-batch mean losses.
	LossSum float64
	Correct int
	Total   int
}

// Add folds one batch into the pass.
func (e *Eval) Add(batchLoss float64, correct, n int) {
	e.LossSum += batchLoss
	e.Correct += correct
	e.Total += n
}

// AvgLoss divides the accumulated loss by the number of samples.
func (e Eval) AvgLoss() float64 {
	if e.Total == 0 {
		return 0
	}
	return e.LossSum / float64(e.Total)
}

// Accuracy is Correct / Total, or 0 for an empty pass.
func (e Eval) Accuracy() float64 {
	if e.Total == 0 {
		return 0
	}
	return float64(e.Correct) / float64(e.Total)
}
