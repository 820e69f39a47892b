package trainer

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"mlp-forge/internal/dataset"
	"mlp-forge/internal/metrics"
	"mlp-forge/internal/model"
)

const numClasses = 10

// RunConfig captures the knobs required by the training loop. Out receives
// the progress and summary report.
type RunConfig struct {
	Train        *dataset.Loader
	Test         *dataset.Loader
	HiddenDims   []int
	Epochs       int
	LearningRate float64
	Momentum     float64
	Dampening    float64
	WeightDecay  float64
	Nesterov     bool
	LogEvery     int
	Seed         int64
	Out          io.Writer
	Checkpoint   string
	InitFrom     string
}

// Run builds the model and optimizer, then trains and evaluates once per
// epoch. It returns the last evaluation.
func Run(ctx context.Context, cfg RunConfig) (metrics.Eval, error) {
	if cfg.Train == nil || cfg.Test == nil {
		return metrics.Eval{}, errors.New("trainer: train and test loaders are required")
	}
	if cfg.Epochs <= 0 {
		return metrics.Eval{}, errors.New("trainer: epochs must be > 0")
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 100
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}

	runID := uuid.NewString()
	trainSet := cfg.Train.Dataset()
	seed := uint64(cfg.Seed)
	mdl, err := model.NewMLP(trainSet.Rows*trainSet.Cols, cfg.HiddenDims, numClasses, rand.NewPCG(seed, seed))
	if err != nil {
		return metrics.Eval{}, err
	}
	if cfg.InitFrom != "" {
		from, err := model.LoadFile(cfg.InitFrom, mdl)
		if err != nil {
			return metrics.Eval{}, errors.Wrap(err, "init model")
		}
		log.Printf("run=%s init_from=%s source_run=%s", runID, cfg.InitFrom, from)
	}
	opt := model.NewSGD(mdl.Params(), model.SGDOptions{
		LR:          cfg.LearningRate,
		Momentum:    cfg.Momentum,
		Dampening:   cfg.Dampening,
		WeightDecay: cfg.WeightDecay,
		Nesterov:    cfg.Nesterov,
	})

	log.Printf("run=%s train=%d test=%d params=%d hidden=%v", runID, trainSet.Len(), cfg.Test.Dataset().Len(), countParams(mdl), cfg.HiddenDims)

	tr := &Trainer{Model: mdl, Opt: opt, Out: cfg.Out, LogEvery: cfg.LogEvery, RunID: runID}
	var last metrics.Eval
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		if err := tr.TrainEpoch(ctx, cfg.Train, epoch); err != nil {
			return last, errors.Wrapf(err, "train epoch %d", epoch)
		}
		last, err = Evaluate(ctx, mdl, cfg.Test, cfg.Out)
		if err != nil {
			return last, errors.Wrapf(err, "evaluate epoch %d", epoch)
		}
	}

	if cfg.Checkpoint != "" {
		if err := model.SaveFile(cfg.Checkpoint, mdl, runID); err != nil {
			return last, err
		}
		log.Printf("run=%s checkpoint=%s", runID, cfg.Checkpoint)
	}
	return last, nil
}

// Trainer owns the model and optimizer of one run.
type Trainer struct {
	Model    *model.MLP
	Opt      *model.SGD
	Out      io.Writer
	LogEvery int
	RunID    string

	window metrics.Window
}

// TrainEpoch makes one pass over loader, applying one optimizer step per
// batch. A progress line is written every LogEvery batches, starting with
// the first.
func (t *Trainer) TrainEpoch(ctx context.Context, loader *dataset.Loader, epoch int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	total := loader.Dataset().Len()
	numBatches := loader.Len()
	batches, errs := loader.Stream(ctx)

	batchIdx := 0
	startData := time.Now()
	for raw := range batches {
		dataTime := time.Since(startData)

		startCompute := time.Now()
		batch, err := flatten(raw)
		if err != nil {
			return err
		}
		loss, err := t.step(batch)
		if err != nil {
			return errors.Wrapf(err, "batch %d", batchIdx)
		}
		t.window.Record(batch.Len(), dataTime, time.Since(startCompute), loss)

		if batchIdx%t.LogEvery == 0 {
			fmt.Fprintf(t.Out, "Train Epoch: %d [%d/%d (%.0f%%)]\tLoss: %.6f\n",
				epoch,
				batchIdx*batch.Len(),
				total,
				100*float64(batchIdx)/float64(numBatches),
				loss,
			)
			snap := t.window.Snapshot()
			log.Printf("run=%s epoch=%d batch=%d images_per_sec=%.1f data_ms=%.2f compute_ms=%.2f",
				t.RunID, epoch, batchIdx, snap.ImagesPerSec, snap.AvgDataMS, snap.AvgComputeMS)
		}
		batchIdx++
		startData = time.Now()
	}
	return <-errs
}

func (t *Trainer) step(batch model.Batch) (float64, error) {
	t.Opt.ZeroGrad()
	pass, err := t.Model.Record(batch.Inputs)
	if err != nil {
		return 0, err
	}
	loss, grad, err := model.CrossEntropy(pass.Output(), batch.Labels)
	if err != nil {
		return 0, err
	}
	t.Model.Backward(pass, grad)
	t.Opt.Step()
	return loss, nil
}

// Evaluate runs inference over loader once. The reported average loss is
// the sum of per-batch mean losses divided by the dataset size.
func Evaluate(ctx context.Context, m model.Classifier, loader *dataset.Loader, out io.Writer) (metrics.Eval, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ev metrics.Eval
	batches, errs := loader.Stream(ctx)
	for raw := range batches {
		batch, err := flatten(raw)
		if err != nil {
			return ev, err
		}
		scores, err := m.Forward(batch.Inputs)
		if err != nil {
			return ev, err
		}
		loss, err := model.CrossEntropyLoss(scores, batch.Labels)
		if err != nil {
			return ev, err
		}
		correct := 0
		for i, p := range model.Predict(scores) {
			if p == batch.Labels[i] {
				correct++
			}
		}
		ev.Add(loss, correct, batch.Len())
	}
	if err := <-errs; err != nil {
		return ev, err
	}
	// Normalize by the dataset size rather than the visited count.
	ev.Total = loader.Dataset().Len()

	if out != nil {
		fmt.Fprintf(out, "\nTest set: Average loss: %.4f, Accuracy: %d/%d (%.0f%%)\n\n",
			ev.AvgLoss(), ev.Correct, ev.Total, 100*ev.Accuracy())
	}
	return ev, nil
}

// flatten turns a batch of images into one feature row per image.
func flatten(b dataset.Batch) (model.Batch, error) {
	if b.Len() == 0 {
		return model.Batch{}, errors.New("flatten: empty batch")
	}
	width := b.Images[0].Rows * b.Images[0].Cols
	data := make([]float64, 0, b.Len()*width)
	for i, img := range b.Images {
		if img.Rows*img.Cols != width || len(img.Pix) != width {
			return model.Batch{}, errors.Wrapf(model.ErrShapeMismatch, "flatten: image %d is %dx%d, want %d pixels", i, img.Rows, img.Cols, width)
		}
		data = append(data, img.Pix...)
	}
	return model.Batch{
		Inputs: mat.NewDense(b.Len(), width, data),
		Labels: b.Labels,
	}, nil
}

func countParams(m *model.MLP) int {
	n := 0
	for _, p := range m.Params() {
		r, c := p.Value.Dims()
		n += r * c
	}
	return n
}
