package model

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CrossEntropy returns the mean softmax cross-entropy of logits against the
// integer labels, and the gradient of that mean w.r.t. the logits.
func CrossEntropy(logits *mat.Dense, labels []int) (float64, *mat.Dense, error) {
	rows, cols := logits.Dims()
	grad := mat.NewDense(rows, cols, nil)
	loss, err := crossEntropy(logits, labels, grad)
	if err != nil {
		return 0, nil, err
	}
	return loss, grad, nil
}

// CrossEntropyLoss is CrossEntropy without the gradient.
func CrossEntropyLoss(logits *mat.Dense, labels []int) (float64, error) {
	return crossEntropy(logits, labels, nil)
}

func crossEntropy(logits *mat.Dense, labels []int, grad *mat.Dense) (float64, error) {
	rows, cols := logits.Dims()
	if len(labels) != rows {
		return 0, errors.Wrapf(ErrShapeMismatch, "cross entropy: %d labels for %d rows", len(labels), rows)
	}
	scale := 1 / float64(rows)
	total := 0.0
	for i := 0; i < rows; i++ {
		label := labels[i]
		if label < 0 || label >= cols {
			return 0, errors.Errorf("cross entropy: label %d out of range [0,%d)", label, cols)
		}
		row := logits.RawRowView(i)
		lse := floats.LogSumExp(row)
		total += lse - row[label]
		if grad != nil {
			g := grad.RawRowView(i)
			for j, v := range row {
				g[j] = math.Exp(v-lse) * scale
			}
			g[label] -= scale
		}
	}
	return total * scale, nil
}

// Predict returns the index of the highest score in each row.
func Predict(scores *mat.Dense) []int {
	rows, _ := scores.Dims()
	out := make([]int, rows)
	for i := range out {
		out[i] = floats.MaxIdx(scores.RawRowView(i))
	}
	return out
}
