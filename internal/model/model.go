package model

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch reports an input whose width does not match a layer.
var ErrShapeMismatch = errors.New("model: shape mismatch")

// Batch is a flattened minibatch: one row of features per sample.
type Batch struct {
	Inputs *mat.Dense
	Labels []int
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int {
	return len(b.Labels)
}

// Classifier maps a batch of feature rows to one score row per sample.
type Classifier interface {
	Forward(x *mat.Dense) (*mat.Dense, error)
}

// Param is a trainable matrix together with its accumulated gradient.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(rows, cols int) *Param {
	return &Param{
		Value: mat.NewDense(rows, cols, nil),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// Layer is one stage of a feed-forward stack.
//
// Backward receives the stage's input and output from the forward pass and
// the gradient of the loss w.r.t. that output. It accumulates parameter
// gradients and returns the gradient w.r.t. the input.
type Layer interface {
	Forward(x *mat.Dense) (*mat.Dense, error)
	Backward(in, out, gradOut *mat.Dense) *mat.Dense
	Params() []*Param
}
