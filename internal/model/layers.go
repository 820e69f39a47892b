package model

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Linear computes y = x·Wᵀ + b with W shaped (Out, In).
type Linear struct {
	In, Out int
	Weight  *Param
	Bias    *Param
}

// NewLinear draws weights and bias uniformly from ±1/sqrt(in).
func NewLinear(in, out int, src rand.Source) *Linear {
	l := &Linear{
		In:     in,
		Out:    out,
		Weight: newParam(out, in),
		Bias:   newParam(1, out),
	}
	bound := 1 / math.Sqrt(float64(in))
	dist := distuv.Uniform{Min: -bound, Max: bound, Src: src}
	fill(l.Weight.Value, dist)
	fill(l.Bias.Value, dist)
	return l
}

func fill(m *mat.Dense, dist distuv.Uniform) {
	data := m.RawMatrix().Data
	for i := range data {
		data[i] = dist.Rand()
	}
}

func (l *Linear) Forward(x *mat.Dense) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if cols != l.In {
		return nil, errors.Wrapf(ErrShapeMismatch, "linear %d->%d got %d input columns", l.In, l.Out, cols)
	}
	y := mat.NewDense(rows, l.Out, nil)
	y.Mul(x, l.Weight.Value.T())
	bias := l.Bias.Value.RawRowView(0)
	for i := 0; i < rows; i++ {
		floats.Add(y.RawRowView(i), bias)
	}
	return y, nil
}

func (l *Linear) Backward(in, _, gradOut *mat.Dense) *mat.Dense {
	var gw mat.Dense
	gw.Mul(gradOut.T(), in)
	l.Weight.Grad.Add(l.Weight.Grad, &gw)

	rows, _ := gradOut.Dims()
	gb := l.Bias.Grad.RawRowView(0)
	for i := 0; i < rows; i++ {
		floats.Add(gb, gradOut.RawRowView(i))
	}

	gradIn := mat.NewDense(rows, l.In, nil)
	gradIn.Mul(gradOut, l.Weight.Value)
	return gradIn
}

func (l *Linear) Params() []*Param {
	return []*Param{l.Weight, l.Bias}
}

// ReLU clamps negative activations to zero.
type ReLU struct{}

func (ReLU) Forward(x *mat.Dense) (*mat.Dense, error) {
	rows, cols := x.Dims()
	y := mat.NewDense(rows, cols, nil)
	y.Apply(func(_, _ int, v float64) float64 {
		if v > 0 {
			return v
		}
		return 0
	}, x)
	return y, nil
}

func (ReLU) Backward(in, _, gradOut *mat.Dense) *mat.Dense {
	rows, cols := gradOut.Dims()
	g := mat.NewDense(rows, cols, nil)
	g.Apply(func(i, j int, v float64) float64 {
		if in.At(i, j) > 0 {
			return v
		}
		return 0
	}, gradOut)
	return g
}

func (ReLU) Params() []*Param {
	return nil
}
