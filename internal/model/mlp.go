package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MLP is a stack of Linear layers with a ReLU after every layer but the last.
type MLP struct {
	InputDim  int
	OutputDim int
	Layers    []Layer
}

// NewMLP builds input -> hidden[0] -> ... -> hidden[n-1] -> output.
func NewMLP(inputDim int, hiddenDims []int, outputDim int, src rand.Source) (*MLP, error) {
	if inputDim <= 0 || outputDim <= 0 {
		return nil, errors.Errorf("mlp: input and output widths must be > 0 (got %d, %d)", inputDim, outputDim)
	}
	if len(hiddenDims) == 0 {
		return nil, errors.New("mlp: at least one hidden width is required")
	}
	widths := make([]int, 0, len(hiddenDims)+2)
	widths = append(widths, inputDim)
	for i, h := range hiddenDims {
		if h <= 0 {
			return nil, errors.Errorf("mlp: hidden width %d must be > 0 (got %d)", i, h)
		}
		widths = append(widths, h)
	}
	widths = append(widths, outputDim)

	m := &MLP{InputDim: inputDim, OutputDim: outputDim}
	for i := 0; i+1 < len(widths); i++ {
		lin := NewLinear(widths[i], widths[i+1], src)
		idx := len(m.Layers)
		lin.Weight.Name = fmt.Sprintf("layers.%d.weight", idx)
		lin.Bias.Name = fmt.Sprintf("layers.%d.bias", idx)
		m.Layers = append(m.Layers, lin)
		if i+2 < len(widths) {
			m.Layers = append(m.Layers, ReLU{})
		}
	}
	return m, nil
}

// Forward runs inference without keeping intermediate activations.
func (m *MLP) Forward(x *mat.Dense) (*mat.Dense, error) {
	if err := m.checkInput(x); err != nil {
		return nil, err
	}
	out := x
	for i, layer := range m.Layers {
		next, err := layer.Forward(out)
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d", i)
		}
		out = next
	}
	return out, nil
}

// Pass holds the activations of one recorded forward pass. acts[0] is the
// input and acts[i+1] the output of layer i.
type Pass struct {
	acts []*mat.Dense
}

// Output returns the final activation of the pass.
func (p *Pass) Output() *mat.Dense {
	return p.acts[len(p.acts)-1]
}

// Record runs the forward pass and keeps every activation for Backward.
func (m *MLP) Record(x *mat.Dense) (*Pass, error) {
	if err := m.checkInput(x); err != nil {
		return nil, err
	}
	p := &Pass{acts: make([]*mat.Dense, 0, len(m.Layers)+1)}
	p.acts = append(p.acts, x)
	for i, layer := range m.Layers {
		next, err := layer.Forward(p.Output())
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d", i)
		}
		p.acts = append(p.acts, next)
	}
	return p, nil
}

// Backward propagates gradOut (d loss / d output) through the recorded pass
// and accumulates into each parameter's Grad.
func (m *MLP) Backward(p *Pass, gradOut *mat.Dense) {
	g := gradOut
	for i := len(m.Layers) - 1; i >= 0; i-- {
		g = m.Layers[i].Backward(p.acts[i], p.acts[i+1], g)
	}
}

// Params lists the trainable parameters in layer order.
func (m *MLP) Params() []*Param {
	var params []*Param
	for _, layer := range m.Layers {
		params = append(params, layer.Params()...)
	}
	return params
}

func (m *MLP) checkInput(x *mat.Dense) error {
	if x == nil || x.IsEmpty() {
		return errors.Wrap(ErrShapeMismatch, "mlp: empty input")
	}
	if _, cols := x.Dims(); cols != m.InputDim {
		return errors.Wrapf(ErrShapeMismatch, "mlp: input width %d, want %d", cols, m.InputDim)
	}
	return nil
}
