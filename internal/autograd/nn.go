package autograd

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultLR is the step size used by the demo.
const DefaultLR = 1e-3

// Module is anything that owns trainable parameters.
type Module interface {
	Parameters() []*Value
}

// ZeroGrad clears the gradient of every parameter of m.
func ZeroGrad(m Module) {
	for _, p := range m.Parameters() {
		p.ZeroGrad()
	}
}

// Step moves every parameter of m against its gradient.
func Step(m Module, lr float64) {
	for _, p := range m.Parameters() {
		p.Data -= lr * p.Grad
	}
}

// Neuron computes w·x + b, optionally followed by ReLU.
type Neuron struct {
	W      []*Value
	B      *Value
	Nonlin bool
}

func NewNeuron(nin int, nonlin bool, src rand.Source) *Neuron {
	dist := distuv.Uniform{Min: -1, Max: 1, Src: src}
	w := make([]*Value, nin)
	for i := range w {
		w[i] = New(dist.Rand())
	}
	return &Neuron{W: w, B: New(0), Nonlin: nonlin}
}

func (n *Neuron) Forward(x []*Value) (*Value, error) {
	if len(x) != len(n.W) {
		return nil, errors.Errorf("neuron: got %d inputs, want %d", len(x), len(n.W))
	}
	out := n.B
	for i, w := range n.W {
		out = out.Add(w.Mul(x[i]))
	}
	if n.Nonlin {
		out = out.ReLU()
	}
	return out, nil
}

func (n *Neuron) Parameters() []*Value {
	return append(append([]*Value(nil), n.W...), n.B)
}

// Layer is a set of neurons sharing the same input.
type Layer struct {
	Neurons []*Neuron
}

func NewLayer(nin, nout int, nonlin bool, src rand.Source) *Layer {
	l := &Layer{Neurons: make([]*Neuron, nout)}
	for i := range l.Neurons {
		l.Neurons[i] = NewNeuron(nin, nonlin, src)
	}
	return l
}

func (l *Layer) Forward(x []*Value) ([]*Value, error) {
	out := make([]*Value, len(l.Neurons))
	for i, n := range l.Neurons {
		v, err := n.Forward(x)
		if err != nil {
			return nil, errors.Wrapf(err, "neuron %d", i)
		}
		out[i] = v
	}
	return out, nil
}

func (l *Layer) Parameters() []*Value {
	var ps []*Value
	for _, n := range l.Neurons {
		ps = append(ps, n.Parameters()...)
	}
	return ps
}

// MLP stacks layers; every layer but the last applies ReLU.
type MLP struct {
	Layers []*Layer
}

func NewMLP(nin int, nouts []int, src rand.Source) (*MLP, error) {
	if nin <= 0 || len(nouts) == 0 {
		return nil, errors.Errorf("mlp: invalid sizes nin=%d nouts=%v", nin, nouts)
	}
	m := &MLP{}
	in := nin
	for i, out := range nouts {
		if out <= 0 {
			return nil, errors.Errorf("mlp: layer %d has width %d", i, out)
		}
		m.Layers = append(m.Layers, NewLayer(in, out, i != len(nouts)-1, src))
		in = out
	}
	return m, nil
}

func (m *MLP) Forward(x []*Value) ([]*Value, error) {
	out := x
	for i, l := range m.Layers {
		var err error
		if out, err = l.Forward(out); err != nil {
			return nil, errors.Wrapf(err, "layer %d", i)
		}
	}
	return out, nil
}

func (m *MLP) Parameters() []*Value {
	var ps []*Value
	for _, l := range m.Layers {
		ps = append(ps, l.Parameters()...)
	}
	return ps
}

// Values wraps each float as a leaf node.
func Values(xs ...float64) []*Value {
	out := make([]*Value, len(xs))
	for i, x := range xs {
		out[i] = New(x)
	}
	return out
}
