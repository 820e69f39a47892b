// Package autograd implements reverse-mode differentiation over scalar
// expression graphs.
package autograd

import (
	"fmt"
	"math"
)

// Value is a node in an expression graph. Every operation returns a new node
// that remembers its operands, so reassigning a variable never loses history.
type Value struct {
	Data float64
	Grad float64

	prev     []*Value
	backward func()
}

// New returns a leaf node.
func New(data float64) *Value {
	return &Value{Data: data}
}

func (v *Value) String() string {
	return fmt.Sprintf("Value(data=%.4f, grad=%.4f)", v.Data, v.Grad)
}

func (v *Value) Add(o *Value) *Value {
	out := &Value{Data: v.Data + o.Data, prev: []*Value{v, o}}
	out.backward = func() {
		v.Grad += out.Grad
		o.Grad += out.Grad
	}
	return out
}

func (v *Value) Mul(o *Value) *Value {
	out := &Value{Data: v.Data * o.Data, prev: []*Value{v, o}}
	out.backward = func() {
		v.Grad += o.Data * out.Grad
		o.Grad += v.Data * out.Grad
	}
	return out
}

// Pow raises v to a constant exponent.
func (v *Value) Pow(p float64) *Value {
	out := &Value{Data: math.Pow(v.Data, p), prev: []*Value{v}}
	out.backward = func() {
		v.Grad += p * math.Pow(v.Data, p-1) * out.Grad
	}
	return out
}

func (v *Value) ReLU() *Value {
	out := &Value{Data: math.Max(v.Data, 0), prev: []*Value{v}}
	out.backward = func() {
		if out.Data > 0 {
			v.Grad += out.Grad
		}
	}
	return out
}

func (v *Value) Neg() *Value         { return v.MulC(-1) }
func (v *Value) Sub(o *Value) *Value { return v.Add(o.Neg()) }
func (v *Value) Div(o *Value) *Value { return v.Mul(o.Pow(-1)) }

// AddC, MulC and DivC combine v with a constant.
func (v *Value) AddC(c float64) *Value { return v.Add(New(c)) }
func (v *Value) MulC(c float64) *Value { return v.Mul(New(c)) }
func (v *Value) DivC(c float64) *Value { return v.Div(New(c)) }

// Backward sets v.Grad to 1 and propagates gradients to every node reachable
// from v in reverse topological order. Gradients accumulate; call ZeroGrad on
// the leaves between passes.
func (v *Value) Backward() {
	var topo []*Value
	visited := make(map[*Value]bool)
	var build func(n *Value)
	build = func(n *Value) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, p := range n.prev {
			build(p)
		}
		topo = append(topo, n)
	}
	build(v)

	v.Grad = 1
	for i := len(topo) - 1; i >= 0; i-- {
		if topo[i].backward != nil {
			topo[i].backward()
		}
	}
}

func (v *Value) ZeroGrad() { v.Grad = 0 }
