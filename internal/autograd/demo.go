package autograd

import (
	"fmt"
	"io"
	"math/rand/v2"
)

// Expression builds the reference expression over a=-4 and b=2 and returns
// the two inputs and the result g.
func Expression() (a, b, g *Value) {
	a = New(-4)
	b = New(2)
	c := a.Add(b)
	d := a.Mul(b).Add(b.Pow(3))
	c = c.Add(c.AddC(1))
	c = c.Add(New(1).Add(c).Add(a.Neg()))
	d = d.Add(d.MulC(2).Add(b.Add(a).ReLU()))
	d = d.Add(d.MulC(3).Add(b.Sub(a).ReLU()))
	e := c.Sub(d)
	f := e.Pow(2)
	g = f.DivC(2)
	g = g.Add(New(10).Div(f))
	return a, b, g
}

// RegressOptions configures the single-sample regression demo.
type RegressOptions struct {
	Input    []float64
	Target   float64
	Hidden   []int
	Epochs   int
	LR       float64
	LogEvery int
	Seed     uint64
}

// DefaultRegressOptions fits a 3-4-4-1 network to map [2,3,-1] onto 3.
func DefaultRegressOptions() RegressOptions {
	return RegressOptions{
		Input:    []float64{2, 3, -1},
		Target:   3,
		Hidden:   []int{4, 4},
		Epochs:   100,
		LR:       DefaultLR,
		LogEvery: 10,
		Seed:     40,
	}
}

// Regress trains on one sample with loss 0.5*(y-target)^2 and returns the
// loss before each step. Every LogEvery epochs the prediction is written to w.
func Regress(w io.Writer, opts RegressOptions) ([]float64, error) {
	if opts.LogEvery <= 0 {
		opts.LogEvery = 10
	}
	src := rand.NewPCG(opts.Seed, opts.Seed)
	m, err := NewMLP(len(opts.Input), append(append([]int(nil), opts.Hidden...), 1), src)
	if err != nil {
		return nil, err
	}
	x := Values(opts.Input...)
	losses := make([]float64, 0, opts.Epochs)
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		out, err := m.Forward(x)
		if err != nil {
			return losses, err
		}
		y := out[0]
		if w != nil && epoch%opts.LogEvery == 0 {
			fmt.Fprintf(w, "epoch = %d, y = %.4f\n", epoch/opts.LogEvery, y.Data)
		}
		loss := y.AddC(-opts.Target).Pow(2).MulC(0.5)
		losses = append(losses, loss.Data)
		ZeroGrad(m)
		loss.Backward()
		Step(m, opts.LR)
	}
	return losses, nil
}
