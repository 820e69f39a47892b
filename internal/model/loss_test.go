package model

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestCrossEntropyUniformLogits(t *testing.T) {
	logits := mat.NewDense(2, 10, nil)
	loss, grad, err := CrossEntropy(logits, []int{3, 7})
	if err != nil {
		t.Fatalf("CrossEntropy: %v", err)
	}
	if math.Abs(loss-math.Log(10)) > 1e-12 {
		t.Fatalf("loss=%f want ln(10)", loss)
	}
	if got := grad.At(0, 3); math.Abs(got-(0.1-1)/2) > 1e-12 {
		t.Fatalf("grad at label=%f", got)
	}
	if got := grad.At(1, 0); math.Abs(got-0.05) > 1e-12 {
		t.Fatalf("grad off label=%f", got)
	}
}

func TestCrossEntropyStableForLargeLogits(t *testing.T) {
	logits := mat.NewDense(1, 3, []float64{1000, 0, -1000})
	loss, err := CrossEntropyLoss(logits, []int{0})
	if err != nil {
		t.Fatalf("CrossEntropyLoss: %v", err)
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) || loss > 1e-9 {
		t.Fatalf("unexpected loss %g", loss)
	}
}

func TestCrossEntropyRejectsBadLabels(t *testing.T) {
	logits := mat.NewDense(2, 3, nil)
	if _, err := CrossEntropyLoss(logits, []int{0}); err == nil {
		t.Fatal("expected label count error")
	}
	if _, err := CrossEntropyLoss(logits, []int{0, 3}); err == nil {
		t.Fatal("expected label range error")
	}
}

func TestPredict(t *testing.T) {
	scores := mat.NewDense(2, 3, []float64{
		0.1, 0.7, 0.2,
		2, -1, 1,
	})
	got := Predict(scores)
	if got[0] != 1 || got[1] != 0 {
		t.Fatalf("Predict=%v", got)
	}
}

func TestSGDMomentum(t *testing.T) {
	p := newParam(1, 1)
	p.Value.Set(0, 0, 1)
	opt := NewSGD([]*Param{p}, SGDOptions{LR: 0.1, Momentum: 0.5})

	for _, want := range []float64{0.9, 0.75} {
		opt.ZeroGrad()
		p.Grad.Set(0, 0, 1)
		opt.Step()
		if got := p.Value.At(0, 0); math.Abs(got-want) > 1e-12 {
			t.Fatalf("value=%f want %f", got, want)
		}
	}
}

func TestSGDOptions(t *testing.T) {
	cases := []struct {
		name string
		opts SGDOptions
		want []float64
	}{
		// d = g + wd*p with no momentum buffer.
		{"weight decay", SGDOptions{LR: 0.1, WeightDecay: 0.5}, []float64{0.85, 0.7075}},
		// buf = 0.5*1 + (1-0.5)*1 stays at 1 after the first step.
		{"dampening", SGDOptions{LR: 0.1, Momentum: 0.5, Dampening: 0.5}, []float64{0.9, 0.8}},
		// step uses d + momentum*buf: 1.5 then 1.75.
		{"nesterov", SGDOptions{LR: 0.1, Momentum: 0.5, Nesterov: true}, []float64{0.85, 0.675}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newParam(1, 1)
			p.Value.Set(0, 0, 1)
			opt := NewSGD([]*Param{p}, tc.opts)
			for i, want := range tc.want {
				opt.ZeroGrad()
				p.Grad.Set(0, 0, 1)
				opt.Step()
				if got := p.Value.At(0, 0); math.Abs(got-want) > 1e-12 {
					t.Fatalf("step %d: value=%f want %f", i, got, want)
				}
			}
		})
	}
}

func TestSGDZeroGrad(t *testing.T) {
	p := newParam(2, 2)
	p.Grad.Set(1, 1, 3)
	NewSGD([]*Param{p}, SGDOptions{LR: 1}).ZeroGrad()
	if p.Grad.At(1, 1) != 0 {
		t.Fatal("gradient not cleared")
	}
}
