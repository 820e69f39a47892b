package model

import "gonum.org/v1/gonum/mat"

// SGDOptions mirrors the usual stochastic gradient descent knobs.
type SGDOptions struct {
	LR          float64
	Momentum    float64
	Dampening   float64
	WeightDecay float64
	Nesterov    bool
}

// SGD applies stochastic gradient descent with optional momentum.
type SGD struct {
	opts   SGDOptions
	params []*Param
	bufs   []*mat.Dense
}

// NewSGD creates an optimizer over params.
func NewSGD(params []*Param, opts SGDOptions) *SGD {
	return &SGD{
		opts:   opts,
		params: params,
		bufs:   make([]*mat.Dense, len(params)),
	}
}

// ZeroGrad clears every parameter gradient.
func (o *SGD) ZeroGrad() {
	for _, p := range o.params {
		p.Grad.Zero()
	}
}

// Step updates every parameter from its gradient:
//
//	d = g + wd*p
//	buf = momentum*buf + (1-dampening)*d   (buf = d on the first step)
//	p -= lr * (nesterov ? d + momentum*buf : buf)
func (o *SGD) Step() {
	for i, p := range o.params {
		d := mat.DenseCopyOf(p.Grad)
		if o.opts.WeightDecay != 0 {
			var wd mat.Dense
			wd.Scale(o.opts.WeightDecay, p.Value)
			d.Add(d, &wd)
		}
		if o.opts.Momentum != 0 {
			buf := o.bufs[i]
			if buf == nil {
				buf = mat.DenseCopyOf(d)
				o.bufs[i] = buf
			} else {
				var damp mat.Dense
				damp.Scale(1-o.opts.Dampening, d)
				buf.Scale(o.opts.Momentum, buf)
				buf.Add(buf, &damp)
			}
			if o.opts.Nesterov {
				var nb mat.Dense
				nb.Scale(o.opts.Momentum, buf)
				d.Add(d, &nb)
			} else {
				d.Copy(buf)
			}
		}
		d.Scale(o.opts.LR, d)
		p.Value.Sub(p.Value, d)
	}
}
