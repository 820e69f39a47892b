// Package matvec demonstrates a float32 matrix-vector product.
package matvec

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Product multiplies [[1,2],[2,4]] by [1,2] and returns the operands and the
// result.
func Product() (a, b, c *tensor.Dense, err error) {
	a = tensor.New(tensor.WithShape(2, 2), tensor.WithBacking([]float32{1, 2, 2, 4}))
	b = tensor.New(tensor.WithShape(2), tensor.WithBacking([]float32{1, 2}))

	res, err := tensor.MatVecMul(a, b)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "matvec")
	}
	c, ok := res.(*tensor.Dense)
	if !ok {
		return nil, nil, nil, errors.Errorf("matvec: unexpected result type %T", res)
	}
	return a, b, c, nil
}

// Run prints each operand and the result followed by its element type.
func Run(w io.Writer) error {
	a, b, c, err := Product()
	if err != nil {
		return err
	}
	for _, t := range []*tensor.Dense{a, b, c} {
		if _, err := fmt.Fprintf(w, "%v %v\n", t, t.Dtype()); err != nil {
			return err
		}
	}
	return nil
}
