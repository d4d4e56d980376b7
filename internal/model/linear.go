package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Linear is a fully connected layer y = x·Wᵀ + b with W stored [out, in].
type Linear struct {
	in, out int
	weight  *Param
	bias    *Param
	w, dw   *mat.Dense

	x *mat.Dense
}

func newLinear(name string, in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		in:     in,
		out:    out,
		weight: newParam(name+".weight", out, in),
		bias:   newParam(name+".bias", out),
	}
	l.w = mat.NewDense(out, in, l.weight.Value)
	l.dw = mat.NewDense(out, in, l.weight.Grad)

	bound := 1 / math.Sqrt(float64(in))
	for i := range l.weight.Value {
		l.weight.Value[i] = (rng.Float64()*2 - 1) * bound
	}
	for i := range l.bias.Value {
		l.bias.Value[i] = (rng.Float64()*2 - 1) * bound
	}
	return l
}

// forward computes x·Wᵀ + b. Only keep records x for backward; without it
// the layer is read-only, so eval passes may run concurrently.
func (l *Linear) forward(x *mat.Dense, keep bool) *mat.Dense {
	n, _ := x.Dims()
	y := mat.NewDense(n, l.out, nil)
	y.Mul(x, l.w.T())
	for i := 0; i < n; i++ {
		floats.Add(y.RawRowView(i), l.bias.Value)
	}
	if keep {
		l.x = x
	}
	return y
}

// backward accumulates parameter gradients and returns dL/dx.
func (l *Linear) backward(dy *mat.Dense) *mat.Dense {
	n, _ := dy.Dims()

	var dw mat.Dense
	dw.Mul(dy.T(), l.x)
	l.dw.Add(l.dw, &dw)

	for i := 0; i < n; i++ {
		floats.Add(l.bias.Grad, dy.RawRowView(i))
	}

	dx := mat.NewDense(n, l.in, nil)
	dx.Mul(dy, l.w)
	return dx
}
