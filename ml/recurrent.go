package ml

import (
	"math/rand/v2"
)

// RNNCell is a simple recurrent layer unrolled over a fixed number of steps.
// Its input is a T×X matrix whose rows are the time steps; its output is the
// T×Y matrix of per-step outputs:
//
//	z_t = Wx·x_t + Wh·h_{t-1}
//	h_t = act(z_t)
//	y_t = Wy·h_t
//
// with h_{-1} = 0. Weights are drawn from [-1, 1) and the activation
// defaults to Tanh.
type RNNCell struct {
	Wx, Wh, Wy *Matrix
	Act        Activation

	steps            int
	optX, optH, optY Optimizer

	xs, zs, hs []*Matrix
}

func NewRNNCell(steps, inputs, hidden, outputs int, opt OptimizerFactory, rng *rand.Rand, opts ...LayerOption) *RNNCell {
	cfg := newLayerConfig(1, Tanh, opts)
	return &RNNCell{
		Wx:    newParam(hidden, inputs, cfg, rng),
		Wh:    newParam(hidden, hidden, cfg, rng),
		Wy:    newParam(outputs, hidden, cfg, rng),
		Act:   cfg.Activation,
		steps: steps,
		optX:  opt.Init(hidden, inputs),
		optH:  opt.Init(hidden, hidden),
		optY:  opt.Init(outputs, hidden),
		xs:    make([]*Matrix, steps),
		zs:    make([]*Matrix, steps),
		hs:    make([]*Matrix, steps),
	}
}

func (l *RNNCell) InShape() Shape  { return Shape{l.steps, l.Wx.cols} }
func (l *RNNCell) OutShape() Shape { return Shape{l.steps, l.Wy.rows} }

func (l *RNNCell) Forward(x *Matrix) *Matrix {
	mustShape("RNNCell input", x, l.steps, l.Wx.cols)
	out := NewMatrix(l.steps, l.Wy.rows)
	for t := 0; t < l.steps; t++ {
		xt := x.Row(t)
		z := MatMul(l.Wx, xt)
		if t > 0 {
			z.Add(MatMul(l.Wh, l.hs[t-1]))
		}
		h := l.Act.Func(z)

		l.xs[t], l.zs[t], l.hs[t] = xt, z, h
		out.SetRow(t, MatMul(l.Wy, h))
	}
	return out
}

// Backward runs back-propagation through time from the last step to the
// first. Weight gradients are summed over all steps and each weight tensor
// is updated once.
func (l *RNNCell) Backward(g *Matrix) *Matrix {
	mustShape("RNNCell gradient", g, l.steps, l.Wy.rows)
	dWx := NewMatrix(l.Wx.rows, l.Wx.cols)
	dWh := NewMatrix(l.Wh.rows, l.Wh.cols)
	dWy := NewMatrix(l.Wy.rows, l.Wy.cols)
	dx := NewMatrix(l.steps, l.Wx.cols)

	carry := NewVector(l.Wh.rows)
	for t := l.steps - 1; t >= 0; t-- {
		gy := g.Row(t)
		dWy.Add(MatMulT(gy, l.hs[t]))

		dh := TMatMul(l.Wy, gy)
		dh.Add(carry)
		gt := l.Act.Backward(l.zs[t], dh)

		dWx.Add(MatMulT(gt, l.xs[t]))
		if t > 0 {
			dWh.Add(MatMulT(gt, l.hs[t-1]))
		}
		dx.SetRow(t, TMatMul(l.Wx, gt))
		carry = TMatMul(l.Wh, gt)
	}

	l.optX.UpdateParam(l.Wx, dWx)
	l.optH.UpdateParam(l.Wh, dWh)
	l.optY.UpdateParam(l.Wy, dWy)
	return dx
}
