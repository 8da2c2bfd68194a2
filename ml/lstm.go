package ml

import (
	"math/rand/v2"
)

// LSTM is a long short-term memory layer unrolled over a fixed number of
// steps. Input rows are time steps (T×X) and the output holds the hidden
// state of every step (T×H). Each gate sees v_t = [h_{t-1}; x_t]:
//
//	f_t = σ(Wf·v_t + bf)    i_t = σ(Wi·v_t + bi)    o_t = σ(Wo·v_t + bo)
//	c̄_t = cand(Wc·v_t + bc)
//	c_t = f_t⊙c_{t-1} + i_t⊙c̄_t
//	h_t = o_t⊙tanh(c_t)
//
// The candidate activation defaults to Tanh; WithCandidateActivation(Sigmoid)
// gives the variant where every gate is a sigmoid.
type LSTM struct {
	Wf, Wi, Wc, Wo *Matrix
	Bf, Bi, Bc, Bo *Matrix
	Candidate      Activation

	steps, hidden int
	opts          [8]Optimizer

	cache []lstmStep
}

type lstmStep struct {
	v              *Matrix
	zf, zi, zc, zo *Matrix
	f, i, cand, o  *Matrix
	cPrev, c       *Matrix
	tanhC          *Matrix
}

func NewLSTM(steps, inputs, hidden int, opt OptimizerFactory, rng *rand.Rand, opts ...LayerOption) *LSTM {
	cfg := newLayerConfig(0.5, Sigmoid, opts)
	width := hidden + inputs
	l := &LSTM{
		Wf: newParam(hidden, width, cfg, rng), Bf: newParam(hidden, 1, cfg, rng),
		Wi: newParam(hidden, width, cfg, rng), Bi: newParam(hidden, 1, cfg, rng),
		Wc: newParam(hidden, width, cfg, rng), Bc: newParam(hidden, 1, cfg, rng),
		Wo: newParam(hidden, width, cfg, rng), Bo: newParam(hidden, 1, cfg, rng),
		Candidate: cfg.Candidate,
		steps:     steps,
		hidden:    hidden,
		cache:     make([]lstmStep, steps),
	}
	for k := 0; k < 4; k++ {
		l.opts[2*k] = opt.Init(hidden, width)
		l.opts[2*k+1] = opt.Init(hidden, 1)
	}
	return l
}

func (l *LSTM) InShape() Shape  { return Shape{l.steps, l.Wf.cols - l.hidden} }
func (l *LSTM) OutShape() Shape { return Shape{l.steps, l.hidden} }

func (l *LSTM) params() [8]*Matrix {
	return [8]*Matrix{l.Wf, l.Bf, l.Wi, l.Bi, l.Wc, l.Bc, l.Wo, l.Bo}
}

func gate(w, b, v *Matrix) *Matrix {
	z := MatMul(w, v)
	z.Add(b)
	return z
}

func (l *LSTM) Forward(x *Matrix) *Matrix {
	in := l.Wf.cols - l.hidden
	mustShape("LSTM input", x, l.steps, in)

	out := NewMatrix(l.steps, l.hidden)
	h, c := NewVector(l.hidden), NewVector(l.hidden)
	for t := 0; t < l.steps; t++ {
		v := NewVector(l.hidden + in)
		copy(v.data, h.data)
		copy(v.data[l.hidden:], x.data[t*in:(t+1)*in])

		s := lstmStep{v: v, cPrev: c}
		s.zf, s.zi, s.zc, s.zo = gate(l.Wf, l.Bf, v), gate(l.Wi, l.Bi, v), gate(l.Wc, l.Bc, v), gate(l.Wo, l.Bo, v)
		s.f, s.i, s.o = Sigmoid.Func(s.zf), Sigmoid.Func(s.zi), Sigmoid.Func(s.zo)
		s.cand = l.Candidate.Func(s.zc)

		c = Hadamard(s.f, c)
		c.Add(Hadamard(s.i, s.cand))
		s.c = c
		s.tanhC = Tanh.Func(c)
		h = Hadamard(s.o, s.tanhC)

		l.cache[t] = s
		out.SetRow(t, h)
	}
	return out
}

// Backward threads the hidden and cell gradients from the last step to the
// first, summing every gate's weight and bias gradients before a single
// update per tensor.
func (l *LSTM) Backward(g *Matrix) *Matrix {
	mustShape("LSTM gradient", g, l.steps, l.hidden)
	params := l.params()
	var grads [8]*Matrix
	for k, p := range params {
		grads[k] = NewMatrix(p.rows, p.cols)
	}

	in := l.Wf.cols - l.hidden
	dx := NewMatrix(l.steps, in)
	dhNext, dcNext := NewVector(l.hidden), NewVector(l.hidden)

	for t := l.steps - 1; t >= 0; t-- {
		s := l.cache[t]
		dh := g.Row(t)
		dh.Add(dhNext)

		// h = o ⊙ tanh(c)
		do := Hadamard(dh, s.tanhC)
		dc := Tanh.Backward(s.c, Hadamard(dh, s.o))
		dc.Add(dcNext)

		// c = f ⊙ cPrev + i ⊙ cand
		df := Hadamard(dc, s.cPrev)
		di := Hadamard(dc, s.cand)
		dCand := Hadamard(dc, s.i)

		dz := [4]*Matrix{
			Sigmoid.Backward(s.zf, df),
			Sigmoid.Backward(s.zi, di),
			l.Candidate.Backward(s.zc, dCand),
			Sigmoid.Backward(s.zo, do),
		}

		dv := NewVector(l.Wf.cols)
		for k, d := range dz {
			grads[2*k].Add(MatMulT(d, s.v))
			grads[2*k+1].Add(d)
			dv.Add(TMatMul(params[2*k], d))
		}

		dhNext = VectorFromSlice(dv.data[:l.hidden])
		copy(dx.data[t*in:(t+1)*in], dv.data[l.hidden:])
		dcNext = Hadamard(dc, s.f)
	}

	for k, p := range params {
		l.opts[k].UpdateParam(p, grads[k])
	}
	return dx
}
