package ml

import (
	"math"
	"math/rand/v2"
)

// Attention is single-head self-attention over an N×M sequence:
//
//	k = x·Wk, q = x·Wq, v = x·Wv
//	w = rowSoftmax(q·kᵗ / sqrt(D))
//	out = w·v
//
// Wk and Wq are M×D, Wv is M×M. Each projection has its own optimizer.
type Attention struct {
	Wk, Wq, Wv *Matrix

	n, d             int
	optK, optQ, optV Optimizer

	// Attention Cache (for Backprop)
	x, k, q, v, w *Matrix
}

func NewAttention(n, m, d int, opt OptimizerFactory, rng *rand.Rand, opts ...LayerOption) *Attention {
	cfg := newLayerConfig(0.5, Linear, opts)
	return &Attention{
		Wk:   newParam(m, d, cfg, rng),
		Wq:   newParam(m, d, cfg, rng),
		Wv:   newParam(m, m, cfg, rng),
		n:    n,
		d:    d,
		optK: opt.Init(m, d),
		optQ: opt.Init(m, d),
		optV: opt.Init(m, m),
	}
}

func (l *Attention) InShape() Shape  { return Shape{l.n, l.Wv.rows} }
func (l *Attention) OutShape() Shape { return Shape{l.n, l.Wv.rows} }

func (l *Attention) Forward(x *Matrix) *Matrix {
	mustShape("Attention input", x, l.n, l.Wv.rows)
	l.x = x
	l.k = MatMul(x, l.Wk)
	l.q = MatMul(x, l.Wq)
	l.v = MatMul(x, l.Wv)

	scores := MatMulT(l.q, l.k)
	scores.Scale(1 / math.Sqrt(float64(l.d)))
	SoftmaxRow(scores)
	l.w = scores

	return MatMul(l.w, l.v)
}

func (l *Attention) Backward(g *Matrix) *Matrix {
	mustShape("Attention gradient", g, l.n, l.Wv.rows)

	// out = w·v
	gw := MatMulT(g, l.v)
	gv := TMatMul(l.w, g)

	// w = rowSoftmax(s), s = q·kᵗ / sqrt(D)
	gs := softmaxRowBackward(l.w, gw)
	gs.Scale(1 / math.Sqrt(float64(l.d)))
	gq := MatMul(gs, l.k)
	gk := TMatMul(gs, l.q)

	dx := MatMulT(gq, l.Wq)
	dx.Add(MatMulT(gk, l.Wk))
	dx.Add(MatMulT(gv, l.Wv))

	l.optK.UpdateParam(l.Wk, TMatMul(l.x, gk))
	l.optQ.UpdateParam(l.Wq, TMatMul(l.x, gq))
	l.optV.UpdateParam(l.Wv, TMatMul(l.x, gv))
	return dx
}

// -------- POSITIONAL ENCODING -------- //

// PositionalEncoding adds a fixed sinusoidal timing signal to an N×M
// sequence. It has no parameters and passes gradients through unchanged.
type PositionalEncoding struct {
	PosEnc *Matrix
}

func NewPositionalEncoding(contextLen, embedDim int) *PositionalEncoding {
	return &PositionalEncoding{
		PosEnc: NewMatrixFromSlice(contextLen, embedDim, MakePositionalEncoding(contextLen, embedDim)),
	}
}

func (l *PositionalEncoding) InShape() Shape  { return Shape{l.PosEnc.rows, l.PosEnc.cols} }
func (l *PositionalEncoding) OutShape() Shape { return l.InShape() }

func (l *PositionalEncoding) Forward(x *Matrix) *Matrix {
	return Sum(x, l.PosEnc)
}

func (l *PositionalEncoding) Backward(g *Matrix) *Matrix {
	return g
}

// MakePositionalEncoding creates a flattened vector of size [ContextLen * EmbedDim]
// containing the standard sinusoidal timing signals.
func MakePositionalEncoding(contextLen, embedDim int) []float64 {
	pe := make([]float64, contextLen*embedDim)

	for pos := 0; pos < contextLen; pos++ {
		for i := 0; i < embedDim; i++ {
			// PE(pos, 2i)   = sin(pos / 10000^(2i/d_model))
			// PE(pos, 2i+1) = cos(pos / 10000^(2i/d_model))
			exponent := float64(2*(i/2)) / float64(embedDim)
			val := float64(pos) / math.Pow(10000.0, exponent)

			if i%2 == 0 {
				pe[pos*embedDim+i] = math.Sin(val)
			} else {
				pe[pos*embedDim+i] = math.Cos(val)
			}
		}
	}
	return pe
}
