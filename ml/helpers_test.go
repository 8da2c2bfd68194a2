package ml

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
)

func newTestRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func randomMatrix(rng *rand.Rand, rows, cols int) *Matrix {
	m := NewMatrix(rows, cols)
	m.RandomizeUniform(rng, -1, 1)
	return m
}

// recordingFactory hands out optimizers that remember the last gradient
// they were given and never touch the weight.
type recordingFactory struct {
	opts []*recordingOptimizer
}

type recordingOptimizer struct {
	weight, grad *Matrix
	calls        int
}

func (f *recordingFactory) Init(int, int) Optimizer {
	o := &recordingOptimizer{}
	f.opts = append(f.opts, o)
	return o
}

func (f *recordingFactory) Name() string { return "recording" }

func (o *recordingOptimizer) UpdateParam(weight, gradient *Matrix) {
	o.weight = weight
	o.grad = gradient.Clone()
	o.calls++
}

func (f *recordingFactory) gradFor(t *testing.T, w *Matrix) *Matrix {
	t.Helper()
	for _, o := range f.opts {
		if o.weight == w {
			return o.grad
		}
	}
	require.FailNow(t, "no gradient recorded for parameter")
	return nil
}

func (f *recordingFactory) reset() {
	for _, o := range f.opts {
		o.weight, o.grad, o.calls = nil, nil, 0
	}
}

// probe reduces a layer output to a scalar so that its gradient with respect
// to the output is exactly r.
func probe(l Layer, x, r *Matrix) float64 {
	return Hadamard(l.Forward(x), r).Sum()
}

func assertGradClose(t *testing.T, want, got []float64, what string) {
	t.Helper()
	require.Len(t, got, len(want), what)
	for i := range want {
		tol := 1e-5 * math.Max(1, math.Abs(want[i]))
		assert.InDelta(t, want[i], got[i], tol, "%s[%d]", what, i)
	}
}

// checkLayerGradients compares the input gradient and the recorded gradient
// of every listed parameter against central finite differences.
func checkLayerGradients(t *testing.T, l Layer, rec *recordingFactory, x *Matrix, params map[string]*Matrix, rng *rand.Rand) {
	t.Helper()
	out := l.OutShape()
	r := randomMatrix(rng, out.Rows, out.Cols)

	l.Forward(x)
	dx := l.Backward(r)
	require.True(t, dx.SameShape(x), "input gradient shape")

	settings := &fd.Settings{Formula: fd.Central, Step: 1e-6}

	numeric := fd.Gradient(nil, func(v []float64) float64 {
		return probe(l, NewMatrixFromSlice(x.rows, x.cols, append([]float64(nil), v...)), r)
	}, x.data, settings)
	assertGradClose(t, numeric, dx.data, "input")

	for name, p := range params {
		analytic := rec.gradFor(t, p)
		orig := append([]float64(nil), p.data...)
		numeric := fd.Gradient(nil, func(v []float64) float64 {
			copy(p.data, v)
			return probe(l, x, r)
		}, orig, settings)
		copy(p.data, orig)
		assertGradClose(t, numeric, analytic.data, name)
	}
}
