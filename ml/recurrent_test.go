package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRNNCellForward(t *testing.T) {
	l := NewRNNCell(2, 1, 1, 1, &recordingFactory{}, newTestRNG(1))
	l.Wx.Set(0, 0, 0.5)
	l.Wh.Set(0, 0, -1)
	l.Wy.Set(0, 0, 2)

	out := l.Forward(MatrixFromRows([][]float64{{1}, {2}}))
	h0 := math.Tanh(0.5)
	h1 := math.Tanh(1 - h0)
	assert.InDeltaSlice(t, []float64{2 * h0, 2 * h1}, out.Data(), 1e-12)
}

func TestRNNCellInitRange(t *testing.T) {
	l := NewRNNCell(3, 4, 5, 2, &recordingFactory{}, newTestRNG(2))
	for _, w := range []*Matrix{l.Wx, l.Wh, l.Wy} {
		for _, v := range w.Data() {
			assert.GreaterOrEqual(t, v, -1.0)
			assert.Less(t, v, 1.0)
		}
	}
}

func TestRNNCellGradients(t *testing.T) {
	for _, act := range []Activation{Tanh, Sigmoid} {
		t.Run(act.Name(), func(t *testing.T) {
			rng := newTestRNG(3)
			rec := &recordingFactory{}
			l := NewRNNCell(4, 3, 5, 2, rec, rng, WithActivation(act))
			checkLayerGradients(t, l, rec, randomMatrix(rng, 4, 3),
				map[string]*Matrix{"Wx": l.Wx, "Wh": l.Wh, "Wy": l.Wy}, rng)
		})
	}
}

// Backprop is linear in the output gradient, so the accumulated gradient for
// a whole sequence must equal the sum of the gradients obtained when only one
// step at a time receives its share.
func TestRNNCellAccumulatesAcrossSteps(t *testing.T) {
	const steps = 5
	rng := newTestRNG(4)
	rec := &recordingFactory{}
	l := NewRNNCell(steps, 2, 3, 2, rec, rng)
	x := randomMatrix(rng, steps, 2)
	g := randomMatrix(rng, steps, 2)

	l.Forward(x)
	dx := l.Backward(g)
	full := map[*Matrix]*Matrix{}
	for _, w := range []*Matrix{l.Wx, l.Wh, l.Wy} {
		full[w] = rec.gradFor(t, w)
	}
	for _, o := range rec.opts {
		require.Equal(t, 1, o.calls, "one update per tensor per example")
	}

	summed := map[*Matrix]*Matrix{}
	dxSum := NewMatrix(steps, 2)
	for step := 0; step < steps; step++ {
		masked := NewMatrix(steps, 2)
		masked.SetRow(step, g.Row(step))

		rec.reset()
		l.Forward(x)
		dxSum.Add(l.Backward(masked))
		for w := range full {
			if summed[w] == nil {
				summed[w] = NewMatrix(w.Rows(), w.Cols())
			}
			summed[w].Add(rec.gradFor(t, w))
		}
	}

	for w, want := range full {
		assert.True(t, summed[w].EqualApprox(want, 1e-12))
	}
	assert.True(t, dxSum.EqualApprox(dx, 1e-12))
}

func TestRNNCellFirstStepHasNoRecurrentGradient(t *testing.T) {
	rec := &recordingFactory{}
	l := NewRNNCell(3, 2, 2, 1, rec, newTestRNG(5))
	l.Forward(randomMatrix(newTestRNG(6), 3, 2))

	g := NewMatrix(3, 1)
	g.Set(0, 0, 1)
	l.Backward(g)

	assert.Equal(t, 0.0, rec.gradFor(t, l.Wh).SumSquares())
	assert.NotZero(t, rec.gradFor(t, l.Wx).SumSquares())
}

func TestLSTMGradients(t *testing.T) {
	for _, cand := range []Activation{Tanh, Sigmoid} {
		t.Run(cand.Name(), func(t *testing.T) {
			rng := newTestRNG(7)
			rec := &recordingFactory{}
			l := NewLSTM(4, 3, 2, rec, rng, WithCandidateActivation(cand))
			require.Equal(t, Shape{4, 3}, l.InShape())
			require.Equal(t, Shape{4, 2}, l.OutShape())

			params := map[string]*Matrix{
				"Wf": l.Wf, "Wi": l.Wi, "Wc": l.Wc, "Wo": l.Wo,
				"Bf": l.Bf, "Bi": l.Bi, "Bc": l.Bc, "Bo": l.Bo,
			}
			checkLayerGradients(t, l, rec, randomMatrix(rng, 4, 3), params, rng)
			for _, o := range rec.opts {
				assert.Equal(t, 1, o.calls)
			}
		})
	}
}

func TestLSTMCandidateDefaultsToTanh(t *testing.T) {
	l := NewLSTM(2, 1, 1, &recordingFactory{}, newTestRNG(8))
	assert.Equal(t, "tanh", l.Candidate.Name())
}

func TestAttentionGradients(t *testing.T) {
	rng := newTestRNG(9)
	rec := &recordingFactory{}
	l := NewAttention(3, 4, 2, rec, rng)
	require.Equal(t, Shape{3, 4}, l.OutShape())

	params := map[string]*Matrix{"Wk": l.Wk, "Wq": l.Wq, "Wv": l.Wv}
	checkLayerGradients(t, l, rec, randomMatrix(rng, 3, 4), params, rng)
	require.Len(t, rec.opts, 3, "one optimizer per projection")
}

func TestAttentionRowsAreConvexCombinations(t *testing.T) {
	rng := newTestRNG(10)
	l := NewAttention(3, 2, 2, &recordingFactory{}, rng)
	l.Wv.CopyFrom(MatrixFromRows([][]float64{{1, 0}, {0, 1}}))

	x := randomMatrix(rng, 3, 2)
	out := l.Forward(x)
	for r := 0; r < 3; r++ {
		assert.InDelta(t, 1, l.w.Row(r).Sum(), 1e-12)
		for c := 0; c < 2; c++ {
			lo, hi := math.Inf(1), math.Inf(-1)
			for k := 0; k < 3; k++ {
				lo, hi = math.Min(lo, x.At(k, c)), math.Max(hi, x.At(k, c))
			}
			assert.True(t, out.At(r, c) >= lo-1e-12 && out.At(r, c) <= hi+1e-12)
		}
	}
}

func TestPositionalEncoding(t *testing.T) {
	l := NewPositionalEncoding(3, 4)
	x := NewMatrix(3, 4)
	out := l.Forward(x)

	assert.Equal(t, []float64{0, 1, 0, 1}, out.Row(0).Data())
	assert.InDelta(t, math.Sin(1), out.At(1, 0), 1e-12)
	assert.InDelta(t, math.Cos(2/100.0), out.At(2, 3), 1e-12)

	g := randomMatrix(newTestRNG(11), 3, 4)
	assert.True(t, l.Backward(g).Equal(g))
}
